// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"context"
	"time"

	"github.com/rentworks/access-service/internal/types"
)

type ServiceInterface interface {
	Authenticate(ctx context.Context, rawKey string) (*types.Credential, error)
	IsAuthenticationError(err error) bool
	CreateKey(ctx context.Context, tenantID, name string, scopeType types.ScopeType, scopes []string, expiresAt *time.Time) (*types.APIKey, string, error)
	ListKeys(ctx context.Context, tenantID string) ([]*types.APIKey, error)
	RevokeKey(ctx context.Context, tenantID, keyID string) error
}

type StorageInterface interface {
	CreateAPIKey(ctx context.Context, key *types.APIKey) (*types.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*types.APIKey, *types.Tenant, error)
	ListAPIKeysByTenant(ctx context.Context, tenantID string) ([]*types.APIKey, error)
	RevokeAPIKey(ctx context.Context, tenantID, keyID string) error
	TouchAPIKeyLastUsed(ctx context.Context, keyID string, at time.Time) error
}
