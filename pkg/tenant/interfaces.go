// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"context"

	"github.com/rentworks/access-service/internal/types"
)

type ServiceInterface interface {
	GetTenant(ctx context.Context, idOrSlug string) (*types.Tenant, error)
	ListAccessibleTenants(ctx context.Context, userID string) ([]*types.Tenant, error)
	SwitchTenant(ctx context.Context, userID, idOrSlug string) (*types.Tenant, error)
}

type StorageInterface interface {
	GetTenantByID(ctx context.Context, id string) (*types.Tenant, error)
	GetTenantByIDOrSlug(ctx context.Context, idOrSlug string) (*types.Tenant, error)
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	SetActiveTenant(ctx context.Context, userID, tenantID string) error
}
