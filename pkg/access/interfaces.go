// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package access

import (
	"context"

	"github.com/rentworks/access-service/internal/types"
)

type StorageInterface interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
}

// AuthenticatorInterface validates raw API keys. IsAuthenticationError
// distinguishes credential failures (401) from infrastructure ones (500).
type AuthenticatorInterface interface {
	Authenticate(ctx context.Context, rawKey string) (*types.Credential, error)
	IsAuthenticationError(err error) bool
}
