// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/types"
)

// Authenticate validates a raw key and resolves it to its tenant. Checks run
// cheapest first so malformed keys never reach the database:
// presence, format, digest lookup, tenant status, expiry.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*types.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "apikeys.Service.Authenticate")
	defer span.End()

	if rawKey == "" {
		return nil, ErrMissingKey
	}

	if !strings.HasPrefix(rawKey, keyPrefix) || len(rawKey) < minKeyLength {
		s.logger.Security().AuthenticationFailure("api_key", "malformed key")
		return nil, ErrInvalidFormat
	}

	key, tenant, err := s.storage.GetAPIKeyByHash(ctx, HashKey(rawKey))
	if err != nil {
		if err == storage.ErrNotFound {
			s.logger.Security().AuthenticationFailure("api_key", "unknown or revoked key")
			return nil, ErrUnknownKey
		}
		return nil, err
	}

	if tenant.Status != types.TenantActive {
		s.logger.Security().AuthenticationFailure("api_key", fmt.Sprintf("tenant is %s", tenant.Status))
		return nil, fmt.Errorf("tenant is %s; %w", tenant.Status, ErrTenantDisabled)
	}

	if key.Expired(time.Now()) {
		s.logger.Security().AuthenticationFailure("api_key", "expired key")
		return nil, ErrKeyExpired
	}

	s.touchLastUsed(key.ID)
	s.logger.Security().AuthenticationSuccess("api_key", key.ID, tenant.ID)

	return &types.Credential{
		Key:    key,
		Tenant: tenant,
		Scopes: ScopesForKey(key),
	}, nil
}

// IsAuthenticationError satisfies the access builder's authenticator
// contract without leaking this package's sentinels into it.
func (s *Service) IsAuthenticationError(err error) bool {
	return IsAuthenticationError(err)
}

// touchLastUsed records key usage off the request path. Failures are logged
// and dropped; usage tracking must never fail authentication.
func (s *Service) touchLastUsed(keyID string) {
	now := time.Now()
	_ = s.runner.Submit("apikeys.touch-last-used", func(ctx context.Context) {
		if err := s.storage.TouchAPIKeyLastUsed(ctx, keyID, now); err != nil {
			s.logger.Warnf("unable to record key usage for %s: %v", keyID, err)
		}
	})
}
