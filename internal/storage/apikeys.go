// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/rentworks/access-service/internal/types"
)

func (s *Storage) CreateAPIKey(ctx context.Context, key *types.APIKey) (*types.APIKey, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateAPIKey")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key ID: %w", err)
	}

	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}

	var created types.APIKey
	var rawScopes []byte
	err = s.db.Statement(ctx).
		Insert("api_keys").
		Columns("id", "tenant_id", "name", "key_hash", "key_prefix", "scope_type", "scopes", "is_active", "expires_at").
		Values(id.String(), key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.ScopeType, scopes, true, key.ExpiresAt).
		Suffix("RETURNING id, tenant_id, name, key_prefix, scope_type, scopes, is_active, expires_at, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.TenantID, &created.Name, &created.KeyPrefix, &created.ScopeType, &rawScopes, &created.IsActive, &created.ExpiresAt, &created.CreatedAt)

	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, ErrForeignKeyViolation
		}
		return nil, fmt.Errorf("failed to insert api key: %w", err)
	}

	if err := json.Unmarshal(rawScopes, &created.Scopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}

	return &created, nil
}

// GetAPIKeyByHash looks up a key record by its digest along with the owning
// tenant summary. Revoked keys are not returned.
func (s *Storage) GetAPIKeyByHash(ctx context.Context, keyHash string) (*types.APIKey, *types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetAPIKeyByHash")
	defer span.End()

	var (
		key       types.APIKey
		tenant    types.Tenant
		rawScopes []byte
	)
	err := s.db.Statement(ctx).
		Select(
			"k.id", "k.tenant_id", "k.name", "k.key_prefix", "k.scope_type", "k.scopes",
			"k.is_active", "k.expires_at", "k.last_used_at", "k.created_at",
			"t.id", "t.name", "t.slug", "t.status", "t.created_at",
		).
		From("api_keys k").
		Join("tenants t ON t.id = k.tenant_id").
		Where(sq.Eq{"k.key_hash": keyHash, "k.is_active": true}).
		QueryRowContext(ctx).
		Scan(
			&key.ID, &key.TenantID, &key.Name, &key.KeyPrefix, &key.ScopeType, &rawScopes,
			&key.IsActive, &key.ExpiresAt, &key.LastUsedAt, &key.CreatedAt,
			&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Status, &tenant.CreatedAt,
		)

	if err != nil {
		if isNoRows(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get api key: %w", err)
	}

	if err := json.Unmarshal(rawScopes, &key.Scopes); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}

	return &key, &tenant, nil
}

func (s *Storage) ListAPIKeysByTenant(ctx context.Context, tenantID string) ([]*types.APIKey, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListAPIKeysByTenant")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "tenant_id", "name", "key_prefix", "scope_type", "scopes", "is_active", "expires_at", "last_used_at", "created_at").
		From("api_keys").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*types.APIKey
	for rows.Next() {
		var (
			key       types.APIKey
			rawScopes []byte
		)
		if err := rows.Scan(&key.ID, &key.TenantID, &key.Name, &key.KeyPrefix, &key.ScopeType, &rawScopes, &key.IsActive, &key.ExpiresAt, &key.LastUsedAt, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if err := json.Unmarshal(rawScopes, &key.Scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}

func (s *Storage) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.RevokeAPIKey")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("api_keys").
		Set("is_active", false).
		Where(sq.Eq{"id": keyID, "tenant_id": tenantID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// TouchAPIKeyLastUsed records key usage. It is a single atomic write so
// concurrent touches cannot clobber each other.
func (s *Storage) TouchAPIKeyLastUsed(ctx context.Context, keyID string, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.TouchAPIKeyLastUsed")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Update("api_keys").
		Set("last_used_at", at).
		Where(sq.Eq{"id": keyID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
