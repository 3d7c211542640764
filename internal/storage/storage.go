// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/rentworks/access-service/internal/db"
	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

var _ StorageInterface = (*Storage)(nil)

type Storage struct {
	db db.DBClientInterface

	logger  logging.LoggerInterface
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
}

// isNoRows covers both the database/sql bridge and native pgx row errors.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func NewStorage(c db.DBClientInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Storage {
	s := new(Storage)

	s.db = c

	s.logger = logger
	s.tracer = tracer
	s.monitor = monitor

	return s
}

func (s *Storage) GetTenantByID(ctx context.Context, id string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetTenantByID")
	defer span.End()

	return s.getTenant(ctx, sq.Eq{"id": id})
}

func (s *Storage) GetTenantByIDOrSlug(ctx context.Context, idOrSlug string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetTenantByIDOrSlug")
	defer span.End()

	return s.getTenant(ctx, sq.Or{sq.Eq{"id": idOrSlug}, sq.Eq{"slug": idOrSlug}})
}

func (s *Storage) getTenant(ctx context.Context, pred interface{}) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.Statement(ctx).
		Select("id", "name", "slug", "status", "created_at").
		From("tenants").
		Where(pred).
		QueryRowContext(ctx).
		Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &t, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetUserByID")
	defer span.End()

	var (
		u             types.User
		primaryTenant *string
		activeTenant  *string
	)
	err := s.db.Statement(ctx).
		Select("id", "email", "role", "primary_tenant_id", "active_tenant_id", "created_at").
		From("users").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).
		Scan(&u.ID, &u.Email, &u.Role, &primaryTenant, &activeTenant, &u.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if primaryTenant != nil {
		u.PrimaryTenant = types.TenantRef{ID: *primaryTenant}
	}
	if activeTenant != nil {
		u.ActiveTenant = types.TenantRef{ID: *activeTenant}
	}

	rows, err := s.db.Statement(ctx).
		Select("tenant_id").
		From("user_tenants").
		Where(sq.Eq{"user_id": id}).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list additional tenants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		u.AdditionalTenants = append(u.AdditionalTenants, types.TenantRef{ID: tenantID})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return &u, nil
}

func (s *Storage) SetActiveTenant(ctx context.Context, userID, tenantID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetActiveTenant")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("users").
		Set("active_tenant_id", tenantID).
		Where(sq.Eq{"id": userID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to set active tenant: %w", err)
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
