// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenant resolves tenants by id or slug and lets multi tenant users
// switch which tenant they act on.
package tenant

import (
	"context"
	"errors"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
)

// ErrAccessDenied is returned when a user tries to switch to a tenant they
// are not a member of.
var ErrAccessDenied = errors.New("user has no access to tenant")

type Service struct {
	storage StorageInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

func (s *Service) GetTenant(ctx context.Context, idOrSlug string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.GetTenant")
	defer span.End()

	return s.storage.GetTenantByIDOrSlug(ctx, idOrSlug)
}

// ListAccessibleTenants expands the user's tenant references into full
// records. References to tenants that disappeared are dropped silently.
func (s *Service) ListAccessibleTenants(ctx context.Context, userID string) ([]*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListAccessibleTenants")
	defer span.End()

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := access.AllAccessibleTenantIDs(user)
	tenants := make([]*types.Tenant, 0, len(ids))
	for _, id := range ids {
		t, err := s.storage.GetTenantByID(ctx, id)
		if err != nil {
			continue
		}
		tenants = append(tenants, t)
	}

	return tenants, nil
}

// SwitchTenant sets the user's active tenant after verifying membership.
// The target may be referenced by id or slug.
func (s *Service) SwitchTenant(ctx context.Context, userID, idOrSlug string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.SwitchTenant")
	defer span.End()

	target, err := s.storage.GetTenantByIDOrSlug(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !access.UserHasTenantAccess(user, target.ID) {
		s.logger.Security().AuthorizationDenied(userID, "", "tenant switch to non member tenant")
		return nil, ErrAccessDenied
	}

	if err := s.storage.SetActiveTenant(ctx, userID, target.ID); err != nil {
		return nil, err
	}

	s.logger.Security().TenantSwitched(userID, target.ID)

	return target, nil
}

func NewService(storage StorageInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Service {
	return &Service{
		storage: storage,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}
