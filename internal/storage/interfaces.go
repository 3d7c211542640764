// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"time"

	"github.com/rentworks/access-service/internal/types"
)

type StorageInterface interface {
	// Tenants and users
	GetTenantByID(ctx context.Context, id string) (*types.Tenant, error)
	GetTenantByIDOrSlug(ctx context.Context, idOrSlug string) (*types.Tenant, error)
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	SetActiveTenant(ctx context.Context, userID, tenantID string) error

	// API keys
	CreateAPIKey(ctx context.Context, key *types.APIKey) (*types.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*types.APIKey, *types.Tenant, error)
	ListAPIKeysByTenant(ctx context.Context, tenantID string) ([]*types.APIKey, error)
	RevokeAPIKey(ctx context.Context, tenantID, keyID string) error
	TouchAPIKeyLastUsed(ctx context.Context, keyID string, at time.Time) error

	// Audit trail
	CreateAuditEntry(ctx context.Context, entry *types.AuditLogEntry) (*types.AuditLogEntry, error)
	ListAuditEntries(ctx context.Context, tenantID string, limit uint64) ([]*types.AuditLogEntry, error)
	DeleteAuditEntry(ctx context.Context, id string) error

	// Webhook endpoints and deliveries
	CreateEndpoint(ctx context.Context, e *types.WebhookEndpoint) (*types.WebhookEndpoint, error)
	GetEndpointByID(ctx context.Context, id string) (*types.WebhookEndpoint, error)
	ListEndpointsByTenant(ctx context.Context, tenantID string) ([]*types.WebhookEndpoint, error)
	ListActiveEndpointsForEvent(ctx context.Context, tenantID, event string) ([]*types.WebhookEndpoint, error)
	SetEndpointActive(ctx context.Context, tenantID, endpointID string, active bool) error
	DeleteEndpoint(ctx context.Context, tenantID, endpointID string) error

	CreateDelivery(ctx context.Context, d *types.WebhookDelivery) (*types.WebhookDelivery, error)
	ClaimDeliveryAttempt(ctx context.Context, deliveryID string, now time.Time) (*types.WebhookDelivery, error)
	ListDueDeliveries(ctx context.Context, now time.Time, graceBefore time.Time, limit uint64) ([]*types.WebhookDelivery, error)
	ListDeliveriesByTenant(ctx context.Context, tenantID string, limit uint64) ([]*types.WebhookDelivery, error)
	MarkDeliveryDelivered(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, at time.Time) error
	MarkDeliveryRetrying(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string, nextRetryAt time.Time) error
	MarkDeliveryFailed(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string) error
}
