// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rentworks/access-service/internal/types"
)

type ServiceInterface interface {
	Publish(ctx context.Context, tenantID, event string, payload any) error
	CreateEndpoint(ctx context.Context, e *types.WebhookEndpoint) (*types.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]*types.WebhookEndpoint, error)
	SetEndpointActive(ctx context.Context, tenantID, endpointID string, active bool) error
	DeleteEndpoint(ctx context.Context, tenantID, endpointID string) error
	ListDeliveries(ctx context.Context, tenantID string, limit uint64) ([]*types.WebhookDelivery, error)
}

// NotifierInterface is the in-process fanout fed alongside webhook
// deliveries on every published event.
type NotifierInterface interface {
	Notify(tenantID, event string, data json.RawMessage)
}

type StorageInterface interface {
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
