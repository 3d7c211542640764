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

func (s *Storage) CreateEndpoint(ctx context.Context, e *types.WebhookEndpoint) (*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateEndpoint")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate endpoint ID: %w", err)
	}

	events, err := json.Marshal(e.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal events: %w", err)
	}

	var created types.WebhookEndpoint
	var rawEvents []byte
	err = s.db.Statement(ctx).
		Insert("webhook_endpoints").
		Columns("id", "tenant_id", "url", "secret", "events", "is_active").
		Values(id.String(), e.TenantID, e.URL, e.Secret, events, true).
		Suffix("RETURNING id, tenant_id, url, secret, events, is_active, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.TenantID, &created.URL, &created.Secret, &rawEvents, &created.IsActive, &created.CreatedAt)

	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, ErrForeignKeyViolation
		}
		return nil, fmt.Errorf("failed to insert endpoint: %w", err)
	}

	if err := json.Unmarshal(rawEvents, &created.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}

	return &created, nil
}

func (s *Storage) GetEndpointByID(ctx context.Context, id string) (*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetEndpointByID")
	defer span.End()

	var e types.WebhookEndpoint
	var rawEvents []byte
	err := s.db.Statement(ctx).
		Select("id", "tenant_id", "url", "secret", "events", "is_active", "created_at").
		From("webhook_endpoints").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).
		Scan(&e.ID, &e.TenantID, &e.URL, &e.Secret, &rawEvents, &e.IsActive, &e.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	if err := json.Unmarshal(rawEvents, &e.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}

	return &e, nil
}

func (s *Storage) ListEndpointsByTenant(ctx context.Context, tenantID string) ([]*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListEndpointsByTenant")
	defer span.End()

	return s.listEndpoints(ctx, sq.Eq{"tenant_id": tenantID})
}

// ListActiveEndpointsForEvent returns the active endpoints of a tenant whose
// subscription list contains the event.
func (s *Storage) ListActiveEndpointsForEvent(ctx context.Context, tenantID, event string) ([]*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListActiveEndpointsForEvent")
	defer span.End()

	endpoints, err := s.listEndpoints(ctx, sq.Eq{"tenant_id": tenantID, "is_active": true})
	if err != nil {
		return nil, err
	}

	matched := make([]*types.WebhookEndpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.SubscribedTo(event) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func (s *Storage) listEndpoints(ctx context.Context, pred interface{}) ([]*types.WebhookEndpoint, error) {
	rows, err := s.db.Statement(ctx).
		Select("id", "tenant_id", "url", "secret", "events", "is_active", "created_at").
		From("webhook_endpoints").
		Where(pred).
		OrderBy("created_at").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*types.WebhookEndpoint
	for rows.Next() {
		var e types.WebhookEndpoint
		var rawEvents []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.URL, &e.Secret, &rawEvents, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		if err := json.Unmarshal(rawEvents, &e.Events); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
		endpoints = append(endpoints, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return endpoints, nil
}

func (s *Storage) SetEndpointActive(ctx context.Context, tenantID, endpointID string, active bool) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetEndpointActive")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("webhook_endpoints").
		Set("is_active", active).
		Where(sq.Eq{"id": endpointID, "tenant_id": tenantID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update endpoint: %w", err)
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

func (s *Storage) DeleteEndpoint(ctx context.Context, tenantID, endpointID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteEndpoint")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("webhook_endpoints").
		Where(sq.Eq{"id": endpointID, "tenant_id": tenantID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
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

func (s *Storage) CreateDelivery(ctx context.Context, d *types.WebhookDelivery) (*types.WebhookDelivery, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateDelivery")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate delivery ID: %w", err)
	}

	var created types.WebhookDelivery
	err = s.db.Statement(ctx).
		Insert("webhook_deliveries").
		Columns("id", "endpoint_id", "tenant_id", "event", "payload", "status", "attempts", "max_attempts").
		Values(id.String(), d.EndpointID, d.TenantID, d.Event, []byte(d.Payload), types.DeliveryPending, 0, d.MaxAttempts).
		Suffix("RETURNING id, endpoint_id, tenant_id, event, payload, status, attempts, max_attempts, created_at, updated_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.EndpointID, &created.TenantID, &created.Event, &created.Payload, &created.Status, &created.Attempts, &created.MaxAttempts, &created.CreatedAt, &created.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert delivery: %w", err)
	}

	return &created, nil
}

// ClaimDeliveryAttempt atomically increments the attempt counter of a
// non-terminal delivery and returns the claimed record. A duplicate scheduler
// trigger loses the race here: the second claim either observes the terminal
// state written by the first attempt or claims the next attempt number, so a
// single attempt is never sent twice. ErrNotFound means there is nothing to
// attempt.
func (s *Storage) ClaimDeliveryAttempt(ctx context.Context, deliveryID string, now time.Time) (*types.WebhookDelivery, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ClaimDeliveryAttempt")
	defer span.End()

	var d types.WebhookDelivery
	err := s.db.Statement(ctx).
		Update("webhook_deliveries").
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", now).
		Where(sq.Eq{"id": deliveryID}).
		Where(sq.Expr("status IN (?, ?)", types.DeliveryPending, types.DeliveryRetrying)).
		Where(sq.Expr("attempts < max_attempts")).
		Suffix("RETURNING id, endpoint_id, tenant_id, event, payload, status, attempts, max_attempts, next_retry_at, error, delivered_at, created_at, updated_at").
		QueryRowContext(ctx).
		Scan(&d.ID, &d.EndpointID, &d.TenantID, &d.Event, &d.Payload, &d.Status, &d.Attempts, &d.MaxAttempts, &d.NextRetryAt, &d.Error, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim delivery attempt: %w", err)
	}

	return &d, nil
}

// ListDueDeliveries returns deliveries ready for an attempt: retrying ones
// whose backoff elapsed, and pending ones older than graceBefore. The grace
// window keeps the scheduler from racing the immediate first attempt that is
// dispatched at enqueue time.
func (s *Storage) ListDueDeliveries(ctx context.Context, now time.Time, graceBefore time.Time, limit uint64) ([]*types.WebhookDelivery, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListDueDeliveries")
	defer span.End()

	pred := sq.Or{
		sq.And{sq.Eq{"status": types.DeliveryRetrying}, sq.LtOrEq{"next_retry_at": now}},
		sq.And{sq.Eq{"status": types.DeliveryPending}, sq.LtOrEq{"created_at": graceBefore}},
	}

	return s.listDeliveries(ctx, pred, "created_at", limit)
}

func (s *Storage) ListDeliveriesByTenant(ctx context.Context, tenantID string, limit uint64) ([]*types.WebhookDelivery, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListDeliveriesByTenant")
	defer span.End()

	return s.listDeliveries(ctx, sq.Eq{"tenant_id": tenantID}, "created_at DESC", limit)
}

func (s *Storage) listDeliveries(ctx context.Context, pred interface{}, order string, limit uint64) ([]*types.WebhookDelivery, error) {
	rows, err := s.db.Statement(ctx).
		Select("id", "endpoint_id", "tenant_id", "event", "payload", "status", "attempts", "max_attempts", "next_retry_at", "response", "error", "delivered_at", "created_at", "updated_at").
		From("webhook_deliveries").
		Where(pred).
		OrderBy(order).
		Limit(limit).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*types.WebhookDelivery
	for rows.Next() {
		var d types.WebhookDelivery
		var rawResponse []byte
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.TenantID, &d.Event, &d.Payload, &d.Status, &d.Attempts, &d.MaxAttempts, &d.NextRetryAt, &rawResponse, &d.Error, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		if len(rawResponse) > 0 {
			if err := json.Unmarshal(rawResponse, &d.Response); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		deliveries = append(deliveries, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return deliveries, nil
}

func (s *Storage) MarkDeliveryDelivered(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.MarkDeliveryDelivered")
	defer span.End()

	return s.recordAttemptResult(ctx, deliveryID, attempt, map[string]interface{}{
		"status":        types.DeliveryDelivered,
		"delivered_at":  at,
		"next_retry_at": nil,
		"updated_at":    at,
	}, resp)
}

func (s *Storage) MarkDeliveryRetrying(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string, nextRetryAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.MarkDeliveryRetrying")
	defer span.End()

	return s.recordAttemptResult(ctx, deliveryID, attempt, map[string]interface{}{
		"status":        types.DeliveryRetrying,
		"error":         errMsg,
		"next_retry_at": nextRetryAt,
		"updated_at":    time.Now().UTC(),
	}, resp)
}

func (s *Storage) MarkDeliveryFailed(ctx context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string) error {
	ctx, span := s.tracer.Start(ctx, "storage.MarkDeliveryFailed")
	defer span.End()

	return s.recordAttemptResult(ctx, deliveryID, attempt, map[string]interface{}{
		"status":        types.DeliveryFailed,
		"error":         errMsg,
		"next_retry_at": nil,
		"updated_at":    time.Now().UTC(),
	}, resp)
}

// recordAttemptResult writes the outcome of one attempt. The attempt guard
// means a stale or duplicate writer cannot overwrite the result of a newer
// attempt, and terminal rows are never modified.
func (s *Storage) recordAttemptResult(ctx context.Context, deliveryID string, attempt int, updates map[string]interface{}, resp *types.DeliveryResponse) error {
	if resp != nil {
		raw, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		updates["response"] = raw
	}

	_, err := s.db.Statement(ctx).
		Update("webhook_deliveries").
		SetMap(updates).
		Where(sq.Eq{"id": deliveryID, "attempts": attempt}).
		Where(sq.Expr("status IN (?, ?)", types.DeliveryPending, types.DeliveryRetrying)).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to record attempt result: %w", err)
	}

	return nil
}
