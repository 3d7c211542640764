// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package webhooks fans application events out to tenant registered HTTP
// endpoints. Each (event, endpoint) pair gets its own delivery record that
// moves through pending -> retrying -> delivered or failed; progress is
// driven by atomic attempt claims in storage, so a delivery is only ever
// advanced by one worker at a time.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

// Config carries the delivery knobs. Zero values are not usable; construct
// it from the environment spec.
type Config struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffFactor   float64
	BackoffCap      time.Duration
	AttemptTimeout  time.Duration
	PollInterval    time.Duration
	PollBatchSize   int
	MaxResponseSize int
}

type Service struct {
	storage  StorageInterface
	runner   tasks.RunnerInterface
	notifier NotifierInterface
	config   Config
	client   *http.Client

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

// Publish creates one delivery per active endpoint subscribed to the event
// and kicks off the first attempt immediately in the background. Endpoint
// lookup and delivery creation are synchronous so the caller knows the
// event was accepted; the network work never blocks the caller.
func (s *Service) Publish(ctx context.Context, tenantID, event string, payload any) error {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.Publish")
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable to encode payload for event %s: %w", event, err)
	}

	s.notifier.Notify(tenantID, event, body)

	endpoints, err := s.storage.ListActiveEndpointsForEvent(ctx, tenantID, event)
	if err != nil {
		return err
	}

	for _, endpoint := range endpoints {
		delivery := &types.WebhookDelivery{
			EndpointID:  endpoint.ID,
			TenantID:    tenantID,
			Event:       event,
			Payload:     body,
			MaxAttempts: s.config.MaxAttempts,
		}

		created, err := s.storage.CreateDelivery(ctx, delivery)
		if err != nil {
			s.logger.Errorf("unable to create delivery for endpoint %s: %v", endpoint.ID, err)
			continue
		}

		deliveryID := created.ID
		_ = s.runner.Submit("webhooks.first-attempt", func(ctx context.Context) {
			s.Attempt(ctx, deliveryID)
		})
	}

	return nil
}

func (s *Service) CreateEndpoint(ctx context.Context, e *types.WebhookEndpoint) (*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.CreateEndpoint")
	defer span.End()

	return s.storage.CreateEndpoint(ctx, e)
}

func (s *Service) ListEndpoints(ctx context.Context, tenantID string) ([]*types.WebhookEndpoint, error) {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.ListEndpoints")
	defer span.End()

	return s.storage.ListEndpointsByTenant(ctx, tenantID)
}

func (s *Service) SetEndpointActive(ctx context.Context, tenantID, endpointID string, active bool) error {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.SetEndpointActive")
	defer span.End()

	return s.storage.SetEndpointActive(ctx, tenantID, endpointID, active)
}

func (s *Service) DeleteEndpoint(ctx context.Context, tenantID, endpointID string) error {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.DeleteEndpoint")
	defer span.End()

	return s.storage.DeleteEndpoint(ctx, tenantID, endpointID)
}

func (s *Service) ListDeliveries(ctx context.Context, tenantID string, limit uint64) ([]*types.WebhookDelivery, error) {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.ListDeliveries")
	defer span.End()

	return s.storage.ListDeliveriesByTenant(ctx, tenantID, limit)
}

func NewService(storage StorageInterface, runner tasks.RunnerInterface, notifier NotifierInterface, config Config, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Service {
	return &Service{
		storage:  storage,
		runner:   runner,
		notifier: notifier,
		config:   config,
		client:   &http.Client{Timeout: config.AttemptTimeout},
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}
