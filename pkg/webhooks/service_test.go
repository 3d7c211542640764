// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

// fakeDeliveryStorage reproduces the storage layer's claim semantics in
// memory: a claim increments the attempt counter and fails once the
// delivery is terminal or out of budget.
type fakeDeliveryStorage struct {
	mu         sync.Mutex
	endpoints  map[string]*types.WebhookEndpoint
	deliveries map[string]*types.WebhookDelivery
	seq        int
}

func newFakeDeliveryStorage() *fakeDeliveryStorage {
	return &fakeDeliveryStorage{
		endpoints:  map[string]*types.WebhookEndpoint{},
		deliveries: map[string]*types.WebhookDelivery{},
	}
}

func (f *fakeDeliveryStorage) CreateEndpoint(_ context.Context, e *types.WebhookEndpoint) (*types.WebhookEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.ID = fmt.Sprintf("endpoint-%d", f.seq)
	f.endpoints[e.ID] = e
	return e, nil
}

func (f *fakeDeliveryStorage) GetEndpointByID(_ context.Context, id string) (*types.WebhookEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.endpoints[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

func (f *fakeDeliveryStorage) ListEndpointsByTenant(_ context.Context, tenantID string) ([]*types.WebhookEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.WebhookEndpoint
	for _, e := range f.endpoints {
		if tenantID == "" || e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDeliveryStorage) ListActiveEndpointsForEvent(_ context.Context, tenantID, event string) ([]*types.WebhookEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.WebhookEndpoint
	for _, e := range f.endpoints {
		if e.TenantID == tenantID && e.IsActive && e.SubscribedTo(event) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDeliveryStorage) SetEndpointActive(_ context.Context, tenantID, endpointID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.endpoints[endpointID]
	if !ok || e.TenantID != tenantID {
		return storage.ErrNotFound
	}
	e.IsActive = active
	return nil
}

func (f *fakeDeliveryStorage) DeleteEndpoint(_ context.Context, tenantID, endpointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.endpoints[endpointID]
	if !ok || e.TenantID != tenantID {
		return storage.ErrNotFound
	}
	delete(f.endpoints, endpointID)
	return nil
}

func (f *fakeDeliveryStorage) CreateDelivery(_ context.Context, d *types.WebhookDelivery) (*types.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	d.ID = fmt.Sprintf("delivery-%d", f.seq)
	d.Status = types.DeliveryPending
	d.Attempts = 0
	d.CreatedAt = time.Now()
	f.deliveries[d.ID] = d
	return d, nil
}

func (f *fakeDeliveryStorage) ClaimDeliveryAttempt(_ context.Context, deliveryID string, _ time.Time) (*types.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[deliveryID]
	if !ok || d.Status.Terminal() || d.Attempts >= d.MaxAttempts {
		return nil, storage.ErrNotFound
	}
	d.Attempts++
	clone := *d
	return &clone, nil
}

func (f *fakeDeliveryStorage) ListDueDeliveries(_ context.Context, now time.Time, graceBefore time.Time, _ uint64) ([]*types.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.WebhookDelivery
	for _, d := range f.deliveries {
		switch d.Status {
		case types.DeliveryRetrying:
			if d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
				out = append(out, d)
			}
		case types.DeliveryPending:
			if d.CreatedAt.Before(graceBefore) {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (f *fakeDeliveryStorage) ListDeliveriesByTenant(_ context.Context, tenantID string, _ uint64) ([]*types.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.WebhookDelivery
	for _, d := range f.deliveries {
		if tenantID == "" || d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeliveryStorage) markResult(deliveryID string, attempt int, mutate func(*types.WebhookDelivery)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[deliveryID]
	if !ok || d.Status.Terminal() || d.Attempts != attempt {
		return storage.ErrNotFound
	}
	mutate(d)
	d.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDeliveryStorage) MarkDeliveryDelivered(_ context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, at time.Time) error {
	return f.markResult(deliveryID, attempt, func(d *types.WebhookDelivery) {
		d.Status = types.DeliveryDelivered
		d.Response = resp
		d.DeliveredAt = &at
		d.NextRetryAt = nil
	})
}

func (f *fakeDeliveryStorage) MarkDeliveryRetrying(_ context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string, nextRetryAt time.Time) error {
	return f.markResult(deliveryID, attempt, func(d *types.WebhookDelivery) {
		d.Status = types.DeliveryRetrying
		d.Response = resp
		d.Error = errMsg
		d.NextRetryAt = &nextRetryAt
	})
}

func (f *fakeDeliveryStorage) MarkDeliveryFailed(_ context.Context, deliveryID string, attempt int, resp *types.DeliveryResponse, errMsg string) error {
	return f.markResult(deliveryID, attempt, func(d *types.WebhookDelivery) {
		d.Status = types.DeliveryFailed
		d.Response = resp
		d.Error = errMsg
		d.NextRetryAt = nil
	})
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(tenantID, event string, _ json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, tenantID+"/"+event)
}

func newTestService(s StorageInterface, notifier NotifierInterface) *Service {
	cfg := Config{
		MaxAttempts:     5,
		BackoffBase:     time.Millisecond,
		BackoffFactor:   2,
		BackoffCap:      time.Second,
		AttemptTimeout:  time.Second,
		PollInterval:    time.Second,
		PollBatchSize:   50,
		MaxResponseSize: 1000,
	}
	return NewService(s, tasks.NewSyncRunner(), notifier, cfg, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func (f *fakeDeliveryStorage) delivery(t *testing.T, id string) *types.WebhookDelivery {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		t.Fatalf("delivery %s not found", id)
	}
	clone := *d
	return &clone
}

func TestServicePublishAndDeliver(t *testing.T) {
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Header.Get("X-Webhook-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	notifier := &fakeNotifier{}
	service := newTestService(fake, notifier)

	fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: "endpoint-secret-0123", Events: []string{"booking.created"}, IsActive: true,
	})

	err := service.Publish(context.Background(), "tenant-1", "booking.created", map[string]any{"id": "b-1"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(received) != 1 || received[0] != "booking.created" {
		t.Fatalf("endpoint received %v", received)
	}

	deliveries, _ := fake.ListDeliveriesByTenant(context.Background(), "tenant-1", 10)
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.Status != types.DeliveryDelivered || d.Attempts != 1 || d.DeliveredAt == nil {
		t.Errorf("delivery state = %s attempts=%d", d.Status, d.Attempts)
	}

	if len(notifier.events) != 1 || notifier.events[0] != "tenant-1/booking.created" {
		t.Errorf("notifier events = %v", notifier.events)
	}
}

func TestServicePublishSkipsUnsubscribedAndInactive(t *testing.T) {
	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: "http://unused.invalid", Secret: "endpoint-secret-0123",
		Events: []string{"other.event"}, IsActive: true,
	})
	fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: "http://unused.invalid", Secret: "endpoint-secret-0123",
		Events: []string{"booking.created"}, IsActive: false,
	})
	fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-2", URL: "http://unused.invalid", Secret: "endpoint-secret-0123",
		Events: []string{"*"}, IsActive: true,
	})

	if err := service.Publish(context.Background(), "tenant-1", "booking.created", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deliveries, _ := fake.ListDeliveriesByTenant(context.Background(), "", 10)
	if len(deliveries) != 0 {
		t.Errorf("expected no deliveries, got %d", len(deliveries))
	}
}

func TestServiceRetriesUntilSuccess(t *testing.T) {
	// Four failures, then success: the delivery must end up delivered on
	// the fifth and final attempt.
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 4 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	endpoint, _ := fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: "endpoint-secret-0123", Events: []string{"*"}, IsActive: true,
	})
	created, _ := fake.CreateDelivery(context.Background(), &types.WebhookDelivery{
		EndpointID: endpoint.ID, TenantID: "tenant-1", Event: "booking.created",
		Payload: json.RawMessage(`{}`), MaxAttempts: 5,
	})

	// Drive attempts the way the scheduler would.
	for i := 0; i < 5; i++ {
		service.Attempt(context.Background(), created.ID)
		if fake.delivery(t, created.ID).Status.Terminal() {
			break
		}
	}

	d := fake.delivery(t, created.ID)
	if d.Status != types.DeliveryDelivered {
		t.Fatalf("status = %s, want delivered (error: %s)", d.Status, d.Error)
	}
	if d.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", d.Attempts)
	}
	if calls != 5 {
		t.Errorf("endpoint saw %d calls, want 5", calls)
	}
}

func TestServiceFailsAfterAttemptBudget(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	endpoint, _ := fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: "endpoint-secret-0123", Events: []string{"*"}, IsActive: true,
	})
	created, _ := fake.CreateDelivery(context.Background(), &types.WebhookDelivery{
		EndpointID: endpoint.ID, TenantID: "tenant-1", Event: "booking.created",
		Payload: json.RawMessage(`{}`), MaxAttempts: 5,
	})

	// More sweeps than the budget allows; the extra ones must be no-ops.
	for i := 0; i < 8; i++ {
		service.Attempt(context.Background(), created.ID)
	}

	d := fake.delivery(t, created.ID)
	if d.Status != types.DeliveryFailed {
		t.Fatalf("status = %s, want failed", d.Status)
	}
	if d.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", d.Attempts)
	}
	if calls != 5 {
		t.Errorf("endpoint saw %d calls, want exactly 5", calls)
	}
	if d.Error == "" {
		t.Error("terminal failure carries no error message")
	}
}

func TestServiceAttemptSkipsDisabledEndpoint(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	endpoint, _ := fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: "endpoint-secret-0123", Events: []string{"*"}, IsActive: true,
	})
	created, _ := fake.CreateDelivery(context.Background(), &types.WebhookDelivery{
		EndpointID: endpoint.ID, TenantID: "tenant-1", Event: "booking.created",
		Payload: json.RawMessage(`{}`), MaxAttempts: 5,
	})

	// Disabled after queueing, before dispatch.
	fake.SetEndpointActive(context.Background(), "tenant-1", endpoint.ID, false)

	service.Attempt(context.Background(), created.ID)

	d := fake.delivery(t, created.ID)
	if d.Status != types.DeliveryFailed {
		t.Errorf("status = %s, want failed", d.Status)
	}
	if calls != 0 {
		t.Errorf("disabled endpoint still received %d calls", calls)
	}
}

func TestServiceSignsDeliveries(t *testing.T) {
	secret := "endpoint-secret-0123"

	var gotSignature string
	var gotEnvelope envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading body: %v", err)
		}
		if err := json.Unmarshal(body, &gotEnvelope); err != nil {
			t.Errorf("decoding envelope: %v", err)
		}
		if want := Signature(secret, body); gotSignature != want {
			t.Errorf("signature mismatch: got %q, want %q", gotSignature, want)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: secret, Events: []string{"*"}, IsActive: true,
	})

	if err := service.Publish(context.Background(), "tenant-1", "booking.created", map[string]any{"id": "b-9"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if gotSignature == "" {
		t.Fatal("no signature header received")
	}
	if gotEnvelope.Event != "booking.created" {
		t.Errorf("envelope event = %q", gotEnvelope.Event)
	}
	if gotEnvelope.Timestamp.IsZero() {
		t.Error("envelope timestamp missing")
	}
}

func TestSchedulerSweepsDueDeliveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fake := newFakeDeliveryStorage()
	service := newTestService(fake, &fakeNotifier{})

	endpoint, _ := fake.CreateEndpoint(context.Background(), &types.WebhookEndpoint{
		TenantID: "tenant-1", URL: server.URL, Secret: "endpoint-secret-0123", Events: []string{"*"}, IsActive: true,
	})

	// A retrying delivery whose next attempt is due.
	created, _ := fake.CreateDelivery(context.Background(), &types.WebhookDelivery{
		EndpointID: endpoint.ID, TenantID: "tenant-1", Event: "booking.created",
		Payload: json.RawMessage(`{}`), MaxAttempts: 5,
	})
	past := time.Now().Add(-time.Minute)
	fake.mu.Lock()
	fake.deliveries[created.ID].Status = types.DeliveryRetrying
	fake.deliveries[created.ID].Attempts = 1
	fake.deliveries[created.ID].NextRetryAt = &past
	fake.mu.Unlock()

	scheduler := NewScheduler(fake, service, tasks.NewSyncRunner(), service.config, tracing.NewNoopTracer(), logging.NewNoopLogger())
	scheduler.sweep(context.Background())

	d := fake.delivery(t, created.ID)
	if d.Status != types.DeliveryDelivered {
		t.Errorf("status after sweep = %s, want delivered", d.Status)
	}
	if d.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", d.Attempts)
	}
}
