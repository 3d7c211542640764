// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package notifications is an in-process fanout for tenant events. Webhook
// delivery covers external consumers; this registry serves in-process ones
// such as SSE bridges and test probes, without touching storage.
package notifications

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentworks/access-service/internal/logging"
)

type Notification struct {
	TenantID string          `json:"tenant_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	At       time.Time       `json:"at"`
}

// Subscriber receives notifications for one tenant. Implementations must
// not block; slow consumers should buffer internally.
type Subscriber func(n Notification)

type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[string]Subscriber
	logger logging.LoggerInterface
}

// Register subscribes to a tenant's events and returns the subscription id
// used to deregister.
func (r *Registry) Register(tenantID string, sub Subscriber) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[tenantID] == nil {
		r.subs[tenantID] = make(map[string]Subscriber)
	}
	r.subs[tenantID][id] = sub

	return id
}

func (r *Registry) Deregister(tenantID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs[tenantID], id)
	if len(r.subs[tenantID]) == 0 {
		delete(r.subs, tenantID)
	}
}

// Notify delivers the event to every subscriber of the tenant. Panicking
// subscribers are dropped so one bad consumer cannot take the fanout down.
func (r *Registry) Notify(tenantID, event string, data json.RawMessage) {
	n := Notification{
		TenantID: tenantID,
		Event:    event,
		Data:     data,
		At:       time.Now().UTC(),
	}

	r.mu.RLock()
	subs := make(map[string]Subscriber, len(r.subs[tenantID]))
	for id, sub := range r.subs[tenantID] {
		subs[id] = sub
	}
	r.mu.RUnlock()

	for id, sub := range subs {
		r.dispatch(tenantID, id, sub, n)
	}
}

func (r *Registry) dispatch(tenantID, id string, sub Subscriber, n Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("notification subscriber %s panicked, removing: %v", id, rec)
			r.Deregister(tenantID, id)
		}
	}()

	sub(n)
}

func NewRegistry(logger logging.LoggerInterface) *Registry {
	return &Registry{
		subs:   make(map[string]map[string]Subscriber),
		logger: logger,
	}
}
