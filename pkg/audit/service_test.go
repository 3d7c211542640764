// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

type fakeAuditStorage struct {
	entries   []*types.AuditLogEntry
	createErr error
	deleted   []string
}

func (f *fakeAuditStorage) CreateAuditEntry(_ context.Context, entry *types.AuditLogEntry) (*types.AuditLogEntry, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeAuditStorage) ListAuditEntries(_ context.Context, tenantID string, _ uint64) ([]*types.AuditLogEntry, error) {
	if tenantID == "" {
		return f.entries, nil
	}
	var out []*types.AuditLogEntry
	for _, e := range f.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStorage) DeleteAuditEntry(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type countingMonitor struct {
	monitoring.NoopMonitor
	auditFailures int
}

func (m *countingMonitor) IncrementAuditWriteFailure() error {
	m.auditFailures++
	return nil
}

func newTestService(s StorageInterface, monitor monitoring.MonitorInterface) *Service {
	return NewService(s, tasks.NewSyncRunner(), tracing.NewNoopTracer(), monitor, logging.NewNoopLogger())
}

func TestServiceRecordUpdate(t *testing.T) {
	fake := &fakeAuditStorage{}
	service := newTestService(fake, monitoring.NewNoopMonitor())

	rec := Record{
		Collection: "bookings",
		DocumentID: "b-1",
		UserID:     "user-1",
		TenantID:   "tenant-1",
	}

	before := map[string]any{"status": "draft", "price": 100, "updated_at": "2026-01-01"}
	after := map[string]any{"status": "confirmed", "price": 100, "updated_at": "2026-02-01"}

	service.RecordUpdate(context.Background(), rec, before, after)

	if len(fake.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fake.entries))
	}

	entry := fake.entries[0]
	if entry.Action != types.AuditUpdate || entry.Collection != "bookings" || entry.TenantID != "tenant-1" {
		t.Errorf("entry header wrong: %+v", entry)
	}
	if got := entry.Changes.Before["status"]; got != "draft" {
		t.Errorf("before.status = %v", got)
	}
	if got := entry.Changes.After["status"]; got != "confirmed" {
		t.Errorf("after.status = %v", got)
	}
	if _, ok := entry.Changes.Before["price"]; ok {
		t.Error("unchanged field recorded in diff")
	}
	if _, ok := entry.Changes.Before["updated_at"]; ok {
		t.Error("bookkeeping timestamp recorded in diff")
	}
}

func TestServiceRecordUpdateWithoutPreImage(t *testing.T) {
	fake := &fakeAuditStorage{}
	service := newTestService(fake, monitoring.NewNoopMonitor())

	after := map[string]any{"status": "confirmed"}
	service.RecordUpdate(context.Background(), Record{Collection: "bookings", DocumentID: "b-1"}, nil, after)

	if len(fake.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fake.entries))
	}
	entry := fake.entries[0]
	if entry.Changes.Before != nil {
		t.Errorf("expected no before snapshot, got %v", entry.Changes.Before)
	}
	if got := entry.Changes.After["status"]; got != "confirmed" {
		t.Errorf("after.status = %v", got)
	}
}

func TestServiceRecordCreateAndDeleteStoreFullDocument(t *testing.T) {
	fake := &fakeAuditStorage{}
	service := newTestService(fake, monitoring.NewNoopMonitor())

	doc := map[string]any{"id": "b-1", "status": "draft"}
	rec := Record{Collection: "bookings", DocumentID: "b-1", TenantID: "tenant-1"}

	service.RecordCreate(context.Background(), rec, doc)
	service.RecordDelete(context.Background(), rec, doc)

	if len(fake.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(fake.entries))
	}
	if fake.entries[0].Action != types.AuditCreate || fake.entries[1].Action != types.AuditDelete {
		t.Errorf("actions = %s, %s", fake.entries[0].Action, fake.entries[1].Action)
	}
	for _, entry := range fake.entries {
		if got := entry.Changes.Document["status"]; got != "draft" {
			t.Errorf("document snapshot missing: %v", entry.Changes)
		}
	}
}

func TestServicePersistFailureIsSwallowed(t *testing.T) {
	fake := &fakeAuditStorage{createErr: errors.New("db down")}
	monitor := &countingMonitor{}
	service := newTestService(fake, monitor)

	// Must not panic or surface the error.
	service.RecordCreate(context.Background(), Record{Collection: "bookings", DocumentID: "b-1"}, map[string]any{"id": "b-1"})

	if monitor.auditFailures != 1 {
		t.Errorf("audit write failures = %d, want 1", monitor.auditFailures)
	}
}

func TestServiceDeleteEntry(t *testing.T) {
	fake := &fakeAuditStorage{}
	service := newTestService(fake, monitoring.NewNoopMonitor())

	if err := service.DeleteEntry(context.Background(), "entry-1", "admin-1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "entry-1" {
		t.Errorf("deleted = %v", fake.deleted)
	}
}

func TestMetadataFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v0/webhooks", nil)
	r.RemoteAddr = "10.0.0.7:41234"
	r.Header.Set("User-Agent", "integration-bot/1.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	meta := MetadataFromRequest(r)
	if meta.IP != "203.0.113.9" {
		t.Errorf("IP = %q, want forwarded client address", meta.IP)
	}
	if meta.UserAgent != "integration-bot/1.0" {
		t.Errorf("UserAgent = %q", meta.UserAgent)
	}

	r.Header.Del("X-Forwarded-For")
	if meta := MetadataFromRequest(r); meta.IP != "10.0.0.7" {
		t.Errorf("IP = %q, want socket host", meta.IP)
	}
}
