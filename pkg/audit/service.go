// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package audit records what changed, by whom, for every mutating operation.
// Entries are persisted off the request path: a failure to write an audit
// entry is logged and counted, never surfaced to the caller.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

// Record identifies the actor and the document an entry is about.
type Record struct {
	Collection string
	DocumentID string
	UserID     string
	TenantID   string
	Metadata   types.RequestMetadata
}

type Service struct {
	storage StorageInterface
	runner  tasks.RunnerInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

// MetadataFromRequest captures the request attributes kept on every entry.
// The leftmost X-Forwarded-For hop wins over the socket address.
func MetadataFromRequest(r *http.Request) types.RequestMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return types.RequestMetadata{
		IP:        ip,
		UserAgent: r.Header.Get("User-Agent"),
		Referer:   r.Header.Get("Referer"),
	}
}

// RecordCreate stores the full document snapshot for a creation.
func (s *Service) RecordCreate(ctx context.Context, rec Record, doc map[string]any) {
	_, span := s.tracer.Start(ctx, "audit.Service.RecordCreate")
	defer span.End()

	s.persist(rec, types.AuditCreate, types.AuditChanges{Document: doc})
}

// RecordUpdate stores a field level diff. The diff is computed synchronously
// so callers may mutate the snapshots afterwards; persistence still happens
// in the background. When the pre-image is unavailable the post-image is
// recorded on its own rather than dropping the entry.
func (s *Service) RecordUpdate(ctx context.Context, rec Record, before, after map[string]any) {
	_, span := s.tracer.Start(ctx, "audit.Service.RecordUpdate")
	defer span.End()

	if before == nil {
		s.persist(rec, types.AuditUpdate, types.AuditChanges{After: after})
		return
	}

	changedBefore, changedAfter := Diff(before, after)
	s.persist(rec, types.AuditUpdate, types.AuditChanges{Before: changedBefore, After: changedAfter})
}

// RecordDelete stores the full document snapshot as it was before deletion.
func (s *Service) RecordDelete(ctx context.Context, rec Record, doc map[string]any) {
	_, span := s.tracer.Start(ctx, "audit.Service.RecordDelete")
	defer span.End()

	s.persist(rec, types.AuditDelete, types.AuditChanges{Document: doc})
}

func (s *Service) persist(rec Record, action types.AuditAction, changes types.AuditChanges) {
	entry := &types.AuditLogEntry{
		Action:     action,
		Collection: rec.Collection,
		DocumentID: rec.DocumentID,
		UserID:     rec.UserID,
		TenantID:   rec.TenantID,
		Changes:    changes,
		Metadata:   rec.Metadata,
	}

	err := s.runner.Submit("audit.persist", func(ctx context.Context) {
		if _, err := s.storage.CreateAuditEntry(ctx, entry); err != nil {
			s.logger.Errorf("unable to persist audit entry for %s/%s: %v", rec.Collection, rec.DocumentID, err)
			_ = s.monitor.IncrementAuditWriteFailure()
		}
	})
	if err != nil {
		_ = s.monitor.IncrementAuditWriteFailure()
	}
}

func (s *Service) ListEntries(ctx context.Context, tenantID string, limit uint64) ([]*types.AuditLogEntry, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Service.ListEntries")
	defer span.End()

	return s.storage.ListAuditEntries(ctx, tenantID, limit)
}

// DeleteEntry purges a single entry. Reserved for platform operators, and
// itself leaves a trace in the security log.
func (s *Service) DeleteEntry(ctx context.Context, id, actorID string) error {
	ctx, span := s.tracer.Start(ctx, "audit.Service.DeleteEntry")
	defer span.End()

	if err := s.storage.DeleteAuditEntry(ctx, id); err != nil {
		return err
	}

	s.logger.Security().AuditEntryPurged(id, actorID)

	return nil
}

func NewService(storage StorageInterface, runner tasks.RunnerInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Service {
	return &Service{
		storage: storage,
		runner:  runner,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}
