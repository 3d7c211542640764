// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package audit

import (
	"context"

	"github.com/rentworks/access-service/internal/types"
)

type ServiceInterface interface {
	RecordCreate(ctx context.Context, rec Record, doc map[string]any)
	RecordUpdate(ctx context.Context, rec Record, before, after map[string]any)
	RecordDelete(ctx context.Context, rec Record, doc map[string]any)
	ListEntries(ctx context.Context, tenantID string, limit uint64) ([]*types.AuditLogEntry, error)
	DeleteEntry(ctx context.Context, id, actorID string) error
}

type StorageInterface interface {
	CreateAuditEntry(ctx context.Context, entry *types.AuditLogEntry) (*types.AuditLogEntry, error)
	ListAuditEntries(ctx context.Context, tenantID string, limit uint64) ([]*types.AuditLogEntry, error)
	DeleteAuditEntry(ctx context.Context, id string) error
}
