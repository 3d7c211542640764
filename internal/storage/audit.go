// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/rentworks/access-service/internal/types"
)

// CreateAuditEntry appends an entry to the audit trail. The trail is append
// only: there is intentionally no update operation.
func (s *Storage) CreateAuditEntry(ctx context.Context, entry *types.AuditLogEntry) (*types.AuditLogEntry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateAuditEntry")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit entry ID: %w", err)
	}

	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var created types.AuditLogEntry
	var rawChanges, rawMetadata []byte
	err = s.db.Statement(ctx).
		Insert("audit_log").
		Columns("id", "action", "collection", "document_id", "user_id", "tenant_id", "changes", "metadata").
		Values(id.String(), entry.Action, entry.Collection, entry.DocumentID, entry.UserID, entry.TenantID, changes, metadata).
		Suffix("RETURNING id, action, collection, document_id, user_id, tenant_id, changes, metadata, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.Action, &created.Collection, &created.DocumentID, &created.UserID, &created.TenantID, &rawChanges, &rawMetadata, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	if err := json.Unmarshal(rawChanges, &created.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	if err := json.Unmarshal(rawMetadata, &created.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &created, nil
}

func (s *Storage) ListAuditEntries(ctx context.Context, tenantID string, limit uint64) ([]*types.AuditLogEntry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListAuditEntries")
	defer span.End()

	query := s.db.Statement(ctx).
		Select("id", "action", "collection", "document_id", "user_id", "tenant_id", "changes", "metadata", "created_at").
		From("audit_log").
		OrderBy("created_at DESC").
		Limit(limit)

	if tenantID != "" {
		query = query.Where(sq.Eq{"tenant_id": tenantID})
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditLogEntry
	for rows.Next() {
		var (
			entry                   types.AuditLogEntry
			rawChanges, rawMetadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Collection, &entry.DocumentID, &entry.UserID, &entry.TenantID, &rawChanges, &rawMetadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(rawChanges, &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
		if err := json.Unmarshal(rawMetadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

func (s *Storage) DeleteAuditEntry(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteAuditEntry")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("audit_log").
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete audit entry: %w", err)
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
