// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package apikeys implements tenant scoped API key credentials: generation,
// authentication and revocation. Raw keys are returned exactly once at
// creation time; the database only ever sees the SHA-256 digest.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

const (
	keyPrefix    = "tk_"
	minKeyLength = 35
	// displayPrefixLength is how much of the raw key is kept for listings.
	displayPrefixLength = 10
)

type Service struct {
	storage StorageInterface
	runner  tasks.RunnerInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

// HashKey returns the hex encoded SHA-256 digest of a raw key. It is the
// only representation of the key ever written to storage.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("unable to generate key material: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

// CreateKey mints a new key for the tenant and returns the stored record
// together with the raw key. The raw key cannot be recovered afterwards.
func (s *Service) CreateKey(ctx context.Context, tenantID, name string, scopeType types.ScopeType, scopes []string, expiresAt *time.Time) (*types.APIKey, string, error) {
	ctx, span := s.tracer.Start(ctx, "apikeys.Service.CreateKey")
	defer span.End()

	rawKey, err := generateRawKey()
	if err != nil {
		return nil, "", err
	}

	// Custom keys keep the caller supplied scope list; every other scope
	// type expands from its table and stores none.
	if scopeType != types.ScopeTypeCustom {
		scopes = nil
	}

	key := &types.APIKey{
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   HashKey(rawKey),
		KeyPrefix: rawKey[:displayPrefixLength],
		ScopeType: scopeType,
		Scopes:    scopes,
		IsActive:  true,
		ExpiresAt: expiresAt,
	}

	created, err := s.storage.CreateAPIKey(ctx, key)
	if err != nil {
		s.logger.Errorf("unable to create api key for tenant %s: %v", tenantID, err)
		return nil, "", err
	}

	s.logger.Security().APIKeyCreated(tenantID, created.ID)

	return created, rawKey, nil
}

func (s *Service) ListKeys(ctx context.Context, tenantID string) ([]*types.APIKey, error) {
	ctx, span := s.tracer.Start(ctx, "apikeys.Service.ListKeys")
	defer span.End()

	return s.storage.ListAPIKeysByTenant(ctx, tenantID)
}

func (s *Service) RevokeKey(ctx context.Context, tenantID, keyID string) error {
	ctx, span := s.tracer.Start(ctx, "apikeys.Service.RevokeKey")
	defer span.End()

	if err := s.storage.RevokeAPIKey(ctx, tenantID, keyID); err != nil {
		if err != storage.ErrNotFound {
			s.logger.Errorf("unable to revoke api key %s: %v", keyID, err)
		}
		return err
	}

	s.logger.Security().APIKeyRevoked(tenantID, keyID)

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
