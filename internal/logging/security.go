// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package logging

import (
	"go.uber.org/zap"
)

// SecurityLogger emits structured entries for security sensitive events so
// they can be shipped to the SIEM pipeline independently of application logs.
type SecurityLogger struct {
	l *zap.Logger
}

func (s *SecurityLogger) SystemStartup() {
	s.l.Info("system startup", zap.String("event", "system.startup"))
}

func (s *SecurityLogger) SystemShutdown() {
	s.l.Info("system shutdown", zap.String("event", "system.shutdown"))
}

func (s *SecurityLogger) AuthenticationSuccess(method, principalID, tenantID string) {
	s.l.Info("authentication success",
		zap.String("event", "authn.success"),
		zap.String("method", method),
		zap.String("principal_id", principalID),
		zap.String("tenant_id", tenantID),
	)
}

func (s *SecurityLogger) AuthenticationFailure(method, reason string) {
	s.l.Warn("authentication failure",
		zap.String("event", "authn.failure"),
		zap.String("method", method),
		zap.String("reason", reason),
	)
}

func (s *SecurityLogger) AuthorizationDenied(principalID, scope, reason string) {
	s.l.Warn("authorization denied",
		zap.String("event", "authz.denied"),
		zap.String("principal_id", principalID),
		zap.String("scope", scope),
		zap.String("reason", reason),
	)
}

func (s *SecurityLogger) APIKeyCreated(tenantID, keyID string) {
	s.l.Info("api key created",
		zap.String("event", "apikey.created"),
		zap.String("tenant_id", tenantID),
		zap.String("key_id", keyID),
	)
}

func (s *SecurityLogger) APIKeyRevoked(tenantID, keyID string) {
	s.l.Info("api key revoked",
		zap.String("event", "apikey.revoked"),
		zap.String("tenant_id", tenantID),
		zap.String("key_id", keyID),
	)
}

func (s *SecurityLogger) TenantSwitched(userID, tenantID string) {
	s.l.Info("tenant switched",
		zap.String("event", "tenant.switched"),
		zap.String("user_id", userID),
		zap.String("tenant_id", tenantID),
	)
}

func (s *SecurityLogger) AuditEntryPurged(entryID, actorID string) {
	s.l.Info("audit entry purged",
		zap.String("event", "audit.purged"),
		zap.String("entry_id", entryID),
		zap.String("actor_id", actorID),
	)
}
