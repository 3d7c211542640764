// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package access builds the per request AccessContext that every downstream
// authorization decision reads. Resolution order is fixed: session principal
// first, then API key, otherwise anonymous.
package access

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rentworks/access-service/internal/identity"
	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

type Builder struct {
	storage       StorageInterface
	authenticator AuthenticatorInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

// ForSession resolves a session principal into an AccessContext. Unknown
// users degrade to anonymous rather than failing the request; the upstream
// proxy may race user deletion.
func (b *Builder) ForSession(ctx context.Context, userID string) (AccessContext, error) {
	ctx, span := b.tracer.Start(ctx, "access.Builder.ForSession")
	defer span.End()

	user, err := b.storage.GetUserByID(ctx, userID)
	if err != nil {
		if err == storage.ErrNotFound {
			b.logger.Security().AuthenticationFailure("session", "unknown user id")
			return Anonymous(), nil
		}
		return Anonymous(), err
	}

	tenantID := ResolveTenantID(user)
	b.logger.Security().AuthenticationSuccess("session", user.ID, tenantID)

	return AccessContext{
		TenantID:    tenantID,
		Role:        user.Role,
		Method:      AuthMethodSession,
		PrincipalID: user.ID,
	}, nil
}

// ForAPIKey resolves a raw API key into an AccessContext. Scope expansion
// happened during authentication, so policy evaluation downstream stays a
// pure membership check.
func (b *Builder) ForAPIKey(ctx context.Context, rawKey string) (AccessContext, error) {
	ctx, span := b.tracer.Start(ctx, "access.Builder.ForAPIKey")
	defer span.End()

	cred, err := b.authenticator.Authenticate(ctx, rawKey)
	if err != nil {
		return Anonymous(), err
	}

	return AccessContext{
		TenantID:    cred.Tenant.ID,
		Method:      AuthMethodAPIKey,
		PrincipalID: cred.Key.ID,
		Scopes:      cred.Scopes,
		ScopeType:   cred.Key.ScopeType,
	}, nil
}

// ExtractKey pulls a raw API key from the request. The X-API-Key header
// takes precedence over an Authorization bearer token; an empty string
// means no key was presented.
func ExtractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}

	return ""
}

// HTTPMiddleware attaches the AccessContext for the request. A request that
// presents credentials which fail to validate is rejected here with a 401;
// a request that presents none proceeds as anonymous and is judged by the
// per route policy instead.
func (b *Builder) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := b.tracer.Start(r.Context(), "access.Builder.HTTPMiddleware")
		defer span.End()

		if userID, ok := identity.UserIDFromContext(ctx); ok {
			ac, err := b.ForSession(ctx, userID)
			if err != nil {
				b.logger.Errorf("unable to resolve session user %s: %v", userID, err)
				writeError(w, http.StatusInternalServerError, "unable to resolve session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccessContext(ctx, ac)))
			return
		}

		if rawKey := ExtractKey(r); rawKey != "" {
			ac, err := b.ForAPIKey(ctx, rawKey)
			if err != nil {
				if b.authenticator.IsAuthenticationError(err) {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				b.logger.Errorf("unable to authenticate api key: %v", err)
				writeError(w, http.StatusInternalServerError, "unable to authenticate")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccessContext(ctx, ac)))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccessContext(ctx, Anonymous())))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Response{
		Message: message,
		Status:  status,
	})
}

func NewBuilder(storage StorageInterface, authenticator AuthenticatorInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Builder {
	return &Builder{
		storage:       storage,
		authenticator: authenticator,
		tracer:        tracer,
		monitor:       monitor,
		logger:        logger,
	}
}
