// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package identity extracts the session principal forwarded by the platform's
// session-terminating proxy. Session authentication itself happens upstream;
// this service only consumes the result.
package identity

import (
	"context"
	"net/http"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tracing"
)

// HeaderName is the header carrying the authenticated session user id.
const HeaderName = "X-Authenticated-User-Id"

type contextKey struct{}

var userContextKey contextKey

// WithUserID returns a new context with the given session user ID attached.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserIDFromContext retrieves the session user ID from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userContextKey).(string)
	return id, ok && id != ""
}

type Middleware struct {
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewMiddleware(tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Middleware {
	return &Middleware{
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.tracer.Start(r.Context(), "identity.Middleware.HTTPMiddleware")
		defer span.End()

		if userID := r.Header.Get(HeaderName); userID != "" {
			ctx = WithUserID(ctx, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
