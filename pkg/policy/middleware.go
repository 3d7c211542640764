// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package policy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
)

type decisionContextKey struct{}

var decisionKey decisionContextKey

// DecisionFromContext returns the decision stashed by the Require middleware.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}

// TenantFilterFromContext returns the tenant id handlers must scope their
// reads and writes by. Empty with ok=true means an unscoped (super admin)
// caller.
func TenantFilterFromContext(ctx context.Context) (string, bool) {
	d, ok := DecisionFromContext(ctx)
	if !ok || !d.Allowed {
		return "", false
	}
	return d.TenantID, true
}

type Middleware struct {
	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

// Require guards a route with the given rule. Anonymous callers that fail
// get a 401, authenticated callers that fail get a 403; allowed callers
// proceed with the Decision available in the request context.
func (m *Middleware) Require(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "policy.Middleware.Require")
			defer span.End()

			ac := access.FromContext(ctx)
			decision := Evaluate(ac, rule)
			if !decision.Allowed {
				status := http.StatusForbidden
				if !ac.Authenticated() {
					status = http.StatusUnauthorized
				}

				m.logger.Security().AuthorizationDenied(ac.PrincipalID, rule.RequiredScope, decision.Reason)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(types.Response{
					Message: decision.Reason,
					Status:  status,
				})
				return
			}

			ctx = context.WithValue(ctx, decisionKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func NewMiddleware(tracer tracing.TracingInterface, logger logging.LoggerInterface) *Middleware {
	return &Middleware{
		tracer: tracer,
		logger: logger,
	}
}
