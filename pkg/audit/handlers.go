// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
	"github.com/rentworks/access-service/pkg/policy"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type API struct {
	service ServiceInterface
	policy  *policy.Middleware

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.With(a.policy.Require(policy.Rule{
		RequiredScope: types.ScopeAuditRead,
		AllowedRoles:  []types.Role{types.RoleTenantAdmin},
	})).Get("/api/v0/audit-logs", a.handleList)

	mux.With(a.policy.Require(policy.Rule{})).Delete("/api/v0/audit-logs/{id}", a.handleDelete)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "audit.API.handleList")
	defer span.End()

	tenantID, _ := policy.TenantFilterFromContext(ctx)

	limit := uint64(defaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			a.writeResponse(w, http.StatusBadRequest, types.Response{
				Message: "limit must be a positive integer",
				Status:  http.StatusBadRequest,
			})
			return
		}
		limit = min(parsed, maxListLimit)
	}

	entries, err := a.service.ListEntries(ctx, tenantID, limit)
	if err != nil {
		a.logger.Errorf("unable to list audit entries: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to list audit entries",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   entries,
		Status: http.StatusOK,
	})
}

// handleDelete purges one entry. The trail is immutable for every tenant
// facing caller, so only unscoped platform operators get past this check.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "audit.API.handleDelete")
	defer span.End()

	decision, _ := policy.DecisionFromContext(ctx)
	if !decision.Unscoped {
		a.writeResponse(w, http.StatusForbidden, types.Response{
			Message: "audit entries can only be purged by platform operators",
			Status:  http.StatusForbidden,
		})
		return
	}

	entryID := chi.URLParam(r, "id")
	actor := access.FromContext(ctx)

	if err := a.service.DeleteEntry(ctx, entryID, actor.PrincipalID); err != nil {
		if err == storage.ErrNotFound {
			a.writeResponse(w, http.StatusNotFound, types.Response{
				Message: "audit entry not found",
				Status:  http.StatusNotFound,
			})
			return
		}
		a.logger.Errorf("unable to delete audit entry %s: %v", entryID, err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to delete audit entry",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Message: "audit entry deleted",
		Status:  http.StatusOK,
	})
}

func (a *API) writeResponse(w http.ResponseWriter, status int, resp types.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Errorf("unable to write response: %v", err)
	}
}

func NewAPI(service ServiceInterface, policyMiddleware *policy.Middleware, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	return &API{
		service: service,
		policy:  policyMiddleware,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}
