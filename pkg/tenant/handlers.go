// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
	"github.com/rentworks/access-service/pkg/policy"
)

type switchRequest struct {
	Tenant string `json:"tenant" validate:"required"`
}

type API struct {
	service  ServiceInterface
	policy   *policy.Middleware
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	authenticated := a.policy.Require(policy.Rule{})

	mux.With(authenticated).Get("/api/v0/tenants", a.handleList)
	mux.With(authenticated).Get("/api/v0/tenants/current", a.handleCurrent)
	mux.With(authenticated).Post("/api/v0/tenants/switch", a.handleSwitch)
}

// requireSessionUser rejects callers without a session principal. Tenant
// switching is meaningless for API keys, which are pinned to one tenant.
func (a *API) requireSessionUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	ac := access.FromContext(ctx)
	if ac.Method != access.AuthMethodSession {
		a.writeResponse(w, http.StatusForbidden, types.Response{
			Message: "a user session is required",
			Status:  http.StatusForbidden,
		})
		return "", false
	}
	return ac.PrincipalID, true
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleList")
	defer span.End()

	userID, ok := a.requireSessionUser(ctx, w)
	if !ok {
		return
	}

	tenants, err := a.service.ListAccessibleTenants(ctx, userID)
	if err != nil {
		a.logger.Errorf("unable to list tenants for user %s: %v", userID, err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to list tenants",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   tenants,
		Status: http.StatusOK,
	})
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleCurrent")
	defer span.End()

	ac := access.FromContext(ctx)
	if ac.TenantID == "" {
		a.writeResponse(w, http.StatusNotFound, types.Response{
			Message: "no tenant in the current context",
			Status:  http.StatusNotFound,
		})
		return
	}

	t, err := a.service.GetTenant(ctx, ac.TenantID)
	if err != nil {
		a.respondStorageError(w, err, "unable to load tenant")
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   t,
		Status: http.StatusOK,
	})
}

func (a *API) handleSwitch(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleSwitch")
	defer span.End()

	userID, ok := a.requireSessionUser(ctx, w)
	if !ok {
		return
	}

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeResponse(w, http.StatusBadRequest, types.Response{
			Message: "invalid request body",
			Status:  http.StatusBadRequest,
		})
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.writeResponse(w, http.StatusBadRequest, types.Response{
			Message: err.Error(),
			Status:  http.StatusBadRequest,
		})
		return
	}

	t, err := a.service.SwitchTenant(ctx, userID, req.Tenant)
	if err != nil {
		if err == ErrAccessDenied {
			a.writeResponse(w, http.StatusForbidden, types.Response{
				Message: err.Error(),
				Status:  http.StatusForbidden,
			})
			return
		}
		a.respondStorageError(w, err, "unable to switch tenant")
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   t,
		Status: http.StatusOK,
	})
}

func (a *API) respondStorageError(w http.ResponseWriter, err error, message string) {
	if err == storage.ErrNotFound {
		a.writeResponse(w, http.StatusNotFound, types.Response{
			Message: "tenant not found",
			Status:  http.StatusNotFound,
		})
		return
	}
	a.logger.Errorf("%s: %v", message, err)
	a.writeResponse(w, http.StatusInternalServerError, types.Response{
		Message: message,
		Status:  http.StatusInternalServerError,
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
		service:  service,
		policy:   policyMiddleware,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}
