// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
	"github.com/rentworks/access-service/pkg/audit"
	"github.com/rentworks/access-service/pkg/policy"
)

const (
	defaultDeliveryListLimit = 100
	maxDeliveryListLimit     = 500
)

type createEndpointRequest struct {
	URL      string   `json:"url" validate:"required,url"`
	Secret   string   `json:"secret" validate:"required,min=16"`
	Events   []string `json:"events" validate:"required,min=1,dive,required"`
	TenantID string   `json:"tenant_id,omitempty"`
}

type updateEndpointRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type publishRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data" validate:"required"`
}

type API struct {
	service  ServiceInterface
	recorder audit.ServiceInterface
	policy   *policy.Middleware
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	manage := a.policy.Require(policy.Rule{
		RequiredScope: types.ScopeWebhooksManage,
		AllowedRoles:  []types.Role{types.RoleTenantAdmin},
	})

	mux.With(manage).Post("/api/v0/webhooks", a.handleCreate)
	mux.With(manage).Get("/api/v0/webhooks", a.handleList)
	mux.With(manage).Patch("/api/v0/webhooks/{id}", a.handleUpdate)
	mux.With(manage).Delete("/api/v0/webhooks/{id}", a.handleDelete)
	mux.With(manage).Get("/api/v0/webhook-deliveries", a.handleListDeliveries)
	mux.With(manage).Post("/api/v0/events", a.handlePublish)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handleCreate")
	defer span.End()

	var req createEndpointRequest
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

	tenantID, ok := a.resolveTenant(ctx, req.TenantID)
	if !ok {
		a.writeResponse(w, http.StatusBadRequest, types.Response{
			Message: "tenant_id is required for unscoped callers",
			Status:  http.StatusBadRequest,
		})
		return
	}

	endpoint, err := a.service.CreateEndpoint(ctx, &types.WebhookEndpoint{
		TenantID: tenantID,
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: true,
	})
	if err != nil {
		a.logger.Errorf("unable to create webhook endpoint: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to create webhook endpoint",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.recorder.RecordCreate(ctx, auditRecord(ctx, r, endpoint.ID), endpointDocument(endpoint))

	a.writeResponse(w, http.StatusCreated, types.Response{
		Data:   endpoint,
		Status: http.StatusCreated,
	})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handleList")
	defer span.End()

	tenantID, _ := policy.TenantFilterFromContext(ctx)

	endpoints, err := a.service.ListEndpoints(ctx, tenantID)
	if err != nil {
		a.logger.Errorf("unable to list webhook endpoints: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to list webhook endpoints",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   endpoints,
		Status: http.StatusOK,
	})
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handleUpdate")
	defer span.End()

	var req updateEndpointRequest
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

	tenantID, _ := policy.TenantFilterFromContext(ctx)
	endpointID := chi.URLParam(r, "id")

	if err := a.service.SetEndpointActive(ctx, tenantID, endpointID, *req.IsActive); err != nil {
		a.respondStorageError(w, err, "unable to update webhook endpoint")
		return
	}

	a.recorder.RecordUpdate(ctx, auditRecord(ctx, r, endpointID),
		map[string]any{"is_active": !*req.IsActive},
		map[string]any{"is_active": *req.IsActive},
	)

	a.writeResponse(w, http.StatusOK, types.Response{
		Message: "webhook endpoint updated",
		Status:  http.StatusOK,
	})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handleDelete")
	defer span.End()

	tenantID, _ := policy.TenantFilterFromContext(ctx)
	endpointID := chi.URLParam(r, "id")

	if err := a.service.DeleteEndpoint(ctx, tenantID, endpointID); err != nil {
		a.respondStorageError(w, err, "unable to delete webhook endpoint")
		return
	}

	a.recorder.RecordDelete(ctx, auditRecord(ctx, r, endpointID), map[string]any{"id": endpointID})

	a.writeResponse(w, http.StatusOK, types.Response{
		Message: "webhook endpoint deleted",
		Status:  http.StatusOK,
	})
}

func (a *API) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handleListDeliveries")
	defer span.End()

	tenantID, _ := policy.TenantFilterFromContext(ctx)

	limit := uint64(defaultDeliveryListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			a.writeResponse(w, http.StatusBadRequest, types.Response{
				Message: "limit must be a positive integer",
				Status:  http.StatusBadRequest,
			})
			return
		}
		limit = min(parsed, maxDeliveryListLimit)
	}

	deliveries, err := a.service.ListDeliveries(ctx, tenantID, limit)
	if err != nil {
		a.logger.Errorf("unable to list deliveries: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to list deliveries",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   deliveries,
		Status: http.StatusOK,
	})
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "webhooks.API.handlePublish")
	defer span.End()

	var req publishRequest
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

	tenantID, ok := a.resolveTenant(ctx, "")
	if !ok {
		a.writeResponse(w, http.StatusBadRequest, types.Response{
			Message: "events can only be published in a tenant scope",
			Status:  http.StatusBadRequest,
		})
		return
	}

	if err := a.service.Publish(ctx, tenantID, req.Event, req.Data); err != nil {
		a.logger.Errorf("unable to publish event %s: %v", req.Event, err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to publish event",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusAccepted, types.Response{
		Message: "event accepted",
		Status:  http.StatusAccepted,
	})
}

// resolveTenant picks the tenant operations act on: scoped callers always
// use their own tenant, unscoped callers must name one.
func (a *API) resolveTenant(ctx context.Context, explicit string) (string, bool) {
	if tenantID, ok := policy.TenantFilterFromContext(ctx); ok && tenantID != "" {
		return tenantID, true
	}
	if explicit != "" {
		return explicit, true
	}
	return "", false
}

func auditRecord(ctx context.Context, r *http.Request, documentID string) audit.Record {
	ac := access.FromContext(ctx)
	tenantID, _ := policy.TenantFilterFromContext(ctx)

	return audit.Record{
		Collection: "webhook_endpoints",
		DocumentID: documentID,
		UserID:     ac.PrincipalID,
		TenantID:   tenantID,
		Metadata:   audit.MetadataFromRequest(r),
	}
}

func (a *API) respondStorageError(w http.ResponseWriter, err error, message string) {
	if err == storage.ErrNotFound {
		a.writeResponse(w, http.StatusNotFound, types.Response{
			Message: "webhook endpoint not found",
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

func endpointDocument(e *types.WebhookEndpoint) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"tenant_id": e.TenantID,
		"url":       e.URL,
		"events":    e.Events,
		"is_active": e.IsActive,
	}
}

func (a *API) writeResponse(w http.ResponseWriter, status int, resp types.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Errorf("unable to write response: %v", err)
	}
}

func NewAPI(service ServiceInterface, recorder audit.ServiceInterface, policyMiddleware *policy.Middleware, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	return &API{
		service:  service,
		recorder: recorder,
		policy:   policyMiddleware,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}
