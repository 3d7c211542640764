// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

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

type createKeyRequest struct {
	Name      string     `json:"name" validate:"required,min=1,max=100"`
	ScopeType string     `json:"scope_type" validate:"required,oneof=full_access read_only booking_management custom"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	TenantID  string     `json:"tenant_id,omitempty"`
}

// createKeyResponse is the only place a raw key ever appears.
type createKeyResponse struct {
	Key    *types.APIKey `json:"key"`
	RawKey string        `json:"raw_key"`
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
	admin := a.policy.Require(policy.Rule{
		AllowedRoles: []types.Role{types.RoleTenantAdmin},
	})

	mux.With(admin).Post("/api/v0/api-keys", a.handleCreate)
	mux.With(admin).Get("/api/v0/api-keys", a.handleList)
	mux.With(admin).Delete("/api/v0/api-keys/{id}", a.handleRevoke)
}

// requireSession rejects API key callers: keys never mint or revoke keys.
func (a *API) requireSession(ctx context.Context, w http.ResponseWriter) bool {
	if access.FromContext(ctx).Method == access.AuthMethodAPIKey {
		a.writeResponse(w, http.StatusForbidden, types.Response{
			Message: "API keys cannot manage API keys",
			Status:  http.StatusForbidden,
		})
		return false
	}
	return true
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "apikeys.API.handleCreate")
	defer span.End()

	if !a.requireSession(ctx, w) {
		return
	}

	var req createKeyRequest
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

	scopeType := types.ScopeType(req.ScopeType)
	if scopeType == types.ScopeTypeCustom && len(req.Scopes) == 0 {
		a.writeResponse(w, http.StatusBadRequest, types.Response{
			Message: "custom keys require at least one scope",
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

	key, rawKey, err := a.service.CreateKey(ctx, tenantID, req.Name, scopeType, req.Scopes, req.ExpiresAt)
	if err != nil {
		a.logger.Errorf("unable to create api key: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to create api key",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.recorder.RecordCreate(ctx, a.auditRecord(ctx, r, key.ID), keyDocument(key))

	a.writeResponse(w, http.StatusCreated, types.Response{
		Data:   createKeyResponse{Key: key, RawKey: rawKey},
		Status: http.StatusCreated,
	})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "apikeys.API.handleList")
	defer span.End()

	if !a.requireSession(ctx, w) {
		return
	}

	tenantID, _ := policy.TenantFilterFromContext(ctx)

	keys, err := a.service.ListKeys(ctx, tenantID)
	if err != nil {
		a.logger.Errorf("unable to list api keys: %v", err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to list api keys",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   keys,
		Status: http.StatusOK,
	})
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "apikeys.API.handleRevoke")
	defer span.End()

	if !a.requireSession(ctx, w) {
		return
	}

	tenantID, _ := policy.TenantFilterFromContext(ctx)
	keyID := chi.URLParam(r, "id")

	if err := a.service.RevokeKey(ctx, tenantID, keyID); err != nil {
		if err == storage.ErrNotFound {
			a.writeResponse(w, http.StatusNotFound, types.Response{
				Message: "api key not found",
				Status:  http.StatusNotFound,
			})
			return
		}
		a.logger.Errorf("unable to revoke api key %s: %v", keyID, err)
		a.writeResponse(w, http.StatusInternalServerError, types.Response{
			Message: "unable to revoke api key",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	a.recorder.RecordDelete(ctx, a.auditRecord(ctx, r, keyID), map[string]any{"id": keyID})

	a.writeResponse(w, http.StatusOK, types.Response{
		Message: "api key revoked",
		Status:  http.StatusOK,
	})
}

func (a *API) resolveTenant(ctx context.Context, explicit string) (string, bool) {
	if tenantID, ok := policy.TenantFilterFromContext(ctx); ok && tenantID != "" {
		return tenantID, true
	}
	if explicit != "" {
		return explicit, true
	}
	return "", false
}

func (a *API) auditRecord(ctx context.Context, r *http.Request, documentID string) audit.Record {
	ac := access.FromContext(ctx)
	tenantID, _ := policy.TenantFilterFromContext(ctx)

	return audit.Record{
		Collection: "api_keys",
		DocumentID: documentID,
		UserID:     ac.PrincipalID,
		TenantID:   tenantID,
		Metadata:   audit.MetadataFromRequest(r),
	}
}

// keyDocument is the audit snapshot of a key. The hash never leaves storage.
func keyDocument(k *types.APIKey) map[string]any {
	return map[string]any{
		"id":         k.ID,
		"tenant_id":  k.TenantID,
		"name":       k.Name,
		"key_prefix": k.KeyPrefix,
		"scope_type": string(k.ScopeType),
		"scopes":     k.Scopes,
		"is_active":  k.IsActive,
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
