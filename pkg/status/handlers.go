// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

type health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type API struct {
	version string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Get("/api/v0/status", a.alive)
	mux.Get("/api/v0/version", a.showVersion)
}

func (a *API) alive(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "status.API.alive")
	defer span.End()

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   health{Status: "ok", Version: a.version},
		Status: http.StatusOK,
	})
}

func (a *API) showVersion(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "status.API.showVersion")
	defer span.End()

	a.writeResponse(w, http.StatusOK, types.Response{
		Data:   map[string]string{"version": a.version},
		Status: http.StatusOK,
	})
}

func (a *API) writeResponse(w http.ResponseWriter, status int, resp types.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Errorf("unable to write response: %v", err)
	}
}

func NewAPI(version string, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	return &API{
		version: version,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}
