// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package web

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rentworks/access-service/internal/db"
	"github.com/rentworks/access-service/internal/identity"
	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/pkg/access"
	"github.com/rentworks/access-service/pkg/apikeys"
	"github.com/rentworks/access-service/pkg/audit"
	"github.com/rentworks/access-service/pkg/metrics"
	"github.com/rentworks/access-service/pkg/notifications"
	"github.com/rentworks/access-service/pkg/policy"
	"github.com/rentworks/access-service/pkg/status"
	"github.com/rentworks/access-service/pkg/tenant"
	"github.com/rentworks/access-service/pkg/webhooks"
)

// RouterConfig bundles the services the router exposes. Everything is
// constructed in cmd/serve.go; the router only wires endpoints.
type RouterConfig struct {
	Version string

	Storage  storage.StorageInterface
	DBClient db.DBClientInterface
	Runner   tasks.RunnerInterface

	APIKeys  *apikeys.Service
	Audit    *audit.Service
	Tenants  *tenant.Service
	Webhooks *webhooks.Service
	Registry *notifications.Registry
}

func NewRouter(
	cfg RouterConfig,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) http.Handler {
	router := chi.NewMux()

	builder := access.NewBuilder(cfg.Storage, cfg.APIKeys, tracer, monitor, logger)
	policyMiddleware := policy.NewMiddleware(tracer, logger)

	middlewares := make(chi.Middlewares, 0)
	middlewares = append(
		middlewares,
		middleware.RequestID,
		monitoring.NewMiddleware(monitor, logger).ResponseTime(),
		middlewareCORS([]string{"*"}),
		identity.NewMiddleware(tracer, monitor, logger).HTTPMiddleware,
		builder.HTTPMiddleware,
		db.TransactionMiddleware(cfg.DBClient, logger),
	)

	router.Use(middlewares...)

	metrics.NewAPI(logger).RegisterEndpoints(router)
	status.NewAPI(cfg.Version, tracer, monitor, logger).RegisterEndpoints(router)
	tenant.NewAPI(cfg.Tenants, policyMiddleware, tracer, monitor, logger).RegisterEndpoints(router)
	apikeys.NewAPI(cfg.APIKeys, cfg.Audit, policyMiddleware, tracer, monitor, logger).RegisterEndpoints(router)
	audit.NewAPI(cfg.Audit, policyMiddleware, tracer, monitor, logger).RegisterEndpoints(router)
	webhooks.NewAPI(cfg.Webhooks, cfg.Audit, policyMiddleware, tracer, monitor, logger).RegisterEndpoints(router)

	return tracing.NewMiddleware(monitor, logger).OpenTelemetry(router)
}

func middlewareCORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", identity.HeaderName},
		MaxAge:         300,
	})
}
