// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/rentworks/access-service/internal/config"
	"github.com/rentworks/access-service/internal/db"
	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring/prometheus"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/version"
	"github.com/rentworks/access-service/pkg/apikeys"
	"github.com/rentworks/access-service/pkg/audit"
	"github.com/rentworks/access-service/pkg/notifications"
	"github.com/rentworks/access-service/pkg/tenant"
	"github.com/rentworks/access-service/pkg/web"
	"github.com/rentworks/access-service/pkg/webhooks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the web server",
	Long:  `Launch the web application, list of environment variables is available in the readme`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	specs := new(config.EnvSpec)
	if err := envconfig.Process("", specs); err != nil {
		panic(fmt.Errorf("issues with environment sourcing: %s", err))
	}

	logger := logging.NewLogger(specs.LogLevel)
	logger.Debugf("env vars: %v", specs)
	defer logger.Sync()

	monitor := prometheus.NewMonitor("access-service", logger)
	tracer := tracing.NewTracer(tracing.NewConfig(specs.TracingEnabled, specs.OtelGRPCEndpoint, specs.OtelHTTPEndpoint, logger))

	dbConfig := db.Config{
		DSN:             specs.DSN,
		MaxConns:        specs.DBMaxConns,
		MinConns:        specs.DBMinConns,
		MaxConnLifetime: specs.DBMaxConnLifetime,
		MaxConnIdleTime: specs.DBMaxConnIdleTime,
		TracingEnabled:  specs.TracingEnabled,
	}
	dbClient, err := db.NewDBClient(dbConfig, tracer, monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to create database client: %v", err)
	}
	defer dbClient.Close()
	s := storage.NewStorage(dbClient, tracer, monitor, logger)

	runner := tasks.NewRunner(specs.TaskPoolSize, specs.TaskQueueLength, logger)

	webhookConfig := webhooks.Config{
		MaxAttempts:     specs.WebhookMaxAttempts,
		BackoffBase:     specs.WebhookBackoffBase,
		BackoffFactor:   specs.WebhookBackoffFactor,
		BackoffCap:      specs.WebhookBackoffCap,
		AttemptTimeout:  specs.WebhookAttemptTimeout,
		PollInterval:    specs.WebhookPollInterval,
		PollBatchSize:   specs.WebhookPollBatchSize,
		MaxResponseSize: specs.WebhookMaxResponseSize,
	}

	registry := notifications.NewRegistry(logger)
	apiKeyService := apikeys.NewService(s, runner, tracer, monitor, logger)
	auditService := audit.NewService(s, runner, tracer, monitor, logger)
	tenantService := tenant.NewService(s, tracer, monitor, logger)
	webhookService := webhooks.NewService(s, runner, registry, webhookConfig, tracer, monitor, logger)

	scheduler := webhooks.NewScheduler(s, webhookService, runner, webhookConfig, tracer, logger)
	scheduler.Start()

	router := web.NewRouter(
		web.RouterConfig{
			Version:  version.Version,
			Storage:  s,
			DBClient: dbClient,
			Runner:   runner,
			APIKeys:  apiKeyService,
			Audit:    auditService,
			Tenants:  tenantService,
			Webhooks: webhookService,
			Registry: registry,
		},
		tracer,
		monitor,
		logger,
	)
	logger.Infof("Starting HTTP server on port %v", specs.Port)

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%v", specs.Port),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	var serverError error
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Security().SystemStartup()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError = fmt.Errorf("server error: %w", err)
			c <- os.Interrupt
		}
	}()

	<-c

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Security().SystemShutdown()
	scheduler.Stop()
	if err := runner.Shutdown(ctx); err != nil {
		logger.Errorf("background runner shutdown error: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		serverError = fmt.Errorf("server shutdown error: %w", err)
	}

	return serverError
}
