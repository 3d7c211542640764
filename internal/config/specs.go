// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

// EnvSpec is the basic environment configuration setup needed for the app to start
type EnvSpec struct {
	OtelGRPCEndpoint string `envconfig:"otel_grpc_endpoint"`
	OtelHTTPEndpoint string `envconfig:"otel_http_endpoint"`
	TracingEnabled   bool   `envconfig:"tracing_enabled" default:"true"`

	LogLevel string `envconfig:"log_level" default:"error"`
	Debug    bool   `envconfig:"debug" default:"false"`

	Port int `envconfig:"port" default:"8080"`

	DSN string `envconfig:"DSN" required:"true"`

	DBMaxConns        int32         `envconfig:"db_max_conns" default:"25"`
	DBMinConns        int32         `envconfig:"db_min_conns" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"db_max_conn_idle_time" default:"30m"`

	// Webhook delivery knobs. The retry profile is tuned per environment.
	WebhookMaxAttempts     int           `envconfig:"webhook_max_attempts" default:"5"`
	WebhookBackoffBase     time.Duration `envconfig:"webhook_backoff_base" default:"30s"`
	WebhookBackoffFactor   float64       `envconfig:"webhook_backoff_factor" default:"2"`
	WebhookBackoffCap      time.Duration `envconfig:"webhook_backoff_cap" default:"1h"`
	WebhookAttemptTimeout  time.Duration `envconfig:"webhook_attempt_timeout" default:"10s"`
	WebhookPollInterval    time.Duration `envconfig:"webhook_poll_interval" default:"15s"`
	WebhookPollBatchSize   int           `envconfig:"webhook_poll_batch_size" default:"50"`
	WebhookMaxResponseSize int           `envconfig:"webhook_max_response_size" default:"1000"`

	TaskPoolSize    int `envconfig:"task_pool_size" default:"32"`
	TaskQueueLength int `envconfig:"task_queue_length" default:"1024"`
}
