// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package monitoring

type MonitorInterface interface {
	GetService() string
	SetResponseTimeMetric(map[string]string, float64) error
	SetDependencyAvailability(map[string]string, float64) error
	IncrementWebhookDelivery(map[string]string) error
	IncrementAuditWriteFailure() error
}
