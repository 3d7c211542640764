// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"math"
	"time"
)

// Backoff returns the wait before the next attempt after `attempt` failed
// tries: base * factor^(attempt-1), capped. The first retry therefore waits
// the base interval.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := time.Duration(float64(c.BackoffBase) * math.Pow(c.BackoffFactor, float64(attempt-1)))
	if wait > c.BackoffCap || wait <= 0 {
		return c.BackoffCap
	}
	return wait
}
