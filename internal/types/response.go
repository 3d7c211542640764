// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

// Response is the envelope returned by every JSON endpoint.
type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status"`
}
