// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"errors"
)

// Authentication failures. Each is terminal for the request that presented
// the key; none of them is ever retried by the service.
var (
	ErrMissingKey     = errors.New("API key required")
	ErrInvalidFormat  = errors.New("invalid API key format")
	ErrUnknownKey     = errors.New("invalid API key")
	ErrKeyExpired     = errors.New("API key expired")
	ErrTenantDisabled = errors.New("API access disabled")
)

// IsAuthenticationError reports whether err maps to a 401 response.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrMissingKey) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrUnknownKey) ||
		errors.Is(err, ErrKeyExpired) ||
		errors.Is(err, ErrTenantDisabled)
}
