// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package access

import (
	"context"

	"github.com/rentworks/access-service/internal/types"
)

type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodAPIKey  AuthMethod = "api_key"
	AuthMethodNone    AuthMethod = "none"
)

// AccessContext holds the resolved authorization facts for one request.
// It is built once by the Builder middleware and immutable afterwards.
type AccessContext struct {
	TenantID    string
	Role        types.Role
	Method      AuthMethod
	PrincipalID string
	Scopes      []string
	ScopeType   types.ScopeType
}

func (a AccessContext) Authenticated() bool {
	return a.Method == AuthMethodSession || a.Method == AuthMethodAPIKey
}

func (a AccessContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Anonymous is the context for requests that presented no valid credentials.
// Callers treat it as "unauthenticated", it is never an error by itself.
func Anonymous() AccessContext {
	return AccessContext{Method: AuthMethodNone}
}

type contextKey struct{}

var accessContextKey contextKey

func WithAccessContext(ctx context.Context, ac AccessContext) context.Context {
	return context.WithValue(ctx, accessContextKey, ac)
}

func FromContext(ctx context.Context) AccessContext {
	if ac, ok := ctx.Value(accessContextKey).(AccessContext); ok {
		return ac
	}
	return Anonymous()
}
