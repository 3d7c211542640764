// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rentworks/access-service/internal/identity"
	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

type fakeUserStorage struct {
	users map[string]*types.User
}

func (f *fakeUserStorage) GetUserByID(_ context.Context, id string) (*types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

var errBadCredential = errors.New("invalid API key")

type fakeAuthenticator struct {
	creds map[string]*types.Credential
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, rawKey string) (*types.Credential, error) {
	cred, ok := f.creds[rawKey]
	if !ok {
		return nil, errBadCredential
	}
	return cred, nil
}

func (f *fakeAuthenticator) IsAuthenticationError(err error) bool {
	return errors.Is(err, errBadCredential)
}

func newTestBuilder() *Builder {
	users := &fakeUserStorage{users: map[string]*types.User{
		"user-1": {
			ID:            "user-1",
			Role:          types.RoleTenantAdmin,
			PrimaryTenant: types.TenantRef{ID: "tenant-primary"},
			ActiveTenant:  types.TenantRef{ID: "tenant-active"},
		},
	}}
	auth := &fakeAuthenticator{creds: map[string]*types.Credential{
		"tk_valid": {
			Key:    &types.APIKey{ID: "key-1", TenantID: "tenant-1", ScopeType: types.ScopeTypeCustom},
			Tenant: &types.Tenant{ID: "tenant-1", Status: types.TenantActive},
			Scopes: []string{"bookings:read"},
		},
	}}

	return NewBuilder(users, auth, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func TestBuilderHTTPMiddleware(t *testing.T) {
	builder := newTestBuilder()

	testCases := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantAC     AccessContext
	}{
		{
			name:       "session user",
			headers:    map[string]string{identity.HeaderName: "user-1"},
			wantStatus: http.StatusOK,
			wantAC: AccessContext{
				TenantID:    "tenant-active",
				Role:        types.RoleTenantAdmin,
				Method:      AuthMethodSession,
				PrincipalID: "user-1",
			},
		},
		{
			name:       "unknown session user degrades to anonymous",
			headers:    map[string]string{identity.HeaderName: "ghost"},
			wantStatus: http.StatusOK,
			wantAC:     Anonymous(),
		},
		{
			name:       "api key via X-API-Key",
			headers:    map[string]string{"X-API-Key": "tk_valid"},
			wantStatus: http.StatusOK,
			wantAC: AccessContext{
				TenantID:    "tenant-1",
				Method:      AuthMethodAPIKey,
				PrincipalID: "key-1",
				Scopes:      []string{"bookings:read"},
				ScopeType:   types.ScopeTypeCustom,
			},
		},
		{
			name:       "api key via bearer token",
			headers:    map[string]string{"Authorization": "Bearer tk_valid"},
			wantStatus: http.StatusOK,
			wantAC: AccessContext{
				TenantID:    "tenant-1",
				Method:      AuthMethodAPIKey,
				PrincipalID: "key-1",
				Scopes:      []string{"bookings:read"},
				ScopeType:   types.ScopeTypeCustom,
			},
		},
		{
			name:       "session header wins over api key",
			headers:    map[string]string{identity.HeaderName: "user-1", "X-API-Key": "tk_valid"},
			wantStatus: http.StatusOK,
			wantAC: AccessContext{
				TenantID:    "tenant-active",
				Role:        types.RoleTenantAdmin,
				Method:      AuthMethodSession,
				PrincipalID: "user-1",
			},
		},
		{
			name:       "invalid api key is rejected outright",
			headers:    map[string]string{"X-API-Key": "tk_bogus"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no credentials proceed anonymously",
			headers:    nil,
			wantStatus: http.StatusOK,
			wantAC:     Anonymous(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got AccessContext
			var called bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got = FromContext(r.Context())
			})

			// The identity middleware normally runs first; emulate it here.
			handler := identity.NewMiddleware(tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger()).
				HTTPMiddleware(builder.HTTPMiddleware(next))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK {
				if called {
					t.Error("handler ran despite rejected credentials")
				}
				return
			}
			if !called {
				t.Fatal("handler was not invoked")
			}

			if got.Method != tc.wantAC.Method || got.TenantID != tc.wantAC.TenantID ||
				got.PrincipalID != tc.wantAC.PrincipalID || got.Role != tc.wantAC.Role {
				t.Errorf("access context = %+v, want %+v", got, tc.wantAC)
			}
		})
	}
}

func TestFromContextDefaultsToAnonymous(t *testing.T) {
	ac := FromContext(context.Background())
	if ac.Method != AuthMethodNone || ac.Authenticated() {
		t.Errorf("expected anonymous default, got %+v", ac)
	}
}
