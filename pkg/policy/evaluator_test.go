// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package policy

import (
	"testing"

	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
)

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		name         string
		ac           access.AccessContext
		rule         Rule
		wantAllowed  bool
		wantUnscoped bool
		wantTenant   string
	}{
		{
			name: "super admin bypasses roles and scopes",
			ac: access.AccessContext{
				Role:        types.RoleSuperAdmin,
				Method:      access.AuthMethodSession,
				PrincipalID: "user-1",
			},
			rule:         Rule{RequiredScope: "bookings:write", AllowedRoles: []types.Role{types.RoleTenantAdmin}},
			wantAllowed:  true,
			wantUnscoped: true,
		},
		{
			name:        "anonymous allowed on public rule",
			ac:          access.Anonymous(),
			rule:        Rule{AllowPublic: true},
			wantAllowed: true,
		},
		{
			name:        "anonymous denied on protected rule",
			ac:          access.Anonymous(),
			rule:        Rule{},
			wantAllowed: false,
		},
		{
			name: "session role permitted",
			ac: access.AccessContext{
				TenantID: "tenant-1",
				Role:     types.RoleTenantAdmin,
				Method:   access.AuthMethodSession,
			},
			rule:        Rule{AllowedRoles: []types.Role{types.RoleTenantAdmin}},
			wantAllowed: true,
			wantTenant:  "tenant-1",
		},
		{
			name: "session role rejected",
			ac: access.AccessContext{
				TenantID: "tenant-1",
				Role:     types.RoleStaff,
				Method:   access.AuthMethodSession,
			},
			rule:        Rule{AllowedRoles: []types.Role{types.RoleTenantAdmin}},
			wantAllowed: false,
		},
		{
			name: "session without role restriction",
			ac: access.AccessContext{
				TenantID: "tenant-1",
				Role:     types.RoleCustomer,
				Method:   access.AuthMethodSession,
			},
			rule:        Rule{},
			wantAllowed: true,
			wantTenant:  "tenant-1",
		},
		{
			name: "api key with required scope",
			ac: access.AccessContext{
				TenantID:  "tenant-1",
				Method:    access.AuthMethodAPIKey,
				ScopeType: types.ScopeTypeCustom,
				Scopes:    []string{"bookings:read", "bookings:write"},
			},
			rule:        Rule{RequiredScope: "bookings:write"},
			wantAllowed: true,
			wantTenant:  "tenant-1",
		},
		{
			name: "api key missing required scope",
			ac: access.AccessContext{
				TenantID:  "tenant-1",
				Method:    access.AuthMethodAPIKey,
				ScopeType: types.ScopeTypeReadOnly,
				Scopes:    []string{"bookings:read"},
			},
			rule:        Rule{RequiredScope: "bookings:write"},
			wantAllowed: false,
		},
		{
			name: "full access key skips the scope check",
			ac: access.AccessContext{
				TenantID:  "tenant-1",
				Method:    access.AuthMethodAPIKey,
				ScopeType: types.ScopeTypeFullAccess,
			},
			rule:        Rule{RequiredScope: "bookings:write"},
			wantAllowed: true,
			wantTenant:  "tenant-1",
		},
		{
			name: "api key is not bound by session role restrictions",
			ac: access.AccessContext{
				TenantID:  "tenant-1",
				Method:    access.AuthMethodAPIKey,
				ScopeType: types.ScopeTypeFullAccess,
			},
			rule:        Rule{AllowedRoles: []types.Role{types.RoleTenantAdmin}},
			wantAllowed: true,
			wantTenant:  "tenant-1",
		},
		{
			name: "authenticated caller without tenant is denied",
			ac: access.AccessContext{
				Role:   types.RoleStaff,
				Method: access.AuthMethodSession,
			},
			rule:        Rule{},
			wantAllowed: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(tc.ac, tc.rule)

			if decision.Allowed != tc.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", decision.Allowed, tc.wantAllowed, decision.Reason)
			}
			if decision.Unscoped != tc.wantUnscoped {
				t.Errorf("Unscoped = %v, want %v", decision.Unscoped, tc.wantUnscoped)
			}
			if decision.Allowed && decision.TenantID != tc.wantTenant {
				t.Errorf("TenantID = %q, want %q", decision.TenantID, tc.wantTenant)
			}
			if !decision.Allowed && decision.Reason == "" {
				t.Error("denied decision carries no reason")
			}
		})
	}
}

func TestEvaluateTenantIsolation(t *testing.T) {
	// Two keys with identical scopes but different tenants must each be
	// pinned to their own tenant in the decision.
	rule := Rule{RequiredScope: "bookings:read"}

	for _, tenantID := range []string{"tenant-a", "tenant-b"} {
		ac := access.AccessContext{
			TenantID:  tenantID,
			Method:    access.AuthMethodAPIKey,
			ScopeType: types.ScopeTypeCustom,
			Scopes:    []string{"bookings:read"},
		}

		decision := Evaluate(ac, rule)
		if !decision.Allowed {
			t.Fatalf("expected allow for %s: %s", tenantID, decision.Reason)
		}
		if decision.TenantID != tenantID {
			t.Errorf("decision leaked tenant: got %q, want %q", decision.TenantID, tenantID)
		}
	}
}
