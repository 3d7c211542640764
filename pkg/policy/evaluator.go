// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package policy decides whether a resolved AccessContext may perform an
// operation. Evaluation is pure: no storage, no clock, no network. Everything
// the decision needs is in the AccessContext and the rule.
package policy

import (
	"fmt"

	"github.com/rentworks/access-service/internal/types"
	"github.com/rentworks/access-service/pkg/access"
)

// Rule describes what an operation demands from a caller.
type Rule struct {
	// RequiredScope is the scope an API key caller must hold. Empty means
	// any authenticated API key passes the scope check.
	RequiredScope string
	// AllowedRoles restricts session callers. Empty means any role.
	AllowedRoles []types.Role
	// AllowPublic lets anonymous callers through.
	AllowPublic bool
}

// Decision is the evaluation outcome. When Allowed and not Unscoped,
// TenantID carries the tenant every data access must be filtered by.
type Decision struct {
	Allowed  bool
	Unscoped bool
	TenantID string
	Reason   string
}

func allow(tenantID string) Decision {
	return Decision{Allowed: true, TenantID: tenantID}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluate runs the decision ladder. Order matters:
//
//  1. super admins bypass every check and act unscoped
//  2. anonymous callers pass only public rules
//  3. session callers must hold one of the allowed roles
//  4. api key callers must hold the required scope
//  5. whoever remains must resolve to a tenant
func Evaluate(ac access.AccessContext, rule Rule) Decision {
	if ac.Role == types.RoleSuperAdmin {
		return Decision{Allowed: true, Unscoped: true}
	}

	if ac.Method == access.AuthMethodNone {
		if rule.AllowPublic {
			return allow(ac.TenantID)
		}
		return deny("authentication required")
	}

	if ac.Method == access.AuthMethodSession && len(rule.AllowedRoles) > 0 {
		if !roleAllowed(ac.Role, rule.AllowedRoles) {
			return deny(fmt.Sprintf("role %s is not permitted", ac.Role))
		}
	}

	if ac.Method == access.AuthMethodAPIKey && rule.RequiredScope != "" {
		if ac.ScopeType != types.ScopeTypeFullAccess && !ac.HasScope(rule.RequiredScope) {
			return deny(fmt.Sprintf("missing required scope %s", rule.RequiredScope))
		}
	}

	if ac.TenantID == "" {
		return deny("no tenant context")
	}

	return allow(ac.TenantID)
}

func roleAllowed(role types.Role, allowed []types.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
