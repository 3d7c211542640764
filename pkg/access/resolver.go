// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package access

import (
	"github.com/rentworks/access-service/internal/types"
)

// ResolveTenantID returns the single tenant a session user acts on: the
// active tenant if one is set, otherwise the primary tenant. Both references
// unwrap raw ids and expanded records alike.
//
// An empty id is treated as "absent" and falls through to the primary
// tenant. This mirrors the platform's long-standing coalescing behaviour;
// do not "fix" it here without a product decision.
func ResolveTenantID(user *types.User) string {
	if user == nil {
		return ""
	}
	if id := user.ActiveTenant.TenantID(); id != "" {
		return id
	}
	return user.PrimaryTenant.TenantID()
}

// AllAccessibleTenantIDs returns the de-duplicated union of the user's
// primary and additional tenants. It feeds tenant switching and listing
// only, never write authorization.
func AllAccessibleTenantIDs(user *types.User) []string {
	if user == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string

	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(user.PrimaryTenant.TenantID())
	for _, ref := range user.AdditionalTenants {
		add(ref.TenantID())
	}

	return ids
}

// UserHasTenantAccess reports whether the user may act on the given tenant.
// Super admins may act on any tenant.
func UserHasTenantAccess(user *types.User, tenantID string) bool {
	if user == nil || tenantID == "" {
		return false
	}
	if user.Role == types.RoleSuperAdmin {
		return true
	}
	for _, id := range AllAccessibleTenantIDs(user) {
		if id == tenantID {
			return true
		}
	}
	return false
}
