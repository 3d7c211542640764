// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"fmt"

	"github.com/rentworks/access-service/internal/types"
)

// Resources covered by the read/write/delete scope triplets.
var scopedResources = []string{
	"rental-items",
	"bookings",
	"customers",
	"inventory-units",
	"add-ons",
	"bundles",
	"availability",
}

func Scope(resource, verb string) string {
	return fmt.Sprintf("%s:%s", resource, verb)
}

func fullAccessScopes() []string {
	var scopes []string
	for _, r := range scopedResources {
		scopes = append(scopes, Scope(r, "read"), Scope(r, "write"), Scope(r, "delete"))
	}
	return append(scopes,
		types.ScopePaymentsRead,
		types.ScopeInvoicesRead,
		types.ScopeNotificationsRead,
		types.ScopeWebhooksManage,
		types.ScopeSettingsManage,
		types.ScopeReportsRead,
		types.ScopeAuditRead,
	)
}

func readOnlyScopes() []string {
	var scopes []string
	for _, r := range scopedResources {
		scopes = append(scopes, Scope(r, "read"))
	}
	return append(scopes,
		types.ScopePaymentsRead,
		types.ScopeInvoicesRead,
		types.ScopeNotificationsRead,
		types.ScopeReportsRead,
		types.ScopeAuditRead,
	)
}

var bookingManagementScopes = []string{
	"rental-items:read",
	"bookings:read",
	"bookings:write",
	"bookings:delete",
	"customers:read",
	"customers:write",
	"inventory-units:read",
	"add-ons:read",
	"bundles:read",
	"availability:read",
	"availability:write",
	types.ScopeNotificationsRead,
}

// ScopesForKey expands a key's scope type into its effective scope set.
// Custom keys carry exactly the scopes attached to them.
func ScopesForKey(key *types.APIKey) []string {
	switch key.ScopeType {
	case types.ScopeTypeFullAccess:
		return fullAccessScopes()
	case types.ScopeTypeReadOnly:
		return readOnlyScopes()
	case types.ScopeTypeBookingManagement:
		return append([]string(nil), bookingManagementScopes...)
	case types.ScopeTypeCustom:
		return append([]string(nil), key.Scopes...)
	default:
		return nil
	}
}
