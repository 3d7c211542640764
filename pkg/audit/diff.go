// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package audit

import (
	"bytes"
	"encoding/json"
)

// Timestamp bookkeeping fields never carry business meaning, so they are
// excluded from diffs in both naming conventions the platform has used.
var excludedFields = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"createdAt":  {},
	"updatedAt":  {},
}

// Diff computes the field level change set between two document snapshots.
// It walks the union of keys and keeps only fields whose JSON encodings
// differ. Identical documents yield two empty maps.
func Diff(before, after map[string]any) (map[string]any, map[string]any) {
	changedBefore := map[string]any{}
	changedAfter := map[string]any{}

	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	for k := range keys {
		if _, excluded := excludedFields[k]; excluded {
			continue
		}

		oldValue, inBefore := before[k]
		newValue, inAfter := after[k]
		if inBefore && inAfter && jsonEqual(oldValue, newValue) {
			continue
		}

		if inBefore {
			changedBefore[k] = oldValue
		}
		if inAfter {
			changedAfter[k] = newValue
		}
	}

	return changedBefore, changedAfter
}

// jsonEqual compares values by their JSON encoding so that e.g. an int and
// a float64 holding the same number compare equal, matching how documents
// round-trip through the API.
func jsonEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
