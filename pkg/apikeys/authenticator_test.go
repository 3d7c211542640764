// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package apikeys

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/monitoring"
	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
	"github.com/rentworks/access-service/internal/types"
)

type fakeKeyStorage struct {
	keys    map[string]*types.APIKey // by hash
	tenants map[string]*types.Tenant // by tenant id
	touched []string
	created []*types.APIKey
	revoked []string
}

func newFakeKeyStorage() *fakeKeyStorage {
	return &fakeKeyStorage{
		keys:    map[string]*types.APIKey{},
		tenants: map[string]*types.Tenant{},
	}
}

func (f *fakeKeyStorage) CreateAPIKey(_ context.Context, key *types.APIKey) (*types.APIKey, error) {
	key.ID = "key-" + key.Name
	f.created = append(f.created, key)
	f.keys[key.KeyHash] = key
	return key, nil
}

func (f *fakeKeyStorage) GetAPIKeyByHash(_ context.Context, keyHash string) (*types.APIKey, *types.Tenant, error) {
	key, ok := f.keys[keyHash]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	tenant, ok := f.tenants[key.TenantID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	return key, tenant, nil
}

func (f *fakeKeyStorage) ListAPIKeysByTenant(_ context.Context, tenantID string) ([]*types.APIKey, error) {
	var keys []*types.APIKey
	for _, k := range f.keys {
		if k.TenantID == tenantID {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeKeyStorage) RevokeAPIKey(_ context.Context, tenantID, keyID string) error {
	f.revoked = append(f.revoked, keyID)
	return nil
}

func (f *fakeKeyStorage) TouchAPIKeyLastUsed(_ context.Context, keyID string, _ time.Time) error {
	f.touched = append(f.touched, keyID)
	return nil
}

func newTestService(s StorageInterface) *Service {
	return NewService(s, tasks.NewSyncRunner(), tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func TestServiceAuthenticate(t *testing.T) {
	fake := newFakeKeyStorage()
	fake.tenants["tenant-1"] = &types.Tenant{ID: "tenant-1", Status: types.TenantActive}
	fake.tenants["tenant-2"] = &types.Tenant{ID: "tenant-2", Status: types.TenantSuspended}

	goodKey := "tk_0123456789abcdef0123456789abcdef"
	suspendedKey := "tk_ffffffffffffffffffffffffffffffff"
	expiredKey := "tk_eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	expiry := time.Now().Add(-time.Hour)

	fake.keys[HashKey(goodKey)] = &types.APIKey{
		ID: "key-1", TenantID: "tenant-1", ScopeType: types.ScopeTypeReadOnly, IsActive: true,
	}
	fake.keys[HashKey(suspendedKey)] = &types.APIKey{
		ID: "key-2", TenantID: "tenant-2", ScopeType: types.ScopeTypeFullAccess, IsActive: true,
	}
	fake.keys[HashKey(expiredKey)] = &types.APIKey{
		ID: "key-3", TenantID: "tenant-1", ScopeType: types.ScopeTypeFullAccess, IsActive: true, ExpiresAt: &expiry,
	}

	service := newTestService(fake)

	testCases := []struct {
		name    string
		rawKey  string
		wantErr error
	}{
		{"missing key", "", ErrMissingKey},
		{"wrong prefix", "sk_0123456789abcdef0123456789abcdef", ErrInvalidFormat},
		{"too short", "tk_short", ErrInvalidFormat},
		{"unknown key", "tk_00000000000000000000000000000000", ErrUnknownKey},
		{"suspended tenant", suspendedKey, ErrTenantDisabled},
		{"expired key", expiredKey, ErrKeyExpired},
		{"valid key", goodKey, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := service.Authenticate(context.Background(), tc.rawKey)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if !IsAuthenticationError(err) {
					t.Errorf("expected %v to classify as an authentication error", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cred.Tenant.ID != "tenant-1" {
				t.Errorf("tenant = %q, want tenant-1", cred.Tenant.ID)
			}
			if !hasScope(cred.Scopes, "bookings:read") || hasScope(cred.Scopes, "bookings:write") {
				t.Errorf("read only key expanded to wrong scopes: %v", cred.Scopes)
			}
		})
	}
}

func TestServiceAuthenticateSuspendedTenantMessage(t *testing.T) {
	fake := newFakeKeyStorage()
	fake.tenants["tenant-2"] = &types.Tenant{ID: "tenant-2", Status: types.TenantSuspended}
	rawKey := "tk_ffffffffffffffffffffffffffffffff"
	fake.keys[HashKey(rawKey)] = &types.APIKey{ID: "key-2", TenantID: "tenant-2", IsActive: true}

	_, err := newTestService(fake).Authenticate(context.Background(), rawKey)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != "tenant is suspended; API access disabled" {
		t.Errorf("error message = %q", got)
	}
}

func TestServiceAuthenticateTouchesLastUsed(t *testing.T) {
	fake := newFakeKeyStorage()
	fake.tenants["tenant-1"] = &types.Tenant{ID: "tenant-1", Status: types.TenantActive}
	rawKey := "tk_0123456789abcdef0123456789abcdef"
	fake.keys[HashKey(rawKey)] = &types.APIKey{ID: "key-1", TenantID: "tenant-1", IsActive: true}

	if _, err := newTestService(fake).Authenticate(context.Background(), rawKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.touched) != 1 || fake.touched[0] != "key-1" {
		t.Errorf("expected last used touch for key-1, got %v", fake.touched)
	}
}

func TestServiceCreateKey(t *testing.T) {
	fake := newFakeKeyStorage()
	fake.tenants["tenant-1"] = &types.Tenant{ID: "tenant-1", Status: types.TenantActive}
	service := newTestService(fake)

	key, rawKey, err := service.CreateKey(context.Background(), "tenant-1", "integration", types.ScopeTypeReadOnly, []string{"should:vanish"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(rawKey, "tk_") {
		t.Errorf("raw key %q lacks the tk_ prefix", rawKey)
	}
	if len(rawKey) < 35 {
		t.Errorf("raw key too short: %d chars", len(rawKey))
	}
	if key.KeyHash != HashKey(rawKey) {
		t.Error("stored hash does not match the raw key digest")
	}
	if key.KeyHash == rawKey {
		t.Error("raw key must never be stored verbatim")
	}
	if key.KeyPrefix != rawKey[:10] {
		t.Errorf("display prefix = %q", key.KeyPrefix)
	}
	if key.Scopes != nil {
		t.Errorf("non custom key kept caller scopes: %v", key.Scopes)
	}

	// And the minted key authenticates.
	cred, err := service.Authenticate(context.Background(), rawKey)
	if err != nil {
		t.Fatalf("minted key failed to authenticate: %v", err)
	}
	if cred.Key.ID != key.ID {
		t.Errorf("authenticated key id = %q, want %q", cred.Key.ID, key.ID)
	}
}
