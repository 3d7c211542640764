// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"encoding/json"
	"time"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

type Tenant struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Slug      string       `db:"slug" json:"slug"`
	Status    TenantStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleStaff       Role = "staff"
	RoleCustomer    Role = "customer"
)

// TenantRef is a tenant reference that upstream payloads may carry either as
// a raw id string or as an expanded tenant record. It unwraps to the id in
// both representations.
type TenantRef struct {
	ID     string
	Record *Tenant
}

// TenantID returns the referenced tenant id, preferring the expanded record.
// An empty id is treated as no reference at all.
func (r TenantRef) TenantID() string {
	if r.Record != nil {
		return r.Record.ID
	}
	return r.ID
}

func (r TenantRef) IsZero() bool {
	return r.TenantID() == ""
}

func (r *TenantRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		r.Record = nil
		return nil
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	r.Record = &t
	r.ID = t.ID
	return nil
}

func (r TenantRef) MarshalJSON() ([]byte, error) {
	if r.Record != nil {
		return json.Marshal(r.Record)
	}
	return json.Marshal(r.ID)
}

type User struct {
	ID                string      `db:"id" json:"id"`
	Email             string      `db:"email" json:"email"`
	Role              Role        `db:"role" json:"role"`
	PrimaryTenant     TenantRef   `db:"primary_tenant_id" json:"primary_tenant"`
	ActiveTenant      TenantRef   `db:"active_tenant_id" json:"active_tenant"`
	AdditionalTenants []TenantRef `json:"additional_tenants,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

type ScopeType string

const (
	ScopeTypeFullAccess        ScopeType = "full_access"
	ScopeTypeReadOnly          ScopeType = "read_only"
	ScopeTypeBookingManagement ScopeType = "booking_management"
	ScopeTypeCustom            ScopeType = "custom"
)

// Named capability scopes outside the per resource read/write/delete
// triplets. Kept here so every package speaks the same scope vocabulary.
const (
	ScopePaymentsRead      = "payments:read"
	ScopeInvoicesRead      = "invoices:read"
	ScopeNotificationsRead = "notifications:read"
	ScopeWebhooksManage    = "webhooks:manage"
	ScopeSettingsManage    = "settings:manage"
	ScopeReportsRead       = "reports:read"
	ScopeAuditRead         = "audit:read"
)

// APIKey is the stored key record. Raw keys are shown once at creation; only
// the SHA-256 digest is persisted.
type APIKey struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	Name       string     `db:"name" json:"name"`
	KeyHash    string     `db:"key_hash" json:"-"`
	KeyPrefix  string     `db:"key_prefix" json:"key_prefix"`
	ScopeType  ScopeType  `db:"scope_type" json:"scope_type"`
	Scopes     []string   `db:"scopes" json:"scopes"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Credential is a successfully authenticated API key resolved to its tenant.
// Scopes are already expanded from the key's scope type.
type Credential struct {
	Key    *APIKey
	Tenant *Tenant
	Scopes []string
}

type AuditAction string

const (
	AuditCreate  AuditAction = "create"
	AuditUpdate  AuditAction = "update"
	AuditDelete  AuditAction = "delete"
	AuditLogin   AuditAction = "login"
	AuditLogout  AuditAction = "logout"
	AuditAPICall AuditAction = "api_call"
)

// AuditChanges holds either a full document snapshot (create/delete) or a
// field level before/after diff (update).
type AuditChanges struct {
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Document map[string]any `json:"document,omitempty"`
}

type RequestMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// AuditLogEntry is immutable once created.
type AuditLogEntry struct {
	ID         string          `db:"id" json:"id"`
	Action     AuditAction     `db:"action" json:"action"`
	Collection string          `db:"collection" json:"collection"`
	DocumentID string          `db:"document_id" json:"document_id"`
	UserID     string          `db:"user_id" json:"user_id,omitempty"`
	TenantID   string          `db:"tenant_id" json:"tenant_id,omitempty"`
	Changes    AuditChanges    `db:"changes" json:"changes"`
	Metadata   RequestMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Terminal reports whether the delivery reached a state the scheduler must
// never touch again.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

type WebhookEndpoint struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	URL       string    `db:"url" json:"url"`
	Secret    string    `db:"secret" json:"-"`
	Events    []string  `db:"events" json:"events"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SubscribedTo reports whether the endpoint subscribes to the given event.
func (e *WebhookEndpoint) SubscribedTo(event string) bool {
	for _, ev := range e.Events {
		if ev == event || ev == "*" {
			return true
		}
	}
	return false
}

type DeliveryResponse struct {
	StatusCode int               `json:"status_code"`
	Body       string            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type WebhookDelivery struct {
	ID          string            `db:"id" json:"id"`
	EndpointID  string            `db:"endpoint_id" json:"endpoint_id"`
	TenantID    string            `db:"tenant_id" json:"tenant_id"`
	Event       string            `db:"event" json:"event"`
	Payload     json.RawMessage   `db:"payload" json:"payload"`
	Status      DeliveryStatus    `db:"status" json:"status"`
	Attempts    int               `db:"attempts" json:"attempts"`
	MaxAttempts int               `db:"max_attempts" json:"max_attempts"`
	NextRetryAt *time.Time        `db:"next_retry_at" json:"next_retry_at,omitempty"`
	Response    *DeliveryResponse `db:"response" json:"response,omitempty"`
	Error       string            `db:"error" json:"error,omitempty"`
	DeliveredAt *time.Time        `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}
