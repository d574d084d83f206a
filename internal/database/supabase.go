// Package database holds the persistence clients the engine talks to:
// the Supabase project backing the Braid platform and, for self-hosted
// deployments, a direct Postgres connection.
package database

import (
	"context"
	"fmt"

	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseClient wraps the Supabase Go client with the operations the
// engine needs.
type SupabaseClient struct {
	client *supabase.Client
}

// NewSupabaseClient creates a client for the given project.
func NewSupabaseClient(url, serviceKey string) (*SupabaseClient, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase url and service key must be set")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseClient{client: client}, nil
}

// Tenant is a row of the tenants table.
type Tenant struct {
	TenantID   string `json:"tenant_id"`
	TenantSlug string `json:"tenant_slug"`
	Status     string `json:"status"`
}

// APIKey is a row of the api_keys table. KeyHash is a bcrypt hash of
// the secret half of the presented key.
type APIKey struct {
	KeyID    string `json:"key_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	KeyHash  string `json:"key_hash"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// GetTenant retrieves a tenant by ID. Returns nil, nil when absent.
func (sc *SupabaseClient) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var tenants []Tenant
	_, err := sc.client.From("tenants").
		Select("*", "", false).
		Eq("tenant_id", tenantID).
		ExecuteTo(&tenants)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if len(tenants) == 0 {
		return nil, nil
	}
	return &tenants[0], nil
}

// GetAPIKey retrieves an API key by its public id. Returns nil, nil
// when absent.
func (sc *SupabaseClient) GetAPIKey(ctx context.Context, keyID string) (*APIKey, error) {
	var keys []APIKey
	_, err := sc.client.From("api_keys").
		Select("*", "", false).
		Eq("key_id", keyID).
		ExecuteTo(&keys)
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

// InsertRow writes one row to the named table.
func (sc *SupabaseClient) InsertRow(table string, row interface{}) error {
	_, _, err := sc.client.From(table).Insert(row, false, "", "", "").Execute()
	return err
}
