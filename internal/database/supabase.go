package database

import (
	"context"
	"fmt"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"
)

// ============================================================================
// SUPABASE CLIENT - CRUD Operations for the Dashboard Backend Tables
// ============================================================================

// SupabaseClient wraps the Supabase Go client with all backend operations
type SupabaseClient struct {
	client *supabase.Client
}

// NewSupabaseClient creates a new Supabase client
func NewSupabaseClient() (*SupabaseClient, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")

	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &SupabaseClient{client: client}, nil
}

// ============================================================================
// DATA MODELS
// ============================================================================

// Tenant represents an agency organization
type Tenant struct {
	TenantID         string                 `json:"tenant_id"`
	TenantName       string                 `json:"tenant_name"`
	OrganizationName string                 `json:"organization_name"`
	SubscriptionTier string                 `json:"subscription_tier"`
	Status           string                 `json:"status"`
	Settings         map[string]interface{} `json:"settings"`
	CreatedAt        string                 `json:"created_at"` // String to handle Supabase timestamp format
}

// APIKey represents an API key for a tenant
type APIKey struct {
	KeyID      string     `json:"key_id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"key_hash"`
	Scopes     []string   `json:"scopes"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// Website represents a managed WordPress site belonging to a tenant
type Website struct {
	WebsiteID   string `json:"website_id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	WPUsername  string `json:"wp_username,omitempty"`
	WPAppPass   string `json:"wp_app_pass,omitempty"`
	Status      string `json:"status"`
	LastCheckAt string `json:"last_check_at,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ============================================================================
// TENANT OPERATIONS
// ============================================================================

// GetTenant retrieves a tenant by ID
func (sc *SupabaseClient) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var tenants []Tenant
	_, err := sc.client.From("tenants").
		Select("*", "", false).
		Eq("tenant_id", tenantID).
		ExecuteTo(&tenants)

	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if len(tenants) == 0 {
		return nil, nil
	}
	return &tenants[0], nil
}

// GetAPIKey retrieves an API key by ID (public part)
func (sc *SupabaseClient) GetAPIKey(ctx context.Context, keyID string) (*APIKey, error) {
	var keys []APIKey
	_, err := sc.client.From("api_keys").
		Select("*", "", false).
		Eq("key_id", keyID).
		ExecuteTo(&keys)

	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

// CreateAPIKey creates a new API key
func (sc *SupabaseClient) CreateAPIKey(ctx context.Context, apiKey *APIKey) error {
	var result []APIKey
	_, err := sc.client.From("api_keys").
		Insert(apiKey, false, "", "", "").
		ExecuteTo(&result)
	return err
}

// ============================================================================
// WEBSITE OPERATIONS
// ============================================================================

// GetWebsite retrieves a website by ID and tenant
func (sc *SupabaseClient) GetWebsite(ctx context.Context, tenantID, websiteID string) (*Website, error) {
	var sites []Website
	_, err := sc.client.From("websites").
		Select("*", "", false).
		Eq("website_id", websiteID).
		Eq("tenant_id", tenantID).
		ExecuteTo(&sites)

	if err != nil {
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	if len(sites) == 0 {
		return nil, nil
	}
	return &sites[0], nil
}

// ListWebsites lists all websites for a tenant
func (sc *SupabaseClient) ListWebsites(ctx context.Context, tenantID string, limit int) ([]Website, error) {
	var sites []Website
	_, err := sc.client.From("websites").
		Select("*", "", false).
		Eq("tenant_id", tenantID).
		Limit(limit, "").
		ExecuteTo(&sites)
	return sites, err
}

// ============================================================================
// GENERIC HELPERS — used by integrations that manage their own row types
// ============================================================================

// InsertRow inserts a single row into any table.
func (sc *SupabaseClient) InsertRow(table string, row interface{}) error {
	_, _, err := sc.client.From(table).Insert(row, false, "", "", "").Execute()
	return err
}

// QueryRows queries rows from a table filtered by a single column.
func (sc *SupabaseClient) QueryRows(table, selectCols, filterCol, filterVal string, dest interface{}) error {
	_, err := sc.client.From(table).
		Select(selectCols, "", false).
		Eq(filterCol, filterVal).
		ExecuteTo(dest)
	return err
}
