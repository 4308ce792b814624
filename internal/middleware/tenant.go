package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/multitenancy"
)

// TenantAuthenticator resolves callers to tenants.
// *multitenancy.TenantManager is the production implementation.
type TenantAuthenticator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (*database.Tenant, error)
	LoadTenant(ctx context.Context, tenantID string) (*database.Tenant, error)
}

// TenantMiddleware resolves the calling tenant and injects it into the
// request context. Resolution order:
//  1. Authorization: Bearer agd_... (API key, validated against the database)
//  2. X-Tenant-ID header (trusted internal traffic behind the gateway)
func TenantMiddleware(tm TenantAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// 1. API Key auth
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer agd_") {
				key := strings.TrimPrefix(authHeader, "Bearer ")
				tenant, err := tm.ValidateAPIKey(ctx, key)
				if err != nil {
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				ctx = multitenancy.WithTenant(ctx, tenant.TenantID)
				if op := r.Header.Get("X-Operator-ID"); op != "" {
					ctx = multitenancy.WithOperator(ctx, op)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// 2. Trusted header (internal gateway)
			if tenantID := r.Header.Get("X-Tenant-ID"); tenantID != "" {
				if _, err := tm.LoadTenant(ctx, tenantID); err != nil {
					http.Error(w, "Unknown tenant", http.StatusUnauthorized)
					return
				}
				ctx = multitenancy.WithTenant(ctx, tenantID)
				if op := r.Header.Get("X-Operator-ID"); op != "" {
					ctx = multitenancy.WithOperator(ctx, op)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			http.Error(w, "Missing credentials", http.StatusUnauthorized)
		})
	}
}
