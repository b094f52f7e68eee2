// Package middleware provides HTTP middleware for tenant resolution.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/ensemblehq/chairfill/internal/store"
	"github.com/ensemblehq/chairfill/internal/tenant"
)

type contextKey string

const (
	TenantIDKey    contextKey = "tenantID"
	TenantStoreKey contextKey = "tenantStore"
)

// Tenant resolves the authenticated caller's tenant to an isolated data
// handle and stores both on the request context. Handlers downstream can
// only reach that one tenant's data; there is no shared fallback handle.
func Tenant(registry *tenant.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The authentication layer in front of this service has already
			// verified the caller; the header names the tenant scope.
			tenantID := r.Header.Get("X-Tenant-ID")
			if tenantID == "" {
				http.Error(w, `{"error":"Tenant required"}`, http.StatusBadRequest)
				return
			}

			st, err := registry.Resolve(r.Context(), tenantID)
			if err != nil {
				if errors.Is(err, tenant.ErrUnknownTenant) {
					http.Error(w, `{"error":"Unknown tenant"}`, http.StatusForbidden)
					return
				}
				http.Error(w, `{"error":"Tenant store unavailable"}`, http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, TenantStoreKey, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID extracts the tenant ID from context
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(TenantIDKey).(string); ok {
		return id
	}
	return ""
}

// GetStore extracts the tenant's store handle from context
func GetStore(ctx context.Context) *store.Store {
	if st, ok := ctx.Value(TenantStoreKey).(*store.Store); ok {
		return st
	}
	return nil
}
