package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulseboard/pulseboard/internal/model"
)

// Tenant scope headers.
const (
	OrgIDHeader     = "X-Org-ID"
	ProjectIDHeader = "X-Project-ID"
	AccountIDHeader = "X-Account-ID"
)

const scopeKey contextKey = "tenant_scope"

const maxScopeIDLength = 128

// TenantScope reads the tenant scope headers into the request context.
// Requests without an org id are rejected with 400.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := model.Scope{
			OrgID:     strings.TrimSpace(r.Header.Get(OrgIDHeader)),
			ProjectID: strings.TrimSpace(r.Header.Get(ProjectIDHeader)),
			AccountID: strings.TrimSpace(r.Header.Get(AccountIDHeader)),
		}

		if scope.OrgID == "" {
			writeScopeError(w, http.StatusBadRequest, "MISSING_SCOPE", OrgIDHeader+" header is required")
			return
		}
		for _, id := range []string{scope.OrgID, scope.ProjectID, scope.AccountID} {
			if len(id) > maxScopeIDLength || strings.ContainsAny(id, ":\"\\") {
				writeScopeError(w, http.StatusBadRequest, "INVALID_SCOPE", "scope ids must be plain identifiers")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), scope)))
	})
}

// ContextWithScope returns a copy of ctx carrying scope.
func ContextWithScope(ctx context.Context, scope model.Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext returns the tenant scope set by TenantScope.
func ScopeFromContext(ctx context.Context) (model.Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(model.Scope)
	return scope, ok
}

// writeScopeError writes a scope-related error response.
func writeScopeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":{"code":"%s","message":"%s"}}`, code, message)))
}
