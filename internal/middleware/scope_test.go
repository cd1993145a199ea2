package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pulseboard/pulseboard/internal/model"
)

func TestTenantScope(t *testing.T) {
	testCases := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantScope  model.Scope
	}{
		{
			name:       "org only",
			headers:    map[string]string{OrgIDHeader: "org-1"},
			wantStatus: http.StatusOK,
			wantScope:  model.Scope{OrgID: "org-1"},
		},
		{
			name: "full scope is trimmed",
			headers: map[string]string{
				OrgIDHeader:     " org-1 ",
				ProjectIDHeader: "prj-1",
				AccountIDHeader: "acc-1",
			},
			wantStatus: http.StatusOK,
			wantScope:  model.Scope{OrgID: "org-1", ProjectID: "prj-1", AccountID: "acc-1"},
		},
		{
			name:       "missing org",
			headers:    map[string]string{ProjectIDHeader: "prj-1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "separator in id",
			headers:    map[string]string{OrgIDHeader: "org:1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "id too long",
			headers:    map[string]string{OrgIDHeader: strings.Repeat("o", 129)},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got model.Scope
			var seen bool
			handler := TenantScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, seen = ScopeFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/series", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus != http.StatusOK {
				if seen {
					t.Error("handler should not run for rejected requests")
				}
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q", ct)
				}
				return
			}
			if !seen || got != tc.wantScope {
				t.Errorf("scope = %+v (set %v), want %+v", got, seen, tc.wantScope)
			}
		})
	}
}

func TestScopeFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ScopeFromContext(req.Context()); ok {
		t.Error("expected no scope in empty context")
	}
}
