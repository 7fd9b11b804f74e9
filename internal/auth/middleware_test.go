package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestAdminAuthMiddleware(t *testing.T) {
	var seen string
	h := AdminAuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OrganizationID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := token(t, jwt.MapClaims{"org_id": "org-1", "exp": time.Now().Add(time.Hour).Unix()}, secret)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + token(t, jwt.MapClaims{"org_id": "org-1", "exp": time.Now().Add(time.Hour).Unix()}, "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, jwt.MapClaims{"org_id": "org-1", "exp": time.Now().Add(-time.Hour).Unix()}, secret), http.StatusUnauthorized},
		{"no expiry", "Bearer " + token(t, jwt.MapClaims{"org_id": "org-1"}, secret), http.StatusUnauthorized},
		{"no organization", "Bearer " + token(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, secret), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/admin/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "org-1", seen)
			}
		})
	}
}
