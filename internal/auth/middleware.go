package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "slotkeeper/internal/errors"
)

type contextKey string

const orgIDKey contextKey = "org_id"

// AdminAuthMiddleware accepts requests carrying a valid admin JWT and stores
// the admin's organization id in the request context.
func AdminAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				apperrors.WriteJSON(w, apperrors.ErrUnauthorized("missing or invalid Authorization header"))
				return
			}
			orgID, err := parseToken(strings.TrimPrefix(header, "Bearer "), key)
			if err != nil {
				apperrors.WriteJSON(w, apperrors.ErrUnauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOrganizationID(r.Context(), orgID)))
		})
	}
}

func parseToken(tokenString string, key []byte) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	orgID, _ := claims["org_id"].(string)
	if orgID == "" {
		return "", errors.New("token has no organization")
	}
	return orgID, nil
}

func WithOrganizationID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

func OrganizationID(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey).(string)
	return id
}
