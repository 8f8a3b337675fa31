package middleware

import (
	"context"
	"net/http"
	"strings"

	"genproxy/internal/auth"
	"genproxy/internal/utils"
)

// ContextKey is the type used for authentication values stored on the
// request context.
type ContextKey string

const (
	OperatorClaimsKey ContextKey = "operatorClaims"
	OperatorIDKey     ContextKey = "operatorID"
	OperatorRolesKey  ContextKey = "operatorRoles"
)

// OperatorJWTMiddleware validates operator JWT tokens and enforces
// role-based access on the wrapped handler.
func OperatorJWTMiddleware(secret []byte, requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateOperatorJWT(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if len(requiredRoles) > 0 && !hasAnyRole(claims.Roles, requiredRoles) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorClaimsKey, claims)
			ctx = context.WithValue(ctx, OperatorIDKey, claims.OperatorID)
			ctx = context.WithValue(ctx, OperatorRolesKey, claims.Roles)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasAnyRole(held []string, required []string) bool {
	for _, requiredStr := range required {
		requiredRole := auth.Role(requiredStr)
		for _, heldStr := range held {
			if auth.Role(heldStr).HasPermission(requiredRole) {
				return true
			}
		}
	}
	return false
}

// GetOperatorClaims retrieves the operator claims from the request context
func GetOperatorClaims(ctx context.Context) (*auth.OperatorClaims, bool) {
	claims, ok := ctx.Value(OperatorClaimsKey).(*auth.OperatorClaims)
	return claims, ok
}

// GetOperatorID retrieves the operator ID from the request context
func GetOperatorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(OperatorIDKey).(string)
	return id, ok
}
