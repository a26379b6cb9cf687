package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/response"
)

// RequireRole allows the request only when the role stored by JWTAuth is one
// of roles.  It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok || !allowed[role] {
				return response.Fail(c, http.StatusForbidden, "You do not have permission to perform this action")
			}
			return next(c)
		}
	}
}
