package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/policy"
	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/utils"
)

// Context keys set by the auth middleware.
const (
	ctxIdentity = "identity"
	ctxUserID   = "user_id"
	ctxRole     = "role"
)

// JWTAuth rejects requests without a valid Bearer access token.  Missing,
// malformed, badly signed and expired tokens all get the same 401.  The
// caller's identity is stored in the context; read it with IdentityFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := authenticate(c, secret)
			if !ok {
				return response.Fail(c, http.StatusUnauthorized, "Not authorized, invalid or missing token")
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// OptionalAuth attaches the identity when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, ok := authenticate(c, secret); ok {
				setIdentity(c, id)
			}
			return next(c)
		}
	}
}

func authenticate(c echo.Context, secret string) (policy.Identity, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return policy.Identity{}, false
	}
	claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return policy.Identity{}, false
	}
	uid, err := claims.UserID()
	if err != nil || uid == 0 {
		return policy.Identity{}, false
	}
	return policy.Identity{UserID: uid, Email: claims.Email, Role: claims.Role}, true
}

func setIdentity(c echo.Context, id policy.Identity) {
	c.Set(ctxIdentity, id)
	c.Set(ctxUserID, strconv.FormatUint(id.UserID, 10))
	c.Set(ctxRole, id.Role)
}

// IdentityFrom returns the authenticated caller or nil for anonymous
// requests.
func IdentityFrom(c echo.Context) *policy.Identity {
	if id, ok := c.Get(ctxIdentity).(policy.Identity); ok {
		return &id
	}
	return nil
}
