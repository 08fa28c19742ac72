package middleware

// identity.go carries the caller's user id.  Authentication happens
// upstream; the gateway forwards the authenticated id in X-User-Id.

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// UserIdentity stores a well-formed X-User-Id in the context.  Requests
// without the header pass through; malformed ids are rejected.
func UserIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get("X-User-Id"))
			if raw == "" {
				return next(c)
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid X-User-Id", "code": "INVALID_REQUEST"})
			}
			c.Set(CtxUserID, id)
			return next(c)
		}
	}
}

// UserID returns the caller's user id if one was established.
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(CtxUserID).(int64)
	return id, ok && id > 0
}

// userKey renders the caller for rate limit keys; "anon" when unknown.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatInt(id, 10)
	}
	return "anon"
}
