package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-reservation/internal/utils"
)

// Context keys set by this package.
const (
	CtxUserID       = "user_id"
	CtxQueueTokenID = "queue_token_id"
)

// QueueToken returns an Echo middleware that extracts the caller's queue
// token.  It accepts either a signed credential in "Authorization: Bearer"
// or a raw token id in X-Queue-Token.  A credential also names its owner,
// which is used as the caller's user id when no X-User-Id was sent.  The
// token is only identified here; the queue decides whether it is active.
func QueueToken(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				tokenID, owner, err := utils.ParseQueueToken(secret, strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid queue token", "code": "INVALID_QUEUE_TOKEN"})
				}
				c.Set(CtxQueueTokenID, tokenID)
				if _, ok := UserID(c); !ok {
					c.Set(CtxUserID, owner)
				}
				return next(c)
			}
			if raw := strings.TrimSpace(c.Request().Header.Get("X-Queue-Token")); raw != "" {
				c.Set(CtxQueueTokenID, raw)
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing queue token", "code": "MISSING_QUEUE_TOKEN"})
		}
	}
}

// QueueTokenID returns the token id stored by QueueToken.
func QueueTokenID(c echo.Context) string {
	s, _ := c.Get(CtxQueueTokenID).(string)
	return s
}
