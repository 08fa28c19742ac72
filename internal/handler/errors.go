package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-reservation/internal/service"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps business errors to responses.  Order matters only for
// errors that wrap one another, which none of these do.
var errorTable = []errorMapping{
	{service.ErrDuplicateActiveSession, http.StatusConflict, "DUPLICATE_ACTIVE_SESSION"},
	{service.ErrTokenNotFound, http.StatusNotFound, "TOKEN_NOT_FOUND"},
	{service.ErrTokenOwnerMismatch, http.StatusForbidden, "TOKEN_OWNER_MISMATCH"},
	{service.ErrTokenNotActive, http.StatusForbidden, "TOKEN_NOT_ACTIVE"},
	{service.ErrTokenExpired, http.StatusGone, "TOKEN_EXPIRED"},
	{service.ErrTimeslotNotFound, http.StatusNotFound, "TIMESLOT_NOT_FOUND"},
	{service.ErrSeatNotFound, http.StatusNotFound, "SEAT_NOT_FOUND"},
	{service.ErrSeatUnavailable, http.StatusConflict, "SEAT_UNAVAILABLE"},
	{service.ErrSeatNotHeldByUser, http.StatusForbidden, "SEAT_NOT_HELD_BY_USER"},
	{service.ErrHoldExpired, http.StatusGone, "HOLD_EXPIRED"},
	{service.ErrSeatAlreadySold, http.StatusConflict, "SEAT_ALREADY_SOLD"},
	{service.ErrInsufficientPoint, http.StatusPaymentRequired, "INSUFFICIENT_POINT"},
	{service.ErrInvalidUserID, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrInvalidAmount, http.StatusBadRequest, "INVALID_REQUEST"},
	{errOtherUser, http.StatusForbidden, "FORBIDDEN"},
}

// respondError writes the mapped status and body for err.  Unknown errors
// become 500 and are logged with the request id.
func (h *base) respondError(c echo.Context, err error) error {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, echo.Map{"error": m.err.Error(), "code": m.code})
		}
	}
	h.log.Errorw("request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"error", err,
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "INVALID_REQUEST"})
}
