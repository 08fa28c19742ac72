package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/service"
)

// PointHandler serves the point wallet and sale records of a user.
type PointHandler struct {
	base
	points   *service.PointService
	concerts *service.ConcertService
}

func NewPointHandler(points *service.PointService, concerts *service.ConcertService, log *zap.SugaredLogger) *PointHandler {
	if points == nil || concerts == nil {
		panic("nil service passed to NewPointHandler")
	}
	return &PointHandler{base: base{log: log}, points: points, concerts: concerts}
}

var errOtherUser = errors.New("cannot access another user's points")

// pathUser reads :userId.  When the caller identified themselves, the path
// must name the same user.
func pathUser(c echo.Context) (int64, error) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return 0, service.ErrInvalidUserID
	}
	if self, ok := callerID(c); ok && self != userID {
		return 0, errOtherUser
	}
	return userID, nil
}

// Point handles GET /v1/users/:userId/points.
func (h *PointHandler) Point(c echo.Context) error {
	userID, err := pathUser(c)
	if err != nil {
		return h.respondError(c, err)
	}
	p, err := h.points.Point(c.Request().Context(), userID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Charge handles PATCH /v1/users/:userId/points with {"amount": n}.
func (h *PointHandler) Charge(c echo.Context) error {
	userID, err := pathUser(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := h.points.Charge(c.Request().Context(), userID, body.Amount)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Histories handles GET /v1/users/:userId/points/histories.
func (h *PointHandler) Histories(c echo.Context) error {
	userID, err := pathUser(c)
	if err != nil {
		return h.respondError(c, err)
	}
	hs, err := h.points.Histories(c.Request().Context(), userID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": userID, "histories": hs})
}

// PayHistories handles GET /v1/users/:userId/pay-histories.
func (h *PointHandler) PayHistories(c echo.Context) error {
	userID, err := pathUser(c)
	if err != nil {
		return h.respondError(c, err)
	}
	hs, err := h.concerts.PayHistories(c.Request().Context(), userID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": userID, "pay_histories": hs})
}
