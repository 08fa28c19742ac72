package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/middleware"
	"github.com/iliyamo/concert-reservation/internal/service"
)

// ConcertHandler serves the queue-gated concert journey.  QueueToken and
// UserIdentity must run before it.
type ConcertHandler struct {
	base
	concerts *service.ConcertFacade
}

func NewConcertHandler(concerts *service.ConcertFacade, log *zap.SugaredLogger) *ConcertHandler {
	if concerts == nil {
		panic("nil concert facade passed to NewConcertHandler")
	}
	return &ConcertHandler{base: base{log: log}, concerts: concerts}
}

// caller returns the user and token the request acts for.
func caller(c echo.Context) (int64, string, bool) {
	userID, ok := callerID(c)
	tokenID := middleware.QueueTokenID(c)
	return userID, tokenID, ok && tokenID != ""
}

func seatRef(c echo.Context) (service.SeatRef, bool) {
	concertID, ok1 := pathID(c, "concertId")
	timeslotID, ok2 := pathID(c, "timeslotId")
	seatID, ok3 := pathID(c, "seatId")
	return service.SeatRef{ConcertID: concertID, TimeslotID: timeslotID, SeatID: seatID}, ok1 && ok2 && ok3
}

// Timeslots handles GET /v1/concerts/:concertId/timeslots.
func (h *ConcertHandler) Timeslots(c echo.Context) error {
	userID, tokenID, ok := caller(c)
	if !ok {
		return badRequest(c, "user id and queue token are required")
	}
	concertID, ok := pathID(c, "concertId")
	if !ok {
		return badRequest(c, "invalid concert id")
	}
	slots, err := h.concerts.Timeslots(c.Request().Context(), userID, tokenID, concertID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"concert_id": concertID, "timeslots": slots})
}

// Seats handles GET /v1/concerts/:concertId/timeslots/:timeslotId/seats.
func (h *ConcertHandler) Seats(c echo.Context) error {
	userID, tokenID, ok := caller(c)
	if !ok {
		return badRequest(c, "user id and queue token are required")
	}
	concertID, ok1 := pathID(c, "concertId")
	timeslotID, ok2 := pathID(c, "timeslotId")
	if !ok1 || !ok2 {
		return badRequest(c, "invalid concert or timeslot id")
	}
	seats, err := h.concerts.Seats(c.Request().Context(), userID, tokenID, concertID, timeslotID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"timeslot_id": timeslotID, "seats": seats})
}

// Occupy handles POST .../seats/:seatId and places a hold for the caller.
func (h *ConcertHandler) Occupy(c echo.Context) error {
	userID, tokenID, ok := caller(c)
	if !ok {
		return badRequest(c, "user id and queue token are required")
	}
	ref, ok := seatRef(c)
	if !ok {
		return badRequest(c, "invalid seat path")
	}
	seat, err := h.concerts.Occupy(c.Request().Context(), userID, tokenID, ref)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, seat)
}

// Pay handles POST .../seats/:seatId/pay and sells the held seat.
func (h *ConcertHandler) Pay(c echo.Context) error {
	userID, tokenID, ok := caller(c)
	if !ok {
		return badRequest(c, "user id and queue token are required")
	}
	ref, ok := seatRef(c)
	if !ok {
		return badRequest(c, "invalid seat path")
	}
	receipt, err := h.concerts.Pay(c.Request().Context(), userID, tokenID, ref)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, receipt)
}
