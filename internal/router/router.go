// Package router registers the HTTP routes of the API.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/handler"
	"github.com/iliyamo/concert-reservation/internal/middleware"
)

// Use installs the middleware every route runs through: request ids, panic
// recovery and an access log written through zap.
func Use(e *echo.Echo, log *zap.SugaredLogger) {
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond).String(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Warnw("request", append(fields, "error", v.Error)...)
				return nil
			}
			log.Infow("request", fields...)
			return nil
		},
	}))
}

// RegisterRoutes registers routes that need no identity: the health check
// and the log level switch.
func RegisterRoutes(e *echo.Echo, debug *handler.DebugHandler) {
	e.GET("/healthz", handler.Health)
	e.PUT("/debug", debug.Enable)
	e.DELETE("/debug", debug.Disable)
}

// V1 creates the /v1 group.  Every route below it reads X-User-Id and runs
// through the limiter.
func V1(e *echo.Echo, limiter echo.MiddlewareFunc) *echo.Group {
	return e.Group("/v1", middleware.UserIdentity(), limiter)
}

// RegisterQueue registers the admission queue endpoints.
func RegisterQueue(g *echo.Group, h *handler.QueueHandler, secret string) {
	q := g.Group("/queue")
	q.POST("/tokens", h.Issue)
	q.GET("/tokens/:tokenId", h.Status)
	q.POST("/check", h.Check, optionalQueueToken(secret))
	q.GET("/stats", h.Stats)
}

// RegisterConcert registers the concert journey.  Every route requires a
// queue token.
func RegisterConcert(g *echo.Group, h *handler.ConcertHandler, secret string) {
	c := g.Group("/concerts/:concertId", middleware.QueueToken(secret))
	c.GET("/timeslots", h.Timeslots)
	c.GET("/timeslots/:timeslotId/seats", h.Seats)
	c.POST("/timeslots/:timeslotId/seats/:seatId", h.Occupy)
	c.POST("/timeslots/:timeslotId/seats/:seatId/pay", h.Pay)
}

// RegisterPoints registers the wallet and sale record endpoints.
func RegisterPoints(g *echo.Group, h *handler.PointHandler) {
	u := g.Group("/users/:userId")
	u.GET("/points", h.Point)
	u.PATCH("/points", h.Charge)
	u.GET("/points/histories", h.Histories)
	u.GET("/pay-histories", h.PayHistories)
}

// optionalQueueToken applies QueueToken only when the request carries a
// token header; /queue/check also accepts the token in its body.
func optionalQueueToken(secret string) echo.MiddlewareFunc {
	withToken := middleware.QueueToken(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		gated := withToken(next)
		return func(c echo.Context) error {
			hdr := c.Request().Header
			if hdr.Get("Authorization") != "" || hdr.Get("X-Queue-Token") != "" {
				return gated(c)
			}
			return next(c)
		}
	}
}
