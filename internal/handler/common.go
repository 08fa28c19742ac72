package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/middleware"
)

// base carries what every handler needs.
type base struct {
	log *zap.SugaredLogger
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// callerID returns the user established by the identity middleware.
func callerID(c echo.Context) (int64, bool) {
	return middleware.UserID(c)
}
