package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugHandler flips the process-wide log level at runtime.
type DebugHandler struct {
	level zap.AtomicLevel
}

func NewDebugHandler(level zap.AtomicLevel) *DebugHandler {
	return &DebugHandler{level: level}
}

// Enable handles PUT /debug.
func (h *DebugHandler) Enable(c echo.Context) error {
	h.level.SetLevel(zapcore.DebugLevel)
	return c.JSON(http.StatusOK, echo.Map{"level": h.level.String()})
}

// Disable handles DELETE /debug.
func (h *DebugHandler) Disable(c echo.Context) error {
	h.level.SetLevel(zapcore.InfoLevel)
	return c.JSON(http.StatusOK, echo.Map{"level": h.level.String()})
}
