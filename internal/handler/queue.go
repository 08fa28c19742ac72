package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/middleware"
	"github.com/iliyamo/concert-reservation/internal/service"
)

// QueueHandler exposes the admission queue.
type QueueHandler struct {
	base
	tokens *service.TokenFacade
}

func NewQueueHandler(tokens *service.TokenFacade, log *zap.SugaredLogger) *QueueHandler {
	if tokens == nil {
		panic("nil token facade passed to NewQueueHandler")
	}
	return &QueueHandler{base: base{log: log}, tokens: tokens}
}

type queueRequest struct {
	UserID  int64  `json:"user_id"`
	TokenID string `json:"token_id"`
}

// bindQueueRequest reads the optional body and falls back to the identity
// and token established by middleware.
func bindQueueRequest(c echo.Context) (queueRequest, error) {
	var req queueRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return req, err
		}
	}
	if req.UserID == 0 {
		req.UserID, _ = callerID(c)
	}
	if req.TokenID == "" {
		req.TokenID = middleware.QueueTokenID(c)
	}
	req.TokenID = strings.TrimSpace(req.TokenID)
	return req, nil
}

// Issue handles POST /v1/queue/tokens.  The response carries the token and
// a signed credential to present on concert routes.
func (h *QueueHandler) Issue(c echo.Context) error {
	req, err := bindQueueRequest(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID <= 0 {
		return badRequest(c, "user_id is required")
	}
	issued, err := h.tokens.Issue(c.Request().Context(), req.UserID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, issued)
}

// Status handles GET /v1/queue/tokens/:tokenId.
func (h *QueueHandler) Status(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return badRequest(c, "X-User-Id is required")
	}
	st, err := h.tokens.Status(c.Request().Context(), userID, c.Param("tokenId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Check handles POST /v1/queue/check.  It succeeds only for the owner of
// an ACTIVE token.
func (h *QueueHandler) Check(c echo.Context) error {
	req, err := bindQueueRequest(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID <= 0 || req.TokenID == "" {
		return badRequest(c, "user_id and token_id are required")
	}
	tok, err := h.tokens.Check(c.Request().Context(), req.UserID, req.TokenID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, tok)
}

// Stats handles GET /v1/queue/stats.
func (h *QueueHandler) Stats(c echo.Context) error {
	st, err := h.tokens.Stats(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
