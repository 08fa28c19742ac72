package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/service"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped sentinel", fmt.Errorf("pay: %w", service.ErrSeatAlreadySold), http.StatusConflict, "SEAT_ALREADY_SOLD"},
		{"hold expired", service.ErrHoldExpired, http.StatusGone, "HOLD_EXPIRED"},
		{"owner mismatch", service.ErrTokenOwnerMismatch, http.StatusForbidden, "TOKEN_OWNER_MISMATCH"},
		{"invalid amount", service.ErrInvalidAmount, http.StatusBadRequest, "INVALID_REQUEST"},
		{"another user's wallet", errOtherUser, http.StatusForbidden, "FORBIDDEN"},
		{"storage fault", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	h := &base{log: zap.NewNop().Sugar()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			assert.NoError(t, h.respondError(c, tt.err))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
		})
	}
}

func TestStorageFaultHidesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	h := &base{log: zap.NewNop().Sugar()}

	_ = h.respondError(c, errors.New("dial tcp 10.0.0.3:3306: refused"))
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}
