package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository/memory"
)

func TestIssue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)

	a, err := env.tokens.Issue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.TokenWaiting, a.Status)
	assert.Equal(t, int64(0), a.Position)

	b, err := env.tokens.Issue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Position)

	t.Run("waiting user gets the same token back", func(t *testing.T) {
		again, err := env.tokens.Issue(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.ID, again.ID)
	})

	t.Run("active user is refused", func(t *testing.T) {
		_, err := env.tokens.Advance(ctx)
		require.NoError(t, err)
		_, err = env.tokens.Issue(ctx, 1)
		assert.ErrorIs(t, err, ErrDuplicateActiveSession)
	})

	t.Run("lapsed active token is replaced", func(t *testing.T) {
		env.clock.Advance(10 * time.Minute)
		tok, err := env.tokens.Issue(ctx, 1)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, tok.ID)
		assert.Equal(t, model.TokenWaiting, tok.Status)
		assert.Equal(t, int64(2), tok.Position)
	})

	t.Run("invalid user", func(t *testing.T) {
		_, err := env.tokens.Issue(ctx, 0)
		assert.ErrorIs(t, err, ErrInvalidUserID)
	})
}

func TestIssueConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)

	ids := make([]string, 32)
	errs := runConcurrently(len(ids), func(i int) error {
		tok, err := env.tokens.Issue(ctx, 5)
		ids[i] = tok.ID
		return err
	})
	for i, err := range errs {
		require.NoError(t, err)
		assert.Equal(t, ids[0], ids[i])
	}

	stats, err := env.tokens.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Waiting)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	active := env.admit(t, 1)
	waiting, err := env.tokens.Issue(ctx, 2)
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  int64
		tokenID string
		wantErr error
	}{
		{name: "active owner", userID: 1, tokenID: active.ID},
		{name: "unknown token", userID: 1, tokenID: "missing", wantErr: ErrTokenNotFound},
		{name: "empty token", userID: 1, tokenID: "", wantErr: ErrTokenNotFound},
		{name: "owner mismatch on active", userID: 2, tokenID: active.ID, wantErr: ErrTokenOwnerMismatch},
		{name: "owner mismatch on waiting", userID: 1, tokenID: waiting.ID, wantErr: ErrTokenOwnerMismatch},
		{name: "waiting", userID: 2, tokenID: waiting.ID, wantErr: ErrTokenNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := env.tokens.Check(ctx, tt.userID, tt.tokenID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.TokenActive, tok.Status)
		})
	}
}

func TestCheckExpiresLapsedToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	tok := env.admit(t, 1)

	env.clock.Advance(10 * time.Minute)
	_, err := env.tokens.Check(ctx, 1, tok.ID)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = env.tokens.Check(ctx, 1, tok.ID)
	assert.ErrorIs(t, err, ErrTokenNotActive)
	_, err = env.tokens.Check(ctx, 2, tok.ID)
	assert.ErrorIs(t, err, ErrTokenOwnerMismatch)

	st, err := env.tokens.Status(ctx, 1, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenExpired, st.Token.Status)
}

func TestAdvancePromotesInPositionOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 2)

	toks := make([]model.Token, 5)
	for i := range toks {
		tok, err := env.tokens.Issue(ctx, int64(i+1))
		require.NoError(t, err)
		toks[i] = tok
	}

	n, err := env.tokens.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assertActive(t, env, toks, 0, 1)

	n, err = env.tokens.Advance(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "advance is idempotent while at capacity")

	require.NoError(t, env.tokens.Retire(ctx, toks[0].ID))
	_, err = env.tokens.Advance(ctx)
	require.NoError(t, err)
	assertActive(t, env, toks, 1, 2)

	st, err := env.tokens.Status(ctx, 5, toks[4].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Ahead)
}

func TestAdvanceExpiresLapsedActiveTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	first := env.admit(t, 1)
	second, err := env.tokens.Issue(ctx, 2)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	n, err := env.tokens.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.tokens.Check(ctx, 1, first.ID)
	assert.ErrorIs(t, err, ErrTokenNotActive)
	_, err = env.tokens.Check(ctx, 2, second.ID)
	assert.NoError(t, err)
}

func TestAdvanceConcurrentNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	for i := 1; i <= 20; i++ {
		_, err := env.tokens.Issue(ctx, int64(i))
		require.NoError(t, err)
	}

	errs := runConcurrently(16, func(int) error {
		_, err := env.tokens.Advance(ctx)
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	// A sweep that lost the lock returns early; one more settles the line.
	_, err := env.tokens.Advance(ctx)
	require.NoError(t, err)

	stats, err := env.tokens.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 17, stats.Waiting)
	assert.Equal(t, int64(3), stats.HeadPosition)
}

func TestRetire(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	tok := env.admit(t, 1)

	require.NoError(t, env.tokens.Retire(ctx, tok.ID))
	require.NoError(t, env.tokens.Retire(ctx, tok.ID))
	assert.ErrorIs(t, env.tokens.Retire(ctx, "missing"), ErrTokenNotFound)

	again, err := env.tokens.Issue(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, tok.ID, again.ID)
}

func assertActive(t *testing.T, env *testEnv, toks []model.Token, want ...int) {
	t.Helper()
	isWanted := make(map[int]bool, len(want))
	for _, i := range want {
		isWanted[i] = true
	}
	for i, tok := range toks {
		st, err := env.tokens.Status(context.Background(), tok.UserID, tok.ID)
		require.NoError(t, err)
		if isWanted[i] {
			assert.Equal(t, model.TokenActive, st.Token.Status, fmt.Sprintf("token %d", i))
		} else {
			assert.NotEqual(t, model.TokenActive, st.Token.Status, fmt.Sprintf("token %d", i))
		}
	}
}

func TestOptionsIgnoreNonPositiveValues(t *testing.T) {
	log := zap.NewNop().Sugar()
	clk := clock.NewManual(t0)

	tokens := NewTokenService(memory.NewTokenStore(), clk, log, WithCapacity(0), WithActiveTTL(-time.Second))
	assert.Equal(t, defaultQueueCapacity, tokens.Capacity())
	assert.Equal(t, defaultActiveTTL, tokens.ActiveTTL())

	tokens = NewTokenService(memory.NewTokenStore(), clk, log, WithCapacity(3), WithActiveTTL(time.Minute))
	assert.Equal(t, 3, tokens.Capacity())
	assert.Equal(t, time.Minute, tokens.ActiveTTL())

	concerts := NewConcertService(memory.NewStore(), clk, log, WithHoldTTL(0))
	assert.Equal(t, defaultHoldTTL, concerts.HoldTTL())
	concerts = NewConcertService(memory.NewStore(), clk, log, WithHoldTTL(2*time.Minute))
	assert.Equal(t, 2*time.Minute, concerts.HoldTTL())
}
