package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/model"
)

func TestSweeperAdvancesAndReleases(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := env.admit(t, 1)
	_, err := env.concerts.Occupy(ctx, 1, first.UserID)
	require.NoError(t, err)
	waiting, err := env.tokens.Issue(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, env.tokens.Retire(ctx, first.ID))
	env.clock.Advance(6 * time.Minute)

	done := make(chan struct{})
	go func() {
		NewSweeper(env.tokens, env.concerts, 5*time.Millisecond, 5*time.Millisecond, zap.NewNop().Sugar()).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		st, err := env.tokens.Status(ctx, 2, waiting.ID)
		return err == nil && st.Token.Status == model.TokenActive
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		seat, err := env.store.GetSeat(ctx, 1)
		return err == nil && seat.Status == model.SeatFree
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
