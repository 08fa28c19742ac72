package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/queue"
	"github.com/iliyamo/concert-reservation/internal/repository/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	clock    *clock.Manual
	tokens   *TokenService
	concerts *ConcertService
	points   *PointService
	store    *memory.Store
	events   *recordingPublisher
	facade   *ConcertFacade
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()
	log := zap.NewNop().Sugar()
	clk := clock.NewManual(t0)
	store := memory.NewStore()
	store.SeedDemo(t0)

	env := &testEnv{
		clock:    clk,
		store:    store,
		tokens:   NewTokenService(memory.NewTokenStore(), clk, log, WithCapacity(capacity), WithActiveTTL(10*time.Minute)),
		concerts: NewConcertService(store, clk, log, WithHoldTTL(5*time.Minute)),
		points:   NewPointService(store, clk, log),
		events:   &recordingPublisher{},
	}
	env.facade = NewConcertFacade(env.tokens, env.concerts, env.events, log)
	return env
}

// admit issues a token for userID and advances the line once.
func (e *testEnv) admit(t *testing.T, userID int64) model.Token {
	t.Helper()
	tok, err := e.tokens.Issue(context.Background(), userID)
	require.NoError(t, err)
	_, err = e.tokens.Advance(context.Background())
	require.NoError(t, err)
	return tok
}

func (e *testEnv) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := e.points.Charge(context.Background(), userID, amount)
	require.NoError(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.SeatSoldEvent
	err    error
}

func (p *recordingPublisher) PublishSeatSold(_ context.Context, ev queue.SeatSoldEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) sent() []queue.SeatSoldEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.SeatSoldEvent(nil), p.events...)
}

var errBrokerDown = errors.New("broker down")

// runConcurrently starts n goroutines at once and collects their errors.
func runConcurrently(n int, fn func(i int) error) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
