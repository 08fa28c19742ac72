package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the admission sweep and the hold sweep on fixed intervals.
// Expiry is applied lazily on access as well.
type Sweeper struct {
	tokens       *TokenService
	concerts     *ConcertService
	advanceEvery time.Duration
	holdEvery    time.Duration
	log          *zap.SugaredLogger
}

func NewSweeper(tokens *TokenService, concerts *ConcertService, advanceEvery, holdEvery time.Duration, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		tokens:       tokens,
		concerts:     concerts,
		advanceEvery: advanceEvery,
		holdEvery:    holdEvery,
		log:          log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	advance := time.NewTicker(s.advanceEvery)
	defer advance.Stop()
	holds := time.NewTicker(s.holdEvery)
	defer holds.Stop()

	s.log.Infof("sweeper started advance[%s] holds[%s]", s.advanceEvery, s.holdEvery)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-advance.C:
			if _, err := s.tokens.Advance(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("advance failed: %v", err)
			}
		case <-holds.C:
			n, err := s.concerts.ReleaseExpired(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Errorf("hold sweep failed: %v", err)
				continue
			}
			if n > 0 {
				s.log.Debugf("released expired holds[%d]", n)
			}
		}
	}
}
