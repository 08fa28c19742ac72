package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository"
)

const (
	defaultQueueCapacity = 100
	defaultActiveTTL     = 10 * time.Minute
	advanceLockTTL       = 30 * time.Second
	maxTokenAttempts     = 5
	maxAdvanceRounds     = 8
)

// QueueStatus is what a waiting client polls for.
type QueueStatus struct {
	Token       model.Token `json:"token"`
	Ahead       int         `json:"ahead"`
	ActiveUntil time.Time   `json:"active_until,omitzero"`
}

// QueueStats summarizes the line.  HeadPosition is -1 when nobody waits.
type QueueStats struct {
	HeadPosition int64 `json:"head_position"`
	Waiting      int   `json:"waiting"`
	Active       int   `json:"active"`
	Capacity     int   `json:"capacity"`
}

// TokenService is the admission queue.  It issues tokens in arrival order,
// promotes them to ACTIVE while fewer than capacity are active and
// validates them on behalf of the reservation APIs.
type TokenService struct {
	store     repository.TokenStore
	clock     clock.Clock
	log       *zap.SugaredLogger
	capacity  int
	activeTTL time.Duration
}

type TokenOption func(*TokenService)

// WithCapacity sets how many tokens may be ACTIVE at once.
func WithCapacity(n int) TokenOption {
	return func(s *TokenService) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithActiveTTL sets how long an ACTIVE token stays valid.
func WithActiveTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.activeTTL = d
		}
	}
}

func NewTokenService(store repository.TokenStore, clk clock.Clock, log *zap.SugaredLogger, opts ...TokenOption) *TokenService {
	s := &TokenService{
		store:     store,
		clock:     clk,
		log:       log,
		capacity:  defaultQueueCapacity,
		activeTTL: defaultActiveTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) Capacity() int { return s.capacity }

func (s *TokenService) ActiveTTL() time.Duration { return s.activeTTL }

func (s *TokenService) lapsed(t model.Token, now time.Time) bool {
	return t.Status == model.TokenActive && !now.Before(t.ActiveUntil(s.activeTTL))
}

// expire moves t from expected to EXPIRED.  Losing the race is not an error:
// whoever won already moved the token on.
func (s *TokenService) expire(ctx context.Context, t model.Token, expected model.TokenStatus) error {
	t.Status = model.TokenExpired
	if _, err := s.store.CompareAndSwap(ctx, expected, &t); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("expire token %s: %w", t.ID, err)
	}
	return nil
}

// Issue puts the user in line.  A user already waiting gets the same token
// back; a user with a live ACTIVE token is refused.
func (s *TokenService) Issue(ctx context.Context, userID int64) (model.Token, error) {
	if userID <= 0 {
		return model.Token{}, ErrInvalidUserID
	}
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		now := s.clock.Now()
		tok := model.Token{
			ID:       uuid.NewString(),
			UserID:   userID,
			Status:   model.TokenWaiting,
			IssuedAt: now,
		}
		err := s.store.Create(ctx, &tok)
		if err == nil {
			s.log.Debugf("token issued user[%d] token[%s] position[%d]", userID, tok.ID, tok.Position)
			return tok, nil
		}
		if !errors.Is(err, repository.ErrLiveTokenExists) {
			return model.Token{}, fmt.Errorf("issue token: %w", err)
		}

		live, err := s.store.LiveByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.Token{}, fmt.Errorf("issue token: %w", err)
		}
		switch live.Status {
		case model.TokenWaiting:
			return live, nil
		case model.TokenActive:
			if !s.lapsed(live, now) {
				return model.Token{}, ErrDuplicateActiveSession
			}
			if err := s.expire(ctx, live, model.TokenActive); err != nil {
				return model.Token{}, err
			}
		}
	}
	return model.Token{}, fmt.Errorf("issue token for user %d: %w", userID, errContention)
}

// Check validates that tokenID belongs to userID and is ACTIVE.  An ACTIVE
// token whose lifetime elapsed is expired on the spot.
func (s *TokenService) Check(ctx context.Context, userID int64, tokenID string) (model.Token, error) {
	tok, err := s.get(ctx, tokenID)
	if err != nil {
		return model.Token{}, err
	}
	if tok.UserID != userID {
		return model.Token{}, ErrTokenOwnerMismatch
	}
	if tok.Status != model.TokenActive {
		return model.Token{}, ErrTokenNotActive
	}
	if s.lapsed(tok, s.clock.Now()) {
		if err := s.expire(ctx, tok, model.TokenActive); err != nil {
			return model.Token{}, err
		}
		return model.Token{}, ErrTokenExpired
	}
	return tok, nil
}

func (s *TokenService) get(ctx context.Context, tokenID string) (model.Token, error) {
	if tokenID == "" {
		return model.Token{}, ErrTokenNotFound
	}
	tok, err := s.store.Get(ctx, tokenID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

// Status reports the token and how many tokens wait ahead of it.
func (s *TokenService) Status(ctx context.Context, userID int64, tokenID string) (QueueStatus, error) {
	tok, err := s.get(ctx, tokenID)
	if err != nil {
		return QueueStatus{}, err
	}
	if tok.UserID != userID {
		return QueueStatus{}, ErrTokenOwnerMismatch
	}
	st := QueueStatus{Token: tok}
	switch tok.Status {
	case model.TokenWaiting:
		if st.Ahead, err = s.store.CountAhead(ctx, tok.Position); err != nil {
			return QueueStatus{}, fmt.Errorf("count ahead: %w", err)
		}
	case model.TokenActive:
		if s.lapsed(tok, s.clock.Now()) {
			if err := s.expire(ctx, tok, model.TokenActive); err != nil {
				return QueueStatus{}, err
			}
			st.Token.Status = model.TokenExpired
			break
		}
		st.ActiveUntil = tok.ActiveUntil(s.activeTTL)
	}
	return st, nil
}

// Advance expires lapsed ACTIVE tokens and then promotes WAITING tokens in
// position order until capacity is reached.  Only one advance runs at a
// time; a concurrent call returns immediately.
func (s *TokenService) Advance(ctx context.Context) (int, error) {
	release, err := s.store.AcquireAdvanceLock(ctx, advanceLockTTL)
	if errors.Is(err, repository.ErrLockHeld) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("advance lock: %w", err)
	}
	defer release()

	now := s.clock.Now()
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active: %w", err)
	}
	live := 0
	for _, t := range active {
		if s.lapsed(t, now) {
			if err := s.expire(ctx, t, model.TokenActive); err != nil {
				return 0, err
			}
			continue
		}
		live++
	}

	promoted := 0
	for round := 0; round < maxAdvanceRounds && live < s.capacity; round++ {
		batch, err := s.store.ListWaiting(ctx, s.capacity-live)
		if err != nil {
			return promoted, fmt.Errorf("list waiting: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, t := range batch {
			t.Status = model.TokenActive
			t.ActivatedAt = now
			ok, err := s.store.CompareAndSwap(ctx, model.TokenWaiting, &t)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return promoted, fmt.Errorf("promote token %s: %w", t.ID, err)
			}
			if ok {
				live++
				promoted++
			}
		}
	}
	if promoted > 0 {
		s.log.Infof("admitted[%d] active[%d] capacity[%d]", promoted, live, s.capacity)
	}
	return promoted, nil
}

// Retire ends the token's purchase cycle.  Retiring an EXPIRED token is a no-op.
func (s *TokenService) Retire(ctx context.Context, tokenID string) error {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		tok, err := s.get(ctx, tokenID)
		if err != nil {
			return err
		}
		if tok.Status == model.TokenExpired {
			return nil
		}
		expected := tok.Status
		tok.Status = model.TokenExpired
		ok, err := s.store.CompareAndSwap(ctx, expected, &tok)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("retire token %s: %w", tokenID, err)
		}
		if ok {
			s.log.Debugf("token retired user[%d] token[%s]", tok.UserID, tok.ID)
			return nil
		}
	}
	return fmt.Errorf("retire token %s: %w", tokenID, errContention)
}

// Stats reports the line's head position and sizes.
func (s *TokenService) Stats(ctx context.Context) (QueueStats, error) {
	st := QueueStats{HeadPosition: -1, Capacity: s.capacity}
	waiting, err := s.store.CountWaiting(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	st.Waiting = waiting
	head, err := s.store.ListWaiting(ctx, 1)
	if err != nil {
		return QueueStats{}, err
	}
	if len(head) > 0 {
		st.HeadPosition = head[0].Position
	}
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	now := s.clock.Now()
	for _, t := range active {
		if !s.lapsed(t, now) {
			st.Active++
		}
	}
	return st, nil
}
