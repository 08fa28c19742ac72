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
	defaultHoldTTL  = 5 * time.Minute
	maxSeatAttempts = 8
	sweepBatchLimit = 500
)

// ConcertService is the reservation engine.  Every seat transition is a
// versioned write of a single seat: a writer that loses re-reads the seat
// and reports what it finds, so at most one transition per version wins.
type ConcertService struct {
	seats   repository.SeatStore
	clock   clock.Clock
	log     *zap.SugaredLogger
	holdTTL time.Duration
}

type ConcertOption func(*ConcertService)

// WithHoldTTL sets how long an occupied seat stays HELD without payment.
func WithHoldTTL(d time.Duration) ConcertOption {
	return func(s *ConcertService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func NewConcertService(seats repository.SeatStore, clk clock.Clock, log *zap.SugaredLogger, opts ...ConcertOption) *ConcertService {
	s := &ConcertService{
		seats:   seats,
		clock:   clk,
		log:     log,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConcertService) HoldTTL() time.Duration { return s.holdTTL }

// ListTimeslots returns the concert's timeslots with their remaining seats.
func (s *ConcertService) ListTimeslots(ctx context.Context, concertID int64) ([]model.TimeslotAvailability, error) {
	slots, err := s.seats.ListTimeslots(ctx, concertID)
	if err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	now := s.clock.Now()
	out := make([]model.TimeslotAvailability, 0, len(slots))
	for _, ts := range slots {
		n, err := s.seats.CountAvailable(ctx, ts.ID, now)
		if err != nil {
			return nil, fmt.Errorf("count seats of timeslot %d: %w", ts.ID, err)
		}
		out = append(out, model.TimeslotAvailability{Timeslot: ts, Remaining: n})
	}
	return out, nil
}

func (s *ConcertService) Timeslot(ctx context.Context, id int64) (model.Timeslot, error) {
	ts, err := s.seats.GetTimeslot(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Timeslot{}, ErrTimeslotNotFound
	}
	if err != nil {
		return model.Timeslot{}, fmt.Errorf("load timeslot: %w", err)
	}
	return ts, nil
}

// ListSeats returns seat snapshots of a timeslot.  Lapsed holds are freed
// on the way and always reported as FREE.
func (s *ConcertService) ListSeats(ctx context.Context, timeslotID int64) ([]model.Seat, error) {
	if _, err := s.Timeslot(ctx, timeslotID); err != nil {
		return nil, err
	}
	seats, err := s.seats.ListSeats(ctx, timeslotID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	now := s.clock.Now()
	for i, seat := range seats {
		if seat.HoldExpired(now) {
			s.release(ctx, seat)
			seats[i] = seat.Released()
		}
	}
	return seats, nil
}

// Seat returns a single seat as of now without writing.
func (s *ConcertService) Seat(ctx context.Context, id int64) (model.Seat, error) {
	seat, err := s.load(ctx, id)
	if err != nil {
		return model.Seat{}, err
	}
	if seat.HoldExpired(s.clock.Now()) {
		return seat.Released(), nil
	}
	return seat, nil
}

func (s *ConcertService) load(ctx context.Context, id int64) (model.Seat, error) {
	seat, err := s.seats.GetSeat(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Seat{}, ErrSeatNotFound
	}
	if err != nil {
		return model.Seat{}, fmt.Errorf("load seat %d: %w", id, err)
	}
	return seat, nil
}

// release frees a lapsed hold.  A conflict means another writer already
// moved the seat on, which is just as good.
func (s *ConcertService) release(ctx context.Context, seat model.Seat) bool {
	next := seat.Released()
	err := s.seats.UpdateSeat(ctx, &next, seat.Version)
	switch {
	case err == nil:
		s.log.Debugf("hold released seat[%d] holder[%d]", seat.ID, seat.HolderID)
		return true
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, repository.ErrNotFound):
		return false
	default:
		s.log.Warnf("release seat[%d] failed: %v", seat.ID, err)
		return false
	}
}

// Occupy holds a FREE seat, or one whose hold lapsed, for userID.
func (s *ConcertService) Occupy(ctx context.Context, seatID, userID int64) (model.Seat, error) {
	if userID <= 0 {
		return model.Seat{}, ErrInvalidUserID
	}
	for attempt := 0; attempt < maxSeatAttempts; attempt++ {
		cur, err := s.load(ctx, seatID)
		if err != nil {
			return model.Seat{}, err
		}
		now := s.clock.Now()
		if !cur.Available(now) {
			return model.Seat{}, ErrSeatUnavailable
		}

		next := cur.Released()
		next.Status = model.SeatHeld
		next.HolderID = userID
		next.HoldExpiresAt = now.Add(s.holdTTL)
		err = s.seats.UpdateSeat(ctx, &next, cur.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return model.Seat{}, fmt.Errorf("occupy seat %d: %w", seatID, err)
		}
		s.log.Debugf("seat held seat[%d] user[%d] until[%s]", seatID, userID, next.HoldExpiresAt.Format(time.RFC3339))
		return next, nil
	}
	return model.Seat{}, ErrSeatUnavailable
}

// Pay turns the user's live hold into a sale, charging the seat price to
// the user's points and writing the PayHistory in the same step.
func (s *ConcertService) Pay(ctx context.Context, seatID, userID int64) (model.Seat, model.PayHistory, error) {
	if userID <= 0 {
		return model.Seat{}, model.PayHistory{}, ErrInvalidUserID
	}
	for attempt := 0; attempt < maxSeatAttempts; attempt++ {
		cur, err := s.load(ctx, seatID)
		if err != nil {
			return model.Seat{}, model.PayHistory{}, err
		}
		now := s.clock.Now()

		switch {
		case cur.Status == model.SeatSold:
			return model.Seat{}, model.PayHistory{}, ErrSeatAlreadySold
		case cur.Status == model.SeatHeld && cur.HolderID == userID:
			if cur.HoldExpired(now) {
				s.release(ctx, cur)
				return model.Seat{}, model.PayHistory{}, ErrHoldExpired
			}
		case cur.ExpiredHolderID == userID:
			return model.Seat{}, model.PayHistory{}, ErrHoldExpired
		default:
			return model.Seat{}, model.PayHistory{}, ErrSeatNotHeldByUser
		}

		sold := cur
		sold.Status = model.SeatSold
		sold.HoldExpiresAt = time.Time{}
		ph := model.PayHistory{
			ID:        uuid.NewString(),
			UserID:    userID,
			SeatID:    seatID,
			Amount:    cur.Price,
			CreatedAt: now,
		}
		err = s.seats.SellSeat(ctx, &sold, cur.Version, &ph)
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			continue
		case errors.Is(err, repository.ErrInsufficientBalance):
			return model.Seat{}, model.PayHistory{}, ErrInsufficientPoint
		case err != nil:
			return model.Seat{}, model.PayHistory{}, fmt.Errorf("pay seat %d: %w", seatID, err)
		}
		s.log.Infof("seat sold seat[%d] user[%d] amount[%d]", seatID, userID, ph.Amount)
		return sold, ph, nil
	}
	return model.Seat{}, model.PayHistory{}, fmt.Errorf("pay seat %d: %w", seatID, errContention)
}

// ReleaseExpired frees every lapsed hold and returns how many it freed.
func (s *ConcertService) ReleaseExpired(ctx context.Context) (int, error) {
	expired, err := s.seats.ListExpiredHolds(ctx, s.clock.Now(), sweepBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}
	n := 0
	for _, seat := range expired {
		if s.release(ctx, seat) {
			n++
		}
	}
	return n, nil
}

func (s *ConcertService) PayHistories(ctx context.Context, userID int64) ([]model.PayHistory, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	return s.seats.ListPayHistories(ctx, userID)
}
