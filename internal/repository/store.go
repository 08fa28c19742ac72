package repository

import (
	"context"
	"time"

	"github.com/iliyamo/concert-reservation/internal/model"
)

// TokenStore persists queue tokens.  Every mutation of a single token is
// atomic; only the advance lock spans more than one token.
type TokenStore interface {
	// Create assigns the next sequential position to t and stores it.  It
	// fails with ErrLiveTokenExists when t.UserID already owns a live token.
	Create(ctx context.Context, t *model.Token) error
	Get(ctx context.Context, id string) (model.Token, error)
	// LiveByUser returns the user's WAITING or ACTIVE token.
	LiveByUser(ctx context.Context, userID int64) (model.Token, error)
	// ListWaiting returns up to limit WAITING tokens in position order.
	ListWaiting(ctx context.Context, limit int) ([]model.Token, error)
	CountWaiting(ctx context.Context) (int, error)
	// CountAhead returns how many WAITING tokens have a smaller position.
	CountAhead(ctx context.Context, position int64) (int, error)
	ListActive(ctx context.Context) ([]model.Token, error)
	// CompareAndSwap stores t only if the stored status still equals
	// expected.  It reports whether the write happened.
	CompareAndSwap(ctx context.Context, expected model.TokenStatus, t *model.Token) (bool, error)
	// AcquireAdvanceLock serializes admission sweeps.  The returned release
	// func must be called once the sweep ends.
	AcquireAdvanceLock(ctx context.Context, ttl time.Duration) (release func(), err error)
}

// SeatStore persists the catalog, seat occupancy and sale records.
type SeatStore interface {
	ListTimeslots(ctx context.Context, concertID int64) ([]model.Timeslot, error)
	GetTimeslot(ctx context.Context, id int64) (model.Timeslot, error)
	ListSeats(ctx context.Context, timeslotID int64) ([]model.Seat, error)
	GetSeat(ctx context.Context, id int64) (model.Seat, error)
	// CountAvailable counts seats that are FREE or whose hold lapsed at now.
	CountAvailable(ctx context.Context, timeslotID int64, now time.Time) (int, error)
	// UpdateSeat writes s if the stored version equals expectedVersion and
	// bumps s.Version.  Otherwise it returns ErrVersionConflict.
	UpdateSeat(ctx context.Context, s *model.Seat, expectedVersion int64) error
	// SellSeat writes the SOLD seat, debits ph.Amount points from ph.UserID
	// and stores ph as one atomic unit.  A shortfall returns
	// ErrInsufficientBalance and writes nothing.
	SellSeat(ctx context.Context, s *model.Seat, expectedVersion int64, ph *model.PayHistory) error
	// ListExpiredHolds returns up to limit HELD seats whose hold lapsed at now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error)
	ListPayHistories(ctx context.Context, userID int64) ([]model.PayHistory, error)
}

// PointStore persists user point balances and their history.
type PointStore interface {
	Point(ctx context.Context, userID int64) (model.UserPoint, error)
	Charge(ctx context.Context, userID, amount int64, at time.Time) (model.UserPoint, error)
	Histories(ctx context.Context, userID int64) ([]model.PointHistory, error)
}
