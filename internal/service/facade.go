package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/queue"
	"github.com/iliyamo/concert-reservation/internal/utils"
)

// AdmissionQueue is the part of the token service the concert journey
// depends on.
type AdmissionQueue interface {
	Check(ctx context.Context, userID int64, tokenID string) (model.Token, error)
	Retire(ctx context.Context, tokenID string) error
}

// ReservationEngine is the part of the concert service the concert journey
// depends on.
type ReservationEngine interface {
	ListTimeslots(ctx context.Context, concertID int64) ([]model.TimeslotAvailability, error)
	Timeslot(ctx context.Context, id int64) (model.Timeslot, error)
	ListSeats(ctx context.Context, timeslotID int64) ([]model.Seat, error)
	Seat(ctx context.Context, id int64) (model.Seat, error)
	Occupy(ctx context.Context, seatID, userID int64) (model.Seat, error)
	Pay(ctx context.Context, seatID, userID int64) (model.Seat, model.PayHistory, error)
}

var (
	_ AdmissionQueue    = (*TokenService)(nil)
	_ ReservationEngine = (*ConcertService)(nil)
)

// IssuedToken is a queue token together with its signed credential.
type IssuedToken struct {
	model.Token
	Credential string `json:"credential"`
}

// TokenFacade is the entry point of the queue journey.
type TokenFacade struct {
	tokens *TokenService
	clock  clock.Clock
	secret string
}

func NewTokenFacade(tokens *TokenService, clk clock.Clock, secret string) *TokenFacade {
	return &TokenFacade{tokens: tokens, clock: clk, secret: secret}
}

// Issue enters the user into the line and signs a credential that stays
// valid for as long as the token could wait and then be active.
func (f *TokenFacade) Issue(ctx context.Context, userID int64) (IssuedToken, error) {
	tok, err := f.tokens.Issue(ctx, userID)
	if err != nil {
		return IssuedToken{}, err
	}
	cred, err := utils.SignQueueToken(f.secret, tok.ID, tok.UserID, f.clock.Now(), 24*time.Hour+f.tokens.ActiveTTL())
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: tok, Credential: cred}, nil
}

func (f *TokenFacade) Check(ctx context.Context, userID int64, tokenID string) (model.Token, error) {
	return f.tokens.Check(ctx, userID, tokenID)
}

func (f *TokenFacade) Status(ctx context.Context, userID int64, tokenID string) (QueueStatus, error) {
	return f.tokens.Status(ctx, userID, tokenID)
}

func (f *TokenFacade) Stats(ctx context.Context) (QueueStats, error) {
	return f.tokens.Stats(ctx)
}

// SeatRef addresses a seat through the catalog path it was requested on.
type SeatRef struct {
	ConcertID  int64
	TimeslotID int64
	SeatID     int64
}

// Receipt is the outcome of a successful payment.
type Receipt struct {
	Seat       model.Seat       `json:"seat"`
	PayHistory model.PayHistory `json:"pay_history"`
}

// ConcertFacade runs the concert journey.  Every call checks the caller's
// token first and only then reaches the reservation engine.
type ConcertFacade struct {
	queue  AdmissionQueue
	engine ReservationEngine
	events EventPublisher
	log    *zap.SugaredLogger
}

func NewConcertFacade(q AdmissionQueue, engine ReservationEngine, events EventPublisher, log *zap.SugaredLogger) *ConcertFacade {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConcertFacade{queue: q, engine: engine, events: events, log: log}
}

func (f *ConcertFacade) Timeslots(ctx context.Context, userID int64, tokenID string, concertID int64) ([]model.TimeslotAvailability, error) {
	if _, err := f.queue.Check(ctx, userID, tokenID); err != nil {
		return nil, err
	}
	return f.engine.ListTimeslots(ctx, concertID)
}

func (f *ConcertFacade) Seats(ctx context.Context, userID int64, tokenID string, concertID, timeslotID int64) ([]model.Seat, error) {
	if _, err := f.queue.Check(ctx, userID, tokenID); err != nil {
		return nil, err
	}
	if err := f.timeslotOf(ctx, concertID, timeslotID); err != nil {
		return nil, err
	}
	return f.engine.ListSeats(ctx, timeslotID)
}

func (f *ConcertFacade) Occupy(ctx context.Context, userID int64, tokenID string, ref SeatRef) (model.Seat, error) {
	if _, err := f.queue.Check(ctx, userID, tokenID); err != nil {
		return model.Seat{}, err
	}
	if err := f.seatOf(ctx, ref); err != nil {
		return model.Seat{}, err
	}
	return f.engine.Occupy(ctx, ref.SeatID, userID)
}

// Pay sells the held seat, retires the token that authorized the purchase
// and announces the sale.  Neither of the last two can fail the purchase.
func (f *ConcertFacade) Pay(ctx context.Context, userID int64, tokenID string, ref SeatRef) (Receipt, error) {
	if _, err := f.queue.Check(ctx, userID, tokenID); err != nil {
		return Receipt{}, err
	}
	if err := f.seatOf(ctx, ref); err != nil {
		return Receipt{}, err
	}
	seat, ph, err := f.engine.Pay(ctx, ref.SeatID, userID)
	if err != nil {
		return Receipt{}, err
	}

	if err := f.queue.Retire(ctx, tokenID); err != nil {
		f.log.Warnf("retire token[%s] after sale of seat[%d] failed: %v", tokenID, seat.ID, err)
	}
	ev := queue.SeatSoldEvent{
		PayHistoryID: ph.ID,
		UserID:       userID,
		ConcertID:    ref.ConcertID,
		TimeslotID:   seat.TimeslotID,
		SeatID:       seat.ID,
		SeatNo:       seat.SeatNo,
		Amount:       ph.Amount,
		SoldAt:       ph.CreatedAt.Format(time.RFC3339),
	}
	if err := f.events.PublishSeatSold(ctx, ev); err != nil {
		f.log.Warnf("publish seat.sold for seat[%d] failed: %v", seat.ID, err)
	}
	return Receipt{Seat: seat, PayHistory: ph}, nil
}

func (f *ConcertFacade) timeslotOf(ctx context.Context, concertID, timeslotID int64) error {
	ts, err := f.engine.Timeslot(ctx, timeslotID)
	if err != nil {
		return err
	}
	if ts.ConcertID != concertID {
		return ErrTimeslotNotFound
	}
	return nil
}

func (f *ConcertFacade) seatOf(ctx context.Context, ref SeatRef) error {
	if err := f.timeslotOf(ctx, ref.ConcertID, ref.TimeslotID); err != nil {
		return err
	}
	seat, err := f.engine.Seat(ctx, ref.SeatID)
	if err != nil {
		return err
	}
	if seat.TimeslotID != ref.TimeslotID {
		return ErrSeatNotFound
	}
	return nil
}
