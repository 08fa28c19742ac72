package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/concert-reservation/internal/model"
)

const seatColumns = `id, timeslot_id, seat_no, price, status, holder_id, hold_expires_at, expired_holder_id, version`

const (
	qListTimeslots = `SELECT id, concert_id, starts_at FROM timeslots WHERE concert_id = ? ORDER BY starts_at, id`
	qGetTimeslot   = `SELECT id, concert_id, starts_at FROM timeslots WHERE id = ?`
	qListSeats     = `SELECT ` + seatColumns + ` FROM seats WHERE timeslot_id = ? ORDER BY seat_no`
	qGetSeat       = `SELECT ` + seatColumns + ` FROM seats WHERE id = ?`
	qCountAvail    = `SELECT COUNT(*) FROM seats WHERE timeslot_id = ? AND (status = 'FREE' OR (status = 'HELD' AND hold_expires_at <= ?))`
	qSeatExists    = `SELECT COUNT(*) FROM seats WHERE id = ?`
	qUpdateSeat    = `UPDATE seats SET status = ?, holder_id = ?, hold_expires_at = ?, expired_holder_id = ?, version = version + 1 WHERE id = ? AND version = ?`
	qDebitPoints   = `UPDATE user_points SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`
	qInsertPointH  = `INSERT INTO point_histories (user_id, type, amount, created_at) VALUES (?, ?, ?, ?)`
	qInsertPayH    = `INSERT INTO pay_histories (id, user_id, seat_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`
	qExpiredHolds  = `SELECT ` + seatColumns + ` FROM seats WHERE status = 'HELD' AND hold_expires_at <= ? ORDER BY hold_expires_at LIMIT ?`
	qListPayH      = `SELECT id, user_id, seat_id, amount, created_at FROM pay_histories WHERE user_id = ? ORDER BY created_at, id`
)

// SeatRepo provides data access to timeslots, seats and pay_histories.
// Seat writes are guarded by the version column: an UPDATE that matches no
// row means another writer won and the caller must re-read.
type SeatRepo struct {
	db *sql.DB
}

var _ SeatStore = (*SeatRepo)(nil)

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

func (r *SeatRepo) ListTimeslots(ctx context.Context, concertID int64) ([]model.Timeslot, error) {
	rows, err := r.db.QueryContext(ctx, qListTimeslots, concertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Timeslot{}
	for rows.Next() {
		var ts model.Timeslot
		if err := rows.Scan(&ts.ID, &ts.ConcertID, &ts.StartsAt); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (r *SeatRepo) GetTimeslot(ctx context.Context, id int64) (model.Timeslot, error) {
	var ts model.Timeslot
	err := r.db.QueryRowContext(ctx, qGetTimeslot, id).Scan(&ts.ID, &ts.ConcertID, &ts.StartsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Timeslot{}, ErrNotFound
	}
	return ts, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeat(sc rowScanner) (model.Seat, error) {
	var (
		s         model.Seat
		status    string
		holder    sql.NullInt64
		expiresAt sql.NullTime
		expired   sql.NullInt64
	)
	if err := sc.Scan(&s.ID, &s.TimeslotID, &s.SeatNo, &s.Price, &status, &holder, &expiresAt, &expired, &s.Version); err != nil {
		return model.Seat{}, err
	}
	s.Status = model.SeatStatus(status)
	s.HolderID = holder.Int64
	s.ExpiredHolderID = expired.Int64
	if expiresAt.Valid {
		s.HoldExpiresAt = expiresAt.Time.UTC()
	}
	return s, nil
}

func (r *SeatRepo) querySeats(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Seat{}
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SeatRepo) ListSeats(ctx context.Context, timeslotID int64) ([]model.Seat, error) {
	return r.querySeats(ctx, qListSeats, timeslotID)
}

func (r *SeatRepo) GetSeat(ctx context.Context, id int64) (model.Seat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx, qGetSeat, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Seat{}, ErrNotFound
	}
	return s, err
}

func (r *SeatRepo) CountAvailable(ctx context.Context, timeslotID int64, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, qCountAvail, timeslotID, now.UTC()).Scan(&n)
	return n, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSeat(ctx context.Context, ex execer, s *model.Seat, expectedVersion int64) (bool, error) {
	res, err := ex.ExecContext(ctx, qUpdateSeat,
		string(s.Status), nullInt(s.HolderID), nullTime(s.HoldExpiresAt), nullInt(s.ExpiredHolderID),
		s.ID, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// conflictOrMissing tells a lost race apart from an unknown seat after a
// versioned UPDATE matched nothing.
func (r *SeatRepo) conflictOrMissing(ctx context.Context, id int64) error {
	var n int
	if err := r.db.QueryRowContext(ctx, qSeatExists, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *SeatRepo) UpdateSeat(ctx context.Context, s *model.Seat, expectedVersion int64) error {
	ok, err := updateSeat(ctx, r.db, s, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		return r.conflictOrMissing(ctx, s.ID)
	}
	s.Version = expectedVersion + 1
	return nil
}

// SellSeat marks the seat SOLD, debits the buyer's points and records the
// sale in a single transaction.
func (r *SeatRepo) SellSeat(ctx context.Context, s *model.Seat, expectedVersion int64, ph *model.PayHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sell: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := updateSeat(ctx, tx, s, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVersionConflict
	}

	if ph.Amount > 0 {
		res, err := tx.ExecContext(ctx, qDebitPoints, ph.Amount, ph.CreatedAt.UTC(), ph.UserID, ph.Amount)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrInsufficientBalance
		}
		if _, err := tx.ExecContext(ctx, qInsertPointH, ph.UserID, string(model.PointUse), ph.Amount, ph.CreatedAt.UTC()); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, qInsertPayH, ph.ID, ph.UserID, ph.SeatID, ph.Amount, ph.CreatedAt.UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sell: %w", err)
	}
	committed = true
	s.Version = expectedVersion + 1
	return nil
}

func (r *SeatRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error) {
	return r.querySeats(ctx, qExpiredHolds, now.UTC(), limit)
}

func (r *SeatRepo) ListPayHistories(ctx context.Context, userID int64) ([]model.PayHistory, error) {
	rows, err := r.db.QueryContext(ctx, qListPayH, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PayHistory{}
	for rows.Next() {
		var ph model.PayHistory
		if err := rows.Scan(&ph.ID, &ph.UserID, &ph.SeatID, &ph.Amount, &ph.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
