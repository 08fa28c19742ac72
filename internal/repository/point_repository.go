package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/concert-reservation/internal/model"
)

const (
	qGetPoint       = `SELECT user_id, balance, updated_at FROM user_points WHERE user_id = ?`
	qUpsertPoint    = `INSERT INTO user_points (user_id, balance, updated_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = VALUES(updated_at)`
	qListPointHists = `SELECT id, user_id, type, amount, created_at FROM point_histories WHERE user_id = ? ORDER BY id`
)

// PointRepo provides data access to user_points and point_histories.
type PointRepo struct {
	db *sql.DB
}

var _ PointStore = (*PointRepo)(nil)

func NewPointRepo(db *sql.DB) *PointRepo { return &PointRepo{db: db} }

// Point returns the user's balance.  Users who never charged have zero points.
func (r *PointRepo) Point(ctx context.Context, userID int64) (model.UserPoint, error) {
	return scanPoint(r.db.QueryRowContext(ctx, qGetPoint, userID), userID)
}

func scanPoint(row *sql.Row, userID int64) (model.UserPoint, error) {
	var p model.UserPoint
	err := row.Scan(&p.UserID, &p.Balance, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserPoint{UserID: userID}, nil
	}
	return p, err
}

// Charge adds amount to the balance and records a CHARGE history row.
func (r *PointRepo) Charge(ctx context.Context, userID, amount int64, at time.Time) (model.UserPoint, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UserPoint{}, fmt.Errorf("begin charge: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, qUpsertPoint, userID, amount, at.UTC()); err != nil {
		return model.UserPoint{}, err
	}
	if _, err := tx.ExecContext(ctx, qInsertPointH, userID, string(model.PointCharge), amount, at.UTC()); err != nil {
		return model.UserPoint{}, err
	}
	p, err := scanPoint(tx.QueryRowContext(ctx, qGetPoint, userID), userID)
	if err != nil {
		return model.UserPoint{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.UserPoint{}, fmt.Errorf("commit charge: %w", err)
	}
	committed = true
	return p, nil
}

func (r *PointRepo) Histories(ctx context.Context, userID int64) ([]model.PointHistory, error) {
	rows, err := r.db.QueryContext(ctx, qListPointHists, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PointHistory{}
	for rows.Next() {
		var (
			h  model.PointHistory
			tp string
		)
		if err := rows.Scan(&h.ID, &h.UserID, &tp, &h.Amount, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Type = model.PointType(tp)
		out = append(out, h)
	}
	return out, rows.Err()
}
