package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS concerts (
		id BIGINT PRIMARY KEY,
		title VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timeslots (
		id BIGINT PRIMARY KEY,
		concert_id BIGINT NOT NULL,
		starts_at DATETIME NOT NULL,
		KEY idx_timeslots_concert (concert_id, starts_at)
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id BIGINT PRIMARY KEY,
		timeslot_id BIGINT NOT NULL,
		seat_no INT NOT NULL,
		price BIGINT NOT NULL,
		status ENUM('FREE','HELD','SOLD') NOT NULL DEFAULT 'FREE',
		holder_id BIGINT NULL,
		hold_expires_at DATETIME(3) NULL,
		expired_holder_id BIGINT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_seats_slot_no (timeslot_id, seat_no),
		KEY idx_seats_hold (status, hold_expires_at)
	)`,
	`CREATE TABLE IF NOT EXISTS pay_histories (
		id CHAR(36) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		seat_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_pay_histories_seat (seat_id),
		KEY idx_pay_histories_user (user_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS user_points (
		user_id BIGINT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS point_histories (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		type ENUM('CHARGE','USE') NOT NULL,
		amount BIGINT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		KEY idx_point_histories_user (user_id)
	)`,
}

// Migrate creates the tables used by the reservation store when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SeedDemo inserts concert 1 with two timeslots of seatsPerSlot seats.
// Existing rows are left untouched.
func SeedDemo(ctx context.Context, db *sql.DB, base time.Time, seatsPerSlot int, price int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO concerts (id, title) VALUES (1, 'Demo Concert')`); err != nil {
		return err
	}
	day := time.Date(base.Year(), base.Month(), base.Day(), 19, 0, 0, 0, time.UTC)
	seatID := int64(1)
	for slot := int64(1); slot <= 2; slot++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO timeslots (id, concert_id, starts_at) VALUES (?, 1, ?)`,
			slot, day.AddDate(0, 0, 6+int(slot))); err != nil {
			return err
		}
		for no := 1; no <= seatsPerSlot; no++ {
			if _, err := tx.ExecContext(ctx,
				`INSERT IGNORE INTO seats (id, timeslot_id, seat_no, price) VALUES (?, ?, ?, ?)`,
				seatID, slot, no, price); err != nil {
				return err
			}
			seatID++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
