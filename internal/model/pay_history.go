package model

import "time"

// PayHistory is the immutable proof of a completed seat sale.  Exactly one
// row exists per sold seat.
type PayHistory struct {
	ID        string    `json:"id"`         // pay_histories.id
	UserID    int64     `json:"user_id"`    // pay_histories.user_id
	SeatID    int64     `json:"seat_id"`    // pay_histories.seat_id
	Amount    int64     `json:"amount"`     // pay_histories.amount
	CreatedAt time.Time `json:"created_at"` // pay_histories.created_at
}
