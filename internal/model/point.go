package model

import "time"

// PointType distinguishes wallet credits from debits.
type PointType string

const (
	PointCharge PointType = "CHARGE"
	PointUse    PointType = "USE"
)

// UserPoint is a user's point balance.  Points pay for seats.
type UserPoint struct {
	UserID    int64     `json:"user_id"`    // user_points.user_id
	Balance   int64     `json:"balance"`    // user_points.balance
	UpdatedAt time.Time `json:"updated_at"` // user_points.updated_at
}

// PointHistory records a single charge or use of points.
type PointHistory struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      PointType `json:"type"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
