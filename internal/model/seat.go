package model

import "time"

// SeatStatus is the occupancy state of a seat.
type SeatStatus string

const (
	SeatFree SeatStatus = "FREE"
	SeatHeld SeatStatus = "HELD"
	SeatSold SeatStatus = "SOLD"
)

// Seat is a sellable place within one timeslot.  Only one user may hold or
// own a seat at a time and SOLD is terminal.
//
// Fields:
//
//	ID              – primary key identifier.
//	TimeslotID      – timeslot to which this seat belongs.
//	SeatNo          – number printed on the ticket.
//	Price           – price in points.
//	Status          – FREE, HELD or SOLD.
//	HolderID        – user holding or owning the seat; zero when FREE.
//	HoldExpiresAt   – end of the hold; zero unless HELD.
//	ExpiredHolderID – last user whose hold lapsed on this seat.
//	Version         – optimistic locking counter bumped on every write.
type Seat struct {
	ID              int64      `json:"id"`
	TimeslotID      int64      `json:"timeslot_id"`
	SeatNo          int        `json:"seat_no"`
	Price           int64      `json:"price"`
	Status          SeatStatus `json:"status"`
	HolderID        int64      `json:"holder_id,omitempty"`
	HoldExpiresAt   time.Time  `json:"hold_expires_at,omitzero"`
	ExpiredHolderID int64      `json:"-"`
	Version         int64      `json:"-"`
}

// HoldExpired reports whether the seat is HELD and its hold has lapsed at now.
func (s Seat) HoldExpired(now time.Time) bool {
	return s.Status == SeatHeld && !now.Before(s.HoldExpiresAt)
}

// Available reports whether an occupy at now could succeed.
func (s Seat) Available(now time.Time) bool {
	return s.Status == SeatFree || s.HoldExpired(now)
}

// Released returns the snapshot of the seat after its lapsed hold is dropped.
// The previous holder is remembered so a late pay can be told apart from a
// pay by a stranger.
func (s Seat) Released() Seat {
	if s.Status == SeatHeld {
		s.ExpiredHolderID = s.HolderID
	}
	s.Status = SeatFree
	s.HolderID = 0
	s.HoldExpiresAt = time.Time{}
	return s
}
