// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// SeatSoldQueue is the durable queue sale events are published to.
const SeatSoldQueue = "seat.sold"

// SeatSoldEvent is published once a seat is sold.  It carries enough to log
// or notify downstream without querying the reservation store.
type SeatSoldEvent struct {
	PayHistoryID string `json:"pay_history_id"`
	UserID       int64  `json:"user_id"`
	ConcertID    int64  `json:"concert_id"`
	TimeslotID   int64  `json:"timeslot_id"`
	SeatID       int64  `json:"seat_id"`
	SeatNo       int    `json:"seat_no"`
	Amount       int64  `json:"amount"`
	SoldAt       string `json:"sold_at"`
}
