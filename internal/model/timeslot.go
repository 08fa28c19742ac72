package model

import "time"

// Timeslot is one performance of a concert.
type Timeslot struct {
	ID        int64     `json:"id"`         // timeslots.id
	ConcertID int64     `json:"concert_id"` // timeslots.concert_id
	StartsAt  time.Time `json:"starts_at"`  // timeslots.starts_at
}

// TimeslotAvailability pairs a timeslot with the number of seats that can
// still be occupied.
type TimeslotAvailability struct {
	Timeslot
	Remaining int `json:"remaining"`
}
