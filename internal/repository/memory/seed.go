package memory

import (
	"time"

	"github.com/iliyamo/concert-reservation/internal/model"
)

const (
	DemoConcertID    = 1
	DemoSeatsPerSlot = 50
	DemoSeatPrice    = 1000
)

// SeedDemo loads concert 1 with two evening timeslots, a week after base,
// of DemoSeatsPerSlot seats each.
func (s *Store) SeedDemo(base time.Time) {
	day := time.Date(base.Year(), base.Month(), base.Day(), 19, 0, 0, 0, time.UTC)
	seatID := int64(1)
	for i := int64(1); i <= 2; i++ {
		s.AddTimeslot(model.Timeslot{
			ID:        i,
			ConcertID: DemoConcertID,
			StartsAt:  day.AddDate(0, 0, 6+int(i)),
		})
		for no := 1; no <= DemoSeatsPerSlot; no++ {
			s.AddSeat(model.Seat{
				ID:         seatID,
				TimeslotID: i,
				SeatNo:     no,
				Price:      DemoSeatPrice,
				Status:     model.SeatFree,
			})
			seatID++
		}
	}
}
