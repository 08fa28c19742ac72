package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository"
)

type seatShard struct {
	mu    sync.Mutex
	seats map[int64]*model.Seat
}

type wallet struct {
	point     model.UserPoint
	histories []model.PointHistory
}

type walletShard struct {
	mu      sync.Mutex
	wallets map[int64]*wallet
}

// Store keeps the catalog, seats, point wallets and sale records in memory.
// Lock order is seat shard, then wallet shard, then sales.
type Store struct {
	catalogMu  sync.RWMutex
	timeslots  map[int64]model.Timeslot
	byConcert  map[int64][]int64 // concert id -> timeslot ids ordered by start
	byTimeslot map[int64][]int64 // timeslot id -> seat ids ordered by seat no

	seats   [shardCount]seatShard
	wallets [shardCount]walletShard

	historySeq atomic.Int64

	salesMu sync.Mutex
	sales   map[int64][]model.PayHistory // user id -> sales
}

var (
	_ repository.SeatStore  = (*Store)(nil)
	_ repository.PointStore = (*Store)(nil)
)

func NewStore() *Store {
	s := &Store{
		timeslots:  make(map[int64]model.Timeslot),
		byConcert:  make(map[int64][]int64),
		byTimeslot: make(map[int64][]int64),
		sales:      make(map[int64][]model.PayHistory),
	}
	for i := range s.seats {
		s.seats[i].seats = make(map[int64]*model.Seat)
		s.wallets[i].wallets = make(map[int64]*wallet)
	}
	return s
}

// AddTimeslot registers a timeslot in the catalog.
func (s *Store) AddTimeslot(ts model.Timeslot) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	if _, ok := s.timeslots[ts.ID]; !ok {
		s.byConcert[ts.ConcertID] = append(s.byConcert[ts.ConcertID], ts.ID)
	}
	s.timeslots[ts.ID] = ts
	ids := s.byConcert[ts.ConcertID]
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.timeslots[ids[i]], s.timeslots[ids[j]]
		if a.StartsAt.Equal(b.StartsAt) {
			return a.ID < b.ID
		}
		return a.StartsAt.Before(b.StartsAt)
	})
}

// AddSeat registers a seat.  A zero status is stored as FREE.
func (s *Store) AddSeat(seat model.Seat) {
	if seat.Status == "" {
		seat.Status = model.SeatFree
	}
	s.catalogMu.Lock()
	ss := &s.seats[shardOfInt(seat.ID)]
	ss.mu.Lock()
	if _, ok := ss.seats[seat.ID]; !ok {
		s.byTimeslot[seat.TimeslotID] = append(s.byTimeslot[seat.TimeslotID], seat.ID)
	}
	cp := seat
	ss.seats[seat.ID] = &cp
	ss.mu.Unlock()
	s.catalogMu.Unlock()
}

func (s *Store) ListTimeslots(_ context.Context, concertID int64) ([]model.Timeslot, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	ids := s.byConcert[concertID]
	out := make([]model.Timeslot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.timeslots[id])
	}
	return out, nil
}

func (s *Store) GetTimeslot(_ context.Context, id int64) (model.Timeslot, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	ts, ok := s.timeslots[id]
	if !ok {
		return model.Timeslot{}, repository.ErrNotFound
	}
	return ts, nil
}

func (s *Store) seatIDs(timeslotID int64) []int64 {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return append([]int64(nil), s.byTimeslot[timeslotID]...)
}

func (s *Store) ListSeats(ctx context.Context, timeslotID int64) ([]model.Seat, error) {
	ids := s.seatIDs(timeslotID)
	out := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		seat, err := s.GetSeat(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNo < out[j].SeatNo })
	return out, nil
}

func (s *Store) GetSeat(_ context.Context, id int64) (model.Seat, error) {
	ss := &s.seats[shardOfInt(id)]
	ss.mu.Lock()
	defer ss.mu.Unlock()
	seat, ok := ss.seats[id]
	if !ok {
		return model.Seat{}, repository.ErrNotFound
	}
	return *seat, nil
}

func (s *Store) CountAvailable(ctx context.Context, timeslotID int64, now time.Time) (int, error) {
	n := 0
	for _, id := range s.seatIDs(timeslotID) {
		seat, err := s.GetSeat(ctx, id)
		if err != nil {
			return 0, err
		}
		if seat.Available(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateSeat(_ context.Context, seat *model.Seat, expectedVersion int64) error {
	ss := &s.seats[shardOfInt(seat.ID)]
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cur, ok := ss.seats[seat.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	seat.Version = expectedVersion + 1
	*cur = *seat
	return nil
}

func (s *Store) SellSeat(_ context.Context, seat *model.Seat, expectedVersion int64, ph *model.PayHistory) error {
	ss := &s.seats[shardOfInt(seat.ID)]
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cur, ok := ss.seats[seat.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	if ph.Amount > 0 {
		ws := &s.wallets[shardOfInt(ph.UserID)]
		ws.mu.Lock()
		w := ws.wallets[ph.UserID]
		if w == nil || w.point.Balance < ph.Amount {
			ws.mu.Unlock()
			return repository.ErrInsufficientBalance
		}
		w.point.Balance -= ph.Amount
		w.point.UpdatedAt = ph.CreatedAt
		w.histories = append(w.histories, model.PointHistory{
			ID:        s.nextHistoryID(),
			UserID:    ph.UserID,
			Type:      model.PointUse,
			Amount:    ph.Amount,
			CreatedAt: ph.CreatedAt,
		})
		ws.mu.Unlock()
	}

	s.salesMu.Lock()
	s.sales[ph.UserID] = append(s.sales[ph.UserID], *ph)
	s.salesMu.Unlock()

	seat.Version = expectedVersion + 1
	*cur = *seat
	return nil
}

func (s *Store) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.Seat, error) {
	var out []model.Seat
	for i := range s.seats {
		ss := &s.seats[i]
		ss.mu.Lock()
		for _, seat := range ss.seats {
			if len(out) >= limit {
				break
			}
			if seat.HoldExpired(now) {
				out = append(out, *seat)
			}
		}
		ss.mu.Unlock()
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListPayHistories(_ context.Context, userID int64) ([]model.PayHistory, error) {
	s.salesMu.Lock()
	defer s.salesMu.Unlock()
	return append([]model.PayHistory{}, s.sales[userID]...), nil
}

func (s *Store) Point(_ context.Context, userID int64) (model.UserPoint, error) {
	ws := &s.wallets[shardOfInt(userID)]
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w := ws.wallets[userID]; w != nil {
		return w.point, nil
	}
	return model.UserPoint{UserID: userID}, nil
}

func (s *Store) Charge(_ context.Context, userID, amount int64, at time.Time) (model.UserPoint, error) {
	ws := &s.wallets[shardOfInt(userID)]
	ws.mu.Lock()
	defer ws.mu.Unlock()
	w := ws.wallets[userID]
	if w == nil {
		w = &wallet{point: model.UserPoint{UserID: userID}}
		ws.wallets[userID] = w
	}
	w.point.Balance += amount
	w.point.UpdatedAt = at
	w.histories = append(w.histories, model.PointHistory{
		ID:        s.nextHistoryID(),
		UserID:    userID,
		Type:      model.PointCharge,
		Amount:    amount,
		CreatedAt: at,
	})
	return w.point, nil
}

func (s *Store) Histories(_ context.Context, userID int64) ([]model.PointHistory, error) {
	ws := &s.wallets[shardOfInt(userID)]
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w := ws.wallets[userID]; w != nil {
		return append([]model.PointHistory{}, w.histories...), nil
	}
	return []model.PointHistory{}, nil
}

func (s *Store) nextHistoryID() int64 {
	return s.historySeq.Add(1)
}
