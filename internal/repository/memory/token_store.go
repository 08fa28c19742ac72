package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository"
)

type tokenShard struct {
	mu     sync.Mutex
	tokens map[string]*model.Token
}

type userShard struct {
	mu   sync.Mutex
	live map[int64]string // user id -> live token id
}

// TokenStore keeps tokens in memory.  Lock order is user shard, then the
// line, then token shard; CompareAndSwap never holds two of them at once.
type TokenStore struct {
	tokens [shardCount]tokenShard
	users  [shardCount]userShard

	lineMu  sync.Mutex
	seq     int64
	waiting *treemap.Map        // position -> token id, may briefly hold promoted ids
	active  map[string]struct{} // may briefly hold expired ids

	advanceMu sync.Mutex
}

var _ repository.TokenStore = (*TokenStore)(nil)

func NewTokenStore() *TokenStore {
	s := &TokenStore{
		waiting: treemap.NewWith(utils.Int64Comparator),
		active:  make(map[string]struct{}),
	}
	for i := range s.tokens {
		s.tokens[i].tokens = make(map[string]*model.Token)
		s.users[i].live = make(map[int64]string)
	}
	return s
}

func (s *TokenStore) Create(_ context.Context, t *model.Token) error {
	us := &s.users[shardOfInt(t.UserID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	if _, ok := us.live[t.UserID]; ok {
		return repository.ErrLiveTokenExists
	}

	s.lineMu.Lock()
	t.Position = s.seq
	s.seq++
	ts := &s.tokens[shardOfString(t.ID)]
	ts.mu.Lock()
	cp := *t
	ts.tokens[t.ID] = &cp
	ts.mu.Unlock()
	switch t.Status {
	case model.TokenWaiting:
		s.waiting.Put(t.Position, t.ID)
	case model.TokenActive:
		s.active[t.ID] = struct{}{}
	}
	s.lineMu.Unlock()

	if t.Live() {
		us.live[t.UserID] = t.ID
	}
	return nil
}

func (s *TokenStore) Get(_ context.Context, id string) (model.Token, error) {
	t, ok := s.load(id)
	if !ok {
		return model.Token{}, repository.ErrNotFound
	}
	return t, nil
}

func (s *TokenStore) load(id string) (model.Token, bool) {
	ts := &s.tokens[shardOfString(id)]
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.tokens[id]
	if !ok {
		return model.Token{}, false
	}
	return *t, true
}

func (s *TokenStore) LiveByUser(_ context.Context, userID int64) (model.Token, error) {
	us := &s.users[shardOfInt(userID)]
	us.mu.Lock()
	id, ok := us.live[userID]
	us.mu.Unlock()
	if !ok {
		return model.Token{}, repository.ErrNotFound
	}
	t, ok := s.load(id)
	if !ok || !t.Live() {
		return model.Token{}, repository.ErrNotFound
	}
	return t, nil
}

func (s *TokenStore) ListWaiting(_ context.Context, limit int) ([]model.Token, error) {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	out := make([]model.Token, 0, min(limit, s.waiting.Size()))
	var stale []int64
	it := s.waiting.Iterator()
	for it.Next() && len(out) < limit {
		t, ok := s.load(it.Value().(string))
		if !ok || t.Status != model.TokenWaiting {
			stale = append(stale, it.Key().(int64))
			continue
		}
		out = append(out, t)
	}
	for _, pos := range stale {
		s.waiting.Remove(pos)
	}
	return out, nil
}

func (s *TokenStore) CountWaiting(_ context.Context) (int, error) {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	return s.waiting.Size(), nil
}

func (s *TokenStore) CountAhead(_ context.Context, position int64) (int, error) {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	n := 0
	it := s.waiting.Iterator()
	for it.Next() {
		if it.Key().(int64) >= position {
			break
		}
		n++
	}
	return n, nil
}

func (s *TokenStore) ListActive(_ context.Context) ([]model.Token, error) {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	out := make([]model.Token, 0, len(s.active))
	for id := range s.active {
		t, ok := s.load(id)
		if !ok || t.Status == model.TokenExpired {
			delete(s.active, id)
			continue
		}
		if t.Status != model.TokenActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TokenStore) CompareAndSwap(_ context.Context, expected model.TokenStatus, t *model.Token) (bool, error) {
	ts := &s.tokens[shardOfString(t.ID)]
	ts.mu.Lock()
	cur, ok := ts.tokens[t.ID]
	if !ok {
		ts.mu.Unlock()
		return false, repository.ErrNotFound
	}
	if cur.Status != expected {
		ts.mu.Unlock()
		return false, nil
	}
	cur.Status = t.Status
	cur.ActivatedAt = t.ActivatedAt
	stored := *cur
	ts.mu.Unlock()
	*t = stored

	if expected != stored.Status {
		s.lineMu.Lock()
		switch expected {
		case model.TokenWaiting:
			s.waiting.Remove(stored.Position)
		case model.TokenActive:
			delete(s.active, stored.ID)
		}
		if stored.Status == model.TokenActive {
			s.active[stored.ID] = struct{}{}
		}
		s.lineMu.Unlock()
	}

	if !stored.Live() {
		us := &s.users[shardOfInt(stored.UserID)]
		us.mu.Lock()
		if us.live[stored.UserID] == stored.ID {
			delete(us.live, stored.UserID)
		}
		us.mu.Unlock()
	}
	return true, nil
}

func (s *TokenStore) AcquireAdvanceLock(_ context.Context, _ time.Duration) (func(), error) {
	if !s.advanceMu.TryLock() {
		return nil, repository.ErrLockHeld
	}
	return s.advanceMu.Unlock, nil
}
