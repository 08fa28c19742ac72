package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/concert-reservation/internal/model"
)

// Key layout under prefix p:
//
//	p:seq            next position counter
//	p:token:<id>     token hash
//	p:user:<uid>     id of the user's live token
//	p:waiting        zset position -> id
//	p:active         zset activated_at ms -> id
//	p:advance-lock   advance sweep lock owner
var createTokenScript = redis.NewScript(`
    if redis.call('EXISTS', KEYS[1]) == 1 then
        return -1
    end
    local pos = redis.call('INCR', KEYS[2]) - 1
    redis.call('HSET', KEYS[3], 'id', ARGV[1], 'user_id', ARGV[2], 'status', ARGV[3],
        'position', pos, 'issued_at', ARGV[4], 'activated_at', ARGV[5])
    redis.call('SET', KEYS[1], ARGV[1])
    if ARGV[3] == 'WAITING' then
        redis.call('ZADD', KEYS[4], pos, ARGV[1])
    elseif ARGV[3] == 'ACTIVE' then
        redis.call('ZADD', KEYS[5], ARGV[5], ARGV[1])
    end
    return pos
`)

var casTokenScript = redis.NewScript(`
    local cur = redis.call('HGET', KEYS[1], 'status')
    if not cur then
        return -1
    end
    if cur ~= ARGV[1] then
        return 0
    end
    redis.call('HSET', KEYS[1], 'status', ARGV[2], 'activated_at', ARGV[3])
    if ARGV[2] ~= cur then
        if cur == 'WAITING' then redis.call('ZREM', KEYS[2], ARGV[4]) end
        if cur == 'ACTIVE' then redis.call('ZREM', KEYS[3], ARGV[4]) end
        if ARGV[2] == 'ACTIVE' then redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4]) end
        if ARGV[2] == 'EXPIRED' then
            if redis.call('GET', KEYS[4]) == ARGV[4] then redis.call('DEL', KEYS[4]) end
            redis.call('PEXPIRE', KEYS[1], ARGV[5])
        end
    end
    return 1
`)

var releaseLockScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// tokenRecord is the hash layout of a stored token.  Times are unix millis.
type tokenRecord struct {
	ID          string `redis:"id"`
	UserID      int64  `redis:"user_id"`
	Status      string `redis:"status"`
	Position    int64  `redis:"position"`
	IssuedAt    int64  `redis:"issued_at"`
	ActivatedAt int64  `redis:"activated_at"`
}

func (r tokenRecord) token() model.Token {
	t := model.Token{
		ID:       r.ID,
		UserID:   r.UserID,
		Status:   model.TokenStatus(r.Status),
		Position: r.Position,
		IssuedAt: time.UnixMilli(r.IssuedAt).UTC(),
	}
	if r.ActivatedAt > 0 {
		t.ActivatedAt = time.UnixMilli(r.ActivatedAt).UTC()
	}
	return t
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// TokenRepo stores queue tokens in Redis so the line survives restarts and
// can be shared by several API processes.
type TokenRepo struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

var _ TokenStore = (*TokenRepo)(nil)

// NewTokenRepo returns a TokenRepo.  Expired tokens are kept for retention
// so late checks still see them as EXPIRED rather than unknown.
func NewTokenRepo(rdb *redis.Client, prefix string, retention time.Duration) *TokenRepo {
	if prefix == "" {
		prefix = "queue"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &TokenRepo{rdb: rdb, prefix: prefix, retention: retention}
}

func (r *TokenRepo) seqKey() string              { return r.prefix + ":seq" }
func (r *TokenRepo) tokenKey(id string) string   { return r.prefix + ":token:" + id }
func (r *TokenRepo) userKey(userID int64) string { return r.prefix + ":user:" + strconv.FormatInt(userID, 10) }
func (r *TokenRepo) waitingKey() string          { return r.prefix + ":waiting" }
func (r *TokenRepo) activeKey() string           { return r.prefix + ":active" }
func (r *TokenRepo) lockKey() string             { return r.prefix + ":advance-lock" }

func (r *TokenRepo) createKeys(t *model.Token) []string {
	return []string{r.userKey(t.UserID), r.seqKey(), r.tokenKey(t.ID), r.waitingKey(), r.activeKey()}
}

func createArgs(t *model.Token) []any {
	return []any{t.ID, t.UserID, string(t.Status), millis(t.IssuedAt), millis(t.ActivatedAt)}
}

func (r *TokenRepo) Create(ctx context.Context, t *model.Token) error {
	pos, err := createTokenScript.Run(ctx, r.rdb, r.createKeys(t), createArgs(t)...).Int64()
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	if pos < 0 {
		return ErrLiveTokenExists
	}
	t.Position = pos
	return nil
}

func (r *TokenRepo) Get(ctx context.Context, id string) (model.Token, error) {
	cmd := r.rdb.HGetAll(ctx, r.tokenKey(id))
	if err := cmd.Err(); err != nil {
		return model.Token{}, err
	}
	if len(cmd.Val()) == 0 {
		return model.Token{}, ErrNotFound
	}
	var rec tokenRecord
	if err := cmd.Scan(&rec); err != nil {
		return model.Token{}, fmt.Errorf("scan token %s: %w", id, err)
	}
	return rec.token(), nil
}

func (r *TokenRepo) LiveByUser(ctx context.Context, userID int64) (model.Token, error) {
	id, err := r.rdb.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Token{}, ErrNotFound
	}
	if err != nil {
		return model.Token{}, err
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return model.Token{}, err
	}
	if !t.Live() {
		return model.Token{}, ErrNotFound
	}
	return t, nil
}

func (r *TokenRepo) loadAll(ctx context.Context, ids []string, want model.TokenStatus) ([]model.Token, error) {
	out := make([]model.Token, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if t.Status == want {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TokenRepo) ListWaiting(ctx context.Context, limit int) ([]model.Token, error) {
	if limit <= 0 {
		return []model.Token{}, nil
	}
	ids, err := r.rdb.ZRange(ctx, r.waitingKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids, model.TokenWaiting)
}

func (r *TokenRepo) CountWaiting(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.waitingKey()).Result()
	return int(n), err
}

func (r *TokenRepo) CountAhead(ctx context.Context, position int64) (int, error) {
	n, err := r.rdb.ZCount(ctx, r.waitingKey(), "-inf", "("+strconv.FormatInt(position, 10)).Result()
	return int(n), err
}

func (r *TokenRepo) ListActive(ctx context.Context) ([]model.Token, error) {
	ids, err := r.rdb.ZRange(ctx, r.activeKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids, model.TokenActive)
}

func (r *TokenRepo) casKeys(t *model.Token) []string {
	return []string{r.tokenKey(t.ID), r.waitingKey(), r.activeKey(), r.userKey(t.UserID)}
}

func (r *TokenRepo) casArgs(expected model.TokenStatus, t *model.Token) []any {
	return []any{string(expected), string(t.Status), millis(t.ActivatedAt), t.ID, r.retention.Milliseconds()}
}

func (r *TokenRepo) CompareAndSwap(ctx context.Context, expected model.TokenStatus, t *model.Token) (bool, error) {
	res, err := casTokenScript.Run(ctx, r.rdb, r.casKeys(t), r.casArgs(expected, t)...).Int64()
	if err != nil {
		return false, fmt.Errorf("swap token %s: %w", t.ID, err)
	}
	switch res {
	case -1:
		return false, ErrNotFound
	case 0:
		return false, nil
	}
	return true, nil
}

func (r *TokenRepo) AcquireAdvanceLock(ctx context.Context, ttl time.Duration) (func(), error) {
	owner := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.lockKey(), owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLockScript.Run(ctx, r.rdb, []string{r.lockKey()}, owner).Err()
	}, nil
}
