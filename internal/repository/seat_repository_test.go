package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-reservation/internal/model"
)

var seatCols = []string{"id", "timeslot_id", "seat_no", "price", "status", "holder_id", "hold_expires_at", "expired_holder_id", "version"}

func newMockDB(t *testing.T) (*SeatRepo, *PointRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSeatRepo(db), NewPointRepo(db), mock
}

func TestSeatRepoGetSeat(t *testing.T) {
	ctx := context.Background()
	repo, _, mock := newMockDB(t)
	exp := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)

	t.Run("held seat", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(qGetSeat)).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(seatCols).AddRow(1, 10, 3, 1000, "HELD", 7, exp, nil, 2))

		s, err := repo.GetSeat(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.SeatHeld, s.Status)
		assert.Equal(t, int64(7), s.HolderID)
		assert.Equal(t, exp, s.HoldExpiresAt)
		assert.Zero(t, s.ExpiredHolderID)
		assert.Equal(t, int64(2), s.Version)
	})

	t.Run("missing seat", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(qGetSeat)).WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(seatCols))

		_, err := repo.GetSeat(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoUpdateSeat(t *testing.T) {
	ctx := context.Background()
	repo, _, mock := newMockDB(t)
	held := model.Seat{ID: 1, Status: model.SeatHeld, HolderID: 5, HoldExpiresAt: time.Now().UTC()}

	t.Run("version matches", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).
			WithArgs("HELD", int64(5), sqlmock.AnyArg(), nil, int64(1), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := held
		require.NoError(t, repo.UpdateSeat(ctx, &s, 3))
		assert.Equal(t, int64(4), s.Version)
	})

	t.Run("lost race", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(qSeatExists)).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

		s := held
		assert.ErrorIs(t, repo.UpdateSeat(ctx, &s, 3), ErrVersionConflict)
	})

	t.Run("unknown seat", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(qSeatExists)).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

		s := held
		assert.ErrorIs(t, repo.UpdateSeat(ctx, &s, 3), ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoSellSeat(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)
	sold := model.Seat{ID: 1, Status: model.SeatSold, HolderID: 5}
	ph := model.PayHistory{ID: "ph-1", UserID: 5, SeatID: 1, Amount: 1000, CreatedAt: now}

	t.Run("commits seat, debit and history together", func(t *testing.T) {
		repo, _, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).
			WithArgs("SOLD", int64(5), nil, nil, int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(qDebitPoints)).
			WithArgs(int64(1000), now, int64(5), int64(1000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(qInsertPointH)).
			WithArgs(int64(5), "USE", int64(1000), now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(qInsertPayH)).
			WithArgs("ph-1", int64(5), int64(1), int64(1000), now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s, p := sold, ph
		require.NoError(t, repo.SellSeat(ctx, &s, 2, &p))
		assert.Equal(t, int64(3), s.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("shortfall rolls back", func(t *testing.T) {
		repo, _, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(qDebitPoints)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		s, p := sold, ph
		assert.ErrorIs(t, repo.SellSeat(ctx, &s, 2, &p), ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("seat changed underneath", func(t *testing.T) {
		repo, _, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(qUpdateSeat)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		s, p := sold, ph
		assert.ErrorIs(t, repo.SellSeat(ctx, &s, 2, &p), ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatRepoCountAvailableAndTimeslots(t *testing.T) {
	ctx := context.Background()
	repo, _, mock := newMockDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(qCountAvail)).WithArgs(int64(10), now).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(42))
	n, err := repo.CountAvailable(ctx, 10, now)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	mock.ExpectQuery(regexp.QuoteMeta(qListTimeslots)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "concert_id", "starts_at"}).
			AddRow(10, 1, now).AddRow(11, 1, now.Add(24*time.Hour)))
	slots, err := repo.ListTimeslots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, int64(11), slots[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRepo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown user has zero balance", func(t *testing.T) {
		_, repo, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(qGetPoint)).WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "updated_at"}))

		p, err := repo.Point(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, model.UserPoint{UserID: 3}, p)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("charge upserts and records history", func(t *testing.T) {
		_, repo, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(qUpsertPoint)).WithArgs(int64(3), int64(500), now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(qInsertPointH)).WithArgs(int64(3), "CHARGE", int64(500), now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(regexp.QuoteMeta(qGetPoint)).WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "updated_at"}).AddRow(3, 700, now))
		mock.ExpectCommit()

		p, err := repo.Charge(ctx, 3, 500, now)
		require.NoError(t, err)
		assert.Equal(t, int64(700), p.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
