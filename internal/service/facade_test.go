package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/model"
	"github.com/iliyamo/concert-reservation/internal/repository/memory"
	"github.com/iliyamo/concert-reservation/internal/utils"
)

func TestPurchaseJourneyWithSingleSlotQueue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	env.fund(t, 1, memory.DemoSeatPrice)
	s1 := SeatRef{ConcertID: memory.DemoConcertID, TimeslotID: 1, SeatID: 1}

	a, err := env.tokens.Issue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Position)
	_, err = env.tokens.Advance(ctx)
	require.NoError(t, err)

	b, err := env.tokens.Issue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Position)
	_, err = env.tokens.Check(ctx, 2, b.ID)
	assert.ErrorIs(t, err, ErrTokenNotActive)
	_, err = env.facade.Timeslots(ctx, 2, b.ID, memory.DemoConcertID)
	assert.ErrorIs(t, err, ErrTokenNotActive)

	seat, err := env.facade.Occupy(ctx, 1, a.ID, s1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, seat.Status)

	receipt, err := env.facade.Pay(ctx, 1, a.ID, s1)
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, receipt.Seat.Status)
	assert.Equal(t, int64(1), receipt.PayHistory.UserID)

	_, err = env.tokens.Check(ctx, 1, a.ID)
	assert.ErrorIs(t, err, ErrTokenNotActive)

	_, err = env.tokens.Advance(ctx)
	require.NoError(t, err)
	active, err := env.tokens.Check(ctx, 2, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenActive, active.Status)

	sent := env.events.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].SeatID)
	assert.Equal(t, int64(1), sent[0].UserID)
	assert.Equal(t, receipt.PayHistory.ID, sent[0].PayHistoryID)
}

func TestExpiredHolderLosesSeatToNextUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 2)
	s1 := SeatRef{ConcertID: memory.DemoConcertID, TimeslotID: 1, SeatID: 1}

	a := env.admit(t, 1)
	b := env.admit(t, 2)

	_, err := env.facade.Occupy(ctx, 1, a.ID, s1)
	require.NoError(t, err)

	env.clock.Advance(6 * time.Minute)
	seat, err := env.facade.Occupy(ctx, 2, b.ID, s1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seat.HolderID)

	_, err = env.facade.Pay(ctx, 1, a.ID, s1)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestFacadeChecksTokenBeforeEverything(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	tok := env.admit(t, 1)

	tests := []struct {
		name    string
		userID  int64
		tokenID string
		ref     SeatRef
		wantErr error
	}{
		{name: "foreign token", userID: 2, tokenID: tok.ID, ref: SeatRef{1, 1, 1}, wantErr: ErrTokenOwnerMismatch},
		{name: "unknown token", userID: 1, tokenID: "nope", ref: SeatRef{1, 1, 1}, wantErr: ErrTokenNotFound},
		{name: "timeslot of another concert", userID: 1, tokenID: tok.ID, ref: SeatRef{2, 1, 1}, wantErr: ErrTimeslotNotFound},
		{name: "unknown timeslot", userID: 1, tokenID: tok.ID, ref: SeatRef{1, 9, 1}, wantErr: ErrTimeslotNotFound},
		{name: "seat of another timeslot", userID: 1, tokenID: tok.ID, ref: SeatRef{1, 1, memory.DemoSeatsPerSlot + 1}, wantErr: ErrSeatNotFound},
		{name: "unknown seat", userID: 1, tokenID: tok.ID, ref: SeatRef{1, 1, 9999}, wantErr: ErrSeatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.facade.Occupy(ctx, tt.userID, tt.tokenID, tt.ref)
			assert.ErrorIs(t, err, tt.wantErr)
			_, err = env.facade.Pay(ctx, tt.userID, tt.tokenID, tt.ref)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	seats, err := env.facade.Seats(ctx, 1, tok.ID, memory.DemoConcertID, 2)
	require.NoError(t, err)
	assert.Len(t, seats, memory.DemoSeatsPerSlot)
	_, err = env.facade.Seats(ctx, 1, tok.ID, 2, 2)
	assert.ErrorIs(t, err, ErrTimeslotNotFound)
}

func TestPayIgnoresPublisherFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	env.events.err = errBrokerDown
	env.fund(t, 1, memory.DemoSeatPrice)
	tok := env.admit(t, 1)
	ref := SeatRef{ConcertID: memory.DemoConcertID, TimeslotID: 1, SeatID: 4}

	_, err := env.facade.Occupy(ctx, 1, tok.ID, ref)
	require.NoError(t, err)
	receipt, err := env.facade.Pay(ctx, 1, tok.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, receipt.Seat.Status)
	assert.Empty(t, env.events.sent())
}

func TestTokenFacadeIssueSignsCredential(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1)
	f := NewTokenFacade(env.tokens, clock.NewSystem(), "secret")

	issued, err := f.Issue(ctx, 3)
	require.NoError(t, err)
	id, userID, err := utils.ParseQueueToken("secret", issued.Credential)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, id)
	assert.Equal(t, int64(3), userID)

	st, err := f.Status(ctx, 3, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenWaiting, st.Token.Status)
	assert.Zero(t, st.Ahead)
}
