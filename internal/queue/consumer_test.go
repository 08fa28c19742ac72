package queue

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalesLogHandle(t *testing.T) {
	var buf bytes.Buffer
	l := NewSalesLog(&buf)

	body, err := json.Marshal(SeatSoldEvent{
		PayHistoryID: "ph-1",
		UserID:       7,
		ConcertID:    1,
		TimeslotID:   2,
		SeatID:       51,
		SeatNo:       1,
		Amount:       1000,
		SoldAt:       "2025-03-01T12:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, l.Handle(body))
	assert.Equal(t,
		"[2025-03-01T12:00:00Z] Seat sold | pay_history_id=ph-1 | user_id=7 | concert_id=1 | timeslot_id=2 | seat_id=51 | seat_no=1 | amount=1000\n",
		buf.String())
}

func TestSalesLogRejectsBadPayloads(t *testing.T) {
	l := NewSalesLog(&bytes.Buffer{})
	assert.Error(t, l.Handle([]byte("not json")))
	assert.Error(t, l.Handle([]byte(`{"user_id": 1}`)))
}

func TestOpenSalesLogAppends(t *testing.T) {
	dir := t.TempDir()
	l, f, err := OpenSalesLog(dir)
	require.NoError(t, err)
	require.NoError(t, l.Handle([]byte(`{"user_id":1,"seat_id":2,"sold_at":"x"}`)))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(filepath.Join(dir, "sales.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "seat_id=2")
}
