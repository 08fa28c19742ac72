package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SalesLog appends one line per sale event to a writer.
type SalesLog struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSalesLog(w io.Writer) *SalesLog { return &SalesLog{w: w} }

// OpenSalesLog opens (creating if needed) dir/sales.log for appending.
func OpenSalesLog(dir string) (*SalesLog, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "sales.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open sales log: %w", err)
	}
	return NewSalesLog(f), f, nil
}

// Handle decodes one delivery body and appends it.
func (l *SalesLog) Handle(body []byte) error {
	var ev SeatSoldEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.SeatID == 0 || ev.UserID == 0 {
		return errors.New("event without seat or user")
	}
	line := fmt.Sprintf("[%s] Seat sold | pay_history_id=%s | user_id=%d | concert_id=%d | timeslot_id=%d | seat_id=%d | seat_no=%d | amount=%d\n",
		ev.SoldAt, ev.PayHistoryID, ev.UserID, ev.ConcertID, ev.TimeslotID, ev.SeatID, ev.SeatNo, ev.Amount)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Consumer reads the seat.sold queue and hands every delivery to a SalesLog.
type Consumer struct {
	url  string
	sink *SalesLog
	log  *zap.SugaredLogger
}

func NewConsumer(url string, sink *SalesLog, log *zap.SugaredLogger) *Consumer {
	return &Consumer{url: url, sink: sink, log: log}
}

// Run keeps a connection to the broker until ctx is cancelled, redialing
// with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			c.log.Warnf("consume loop ended: %v; reconnecting", err)
			if !sleep(ctx, 2*time.Second) {
				return
			}
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warnf("set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(SeatSoldQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, SeatSoldQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.sink.Handle(d.Body); err != nil {
				c.log.Errorf("handle message failed: %v", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
