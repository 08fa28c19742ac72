package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/queue"
)

const (
	defaultPublishBacklog = 1024
	defaultDialTimeout    = 3 * time.Second
	publishTimeout        = 5 * time.Second
	maxPublishAttempts    = 5
	maxPublishBackoff     = 5 * time.Second
)

var (
	errPublishBacklogFull = errors.New("event backlog full")
	errPublisherClosed    = errors.New("publisher closed")
)

// EventPublisher delivers domain events to whoever listens downstream.
type EventPublisher interface {
	PublishSeatSold(ctx context.Context, ev queue.SeatSoldEvent) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSeatSold(context.Context, queue.SeatSoldEvent) error { return nil }

// AMQPPublisher queues events in memory and hands them to RabbitMQ from a
// single background goroutine.  Callers never wait on the broker: a full
// backlog rejects the event instead.  The connection is opened lazily and
// reopened after a failure.
type AMQPPublisher struct {
	url         string
	log         *zap.SugaredLogger
	dialTimeout time.Duration

	events    chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

type PublisherOption func(*AMQPPublisher)

// WithBacklog sets how many events may wait for the broker.
func WithBacklog(n int) PublisherOption {
	return func(p *AMQPPublisher) {
		if n > 0 {
			p.events = make(chan []byte, n)
		}
	}
}

// WithDialTimeout bounds connecting plus the AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *AMQPPublisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// NewAMQPPublisher starts the delivery goroutine.  Call Close to stop it.
func NewAMQPPublisher(url string, log *zap.SugaredLogger, opts ...PublisherOption) *AMQPPublisher {
	p := &AMQPPublisher{
		url:         url,
		log:         log,
		dialTimeout: defaultDialTimeout,
		events:      make(chan []byte, defaultPublishBacklog),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// PublishSeatSold enqueues ev for delivery and returns immediately.
func (p *AMQPPublisher) PublishSeatSold(ctx context.Context, ev queue.SeatSoldEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	select {
	case <-p.done:
		return errPublisherClosed
	default:
	}
	select {
	case p.events <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errPublishBacklogFull
	}
}

// Close stops delivery and waits for the goroutine to exit.  Events still
// in the backlog are dropped.
func (p *AMQPPublisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	defer p.reset()
	for {
		select {
		case <-p.done:
			if n := len(p.events); n > 0 {
				p.log.Warnf("publisher stopped with events[%d] undelivered", n)
			}
			return
		case body := <-p.events:
			p.deliver(body)
		}
	}
}

// deliver retries with backoff until the event is sent, the attempts run
// out or the publisher is closed.
func (p *AMQPPublisher) deliver(body []byte) {
	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := p.publish(body)
		if err == nil {
			return
		}
		p.reset()
		if attempt >= maxPublishAttempts {
			p.log.Errorf("dropping seat.sold event after %d attempts: %v", attempt, err)
			return
		}
		p.log.Warnf("publish attempt[%d] failed: %v", attempt, err)
		select {
		case <-p.done:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxPublishBackoff)
	}
}

func (p *AMQPPublisher) publish(body []byte) error {
	if p.ch == nil || p.ch.IsClosed() {
		p.reset()
		if err := p.connect(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := p.ch.PublishWithContext(ctx,
		"",                  // default exchange
		queue.SeatSoldQueue, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.SeatSoldQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}
