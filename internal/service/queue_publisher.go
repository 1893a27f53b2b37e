// Package service holds the background services that run next to the HTTP
// server.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/club-manager/internal/queue"
)

// publishChannel is the slice of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AuditPublisher sends auth events to the auth.events queue.  Publish never
// blocks a request: events are buffered and sent by a background loop that
// owns the broker connection and reconnects on failure.  When the buffer
// is full the event is dropped and counted.
type AuditPublisher struct {
	url     string
	log     *zap.Logger
	events  chan q.AuthEvent
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAuditPublisher builds a publisher with a buffer of size events.  Call
// Run to start delivering.
func NewAuditPublisher(url string, size int, log *zap.Logger) *AuditPublisher {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditPublisher{
		url:    url,
		log:    log,
		events: make(chan q.AuthEvent, size),
		done:   make(chan struct{}),
	}
}

// Publish enqueues ev.  It implements auth.Auditor.
func (p *AuditPublisher) Publish(_ context.Context, ev q.AuthEvent) {
	select {
	case <-p.done:
		p.dropped.Add(1)
	case p.events <- ev:
	default:
		p.dropped.Add(1)
		p.log.Warn("audit: buffer full, event dropped", zap.String("type", string(ev.Type)))
	}
}

// Dropped returns how many events were discarded.
func (p *AuditPublisher) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting events.  Run returns after flushing what it can;
// call Close once no more events will be published and wait for Run.
func (p *AuditPublisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Run dials the broker and delivers events until ctx is cancelled or
// Close is called.  Dial failures back off up to 30 seconds.
func (p *AuditPublisher) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		default:
		}

		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.log.Warn("audit: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !p.sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = p.session(ctx, conn)
		_ = conn.Close()
		if err == nil {
			return
		}
		p.log.Warn("audit: session ended, reconnecting", zap.Error(err))
		if !p.sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (p *AuditPublisher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	case <-t.C:
		return true
	}
}

func (p *AuditPublisher) session(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(q.AuthQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	return p.drain(ctx, ch, closed)
}

// drain publishes buffered events on ch.  On shutdown, by cancellation or
// Close, the buffer is flushed for at most five seconds and nil is
// returned; a lost connection returns an error.  An event that failed to publish
// is put back at the end of the buffer when there is room.
func (p *AuditPublisher) drain(ctx context.Context, ch publishChannel, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			p.flush(ch)
			return nil
		case <-p.done:
			p.flush(ch)
			return nil
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case ev := <-p.events:
			if err := p.send(ctx, ch, ev); err != nil {
				p.requeue(ev)
				return err
			}
		}
	}
}

func (p *AuditPublisher) flush(ch publishChannel) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			if err := p.send(ctx, ch, ev); err != nil {
				p.log.Warn("audit: flush failed", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

func (p *AuditPublisher) requeue(ev q.AuthEvent) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *AuditPublisher) send(ctx context.Context, ch publishChannel, ev q.AuthEvent) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		p.log.Error("audit: encode failed", zap.Error(err))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// Default exchange, routing key = queue name.
	return ch.PublishWithContext(ctx, "", q.AuthQueue, false, false, msg)
}

func encodeEvent(ev q.AuthEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}, nil
}
