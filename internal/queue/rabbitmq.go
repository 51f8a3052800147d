package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/campaign-messaging/internal/model"
)

// ErrConnectionLost is returned when the broker connection or channel dropped.
// The next call re-dials.
var ErrConnectionLost = errors.New("queue connection lost")

// amqpChannel is the part of *amqp.Channel the queue uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Tx() error
	TxCommit() error
	TxRollback() error
	Close() error
}

// dialFunc opens a connection with a publish and a consume channel. conn is
// nil in tests.
type dialFunc func() (conn *amqp.Connection, pub, sub amqpChannel, err error)

// RabbitQueue is a Queue on a durable RabbitMQ queue. The broker keeps
// unacked deliveries and redelivers them when the consuming channel closes,
// so ClaimStale has nothing to do.
//
// A dropped connection or channel marks the session broken; the next
// operation re-dials, re-declares the queue and re-registers the consumer.
// Delivery ids carry the session generation so a tag from a dead channel is
// never acked on its replacement.
type RabbitQueue struct {
	name string
	dial dialFunc

	mu         sync.Mutex
	conn       *amqp.Connection
	pub        amqpChannel // transactional, used only for publishing
	sub        amqpChannel
	deliveries <-chan amqp.Delivery
	gen        uint64
	broken     bool
	declared   bool
	closed     bool
}

// DialRabbitMQ connects and opens the publish and consume channels.
func DialRabbitMQ(url, name string) (*RabbitQueue, error) {
	q := newRabbitQueue(name, func() (*amqp.Connection, amqpChannel, amqpChannel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		pub, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("failed to open a channel: %w", err)
		}
		sub, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("failed to open a channel: %w", err)
		}
		return conn, pub, sub, nil
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.connectLocked(); err != nil {
		return nil, err
	}
	return q, nil
}

func newRabbitQueue(name string, dial dialFunc) *RabbitQueue {
	return &RabbitQueue{name: name, dial: dial, broken: true}
}

// connectLocked re-dials when the session is broken. Callers hold q.mu.
func (q *RabbitQueue) connectLocked() error {
	if q.closed {
		return ErrClosed
	}
	if q.conn != nil && q.conn.IsClosed() {
		q.broken = true
	}
	if !q.broken {
		return nil
	}

	q.teardownLocked()
	conn, pub, sub, err := q.dial()
	if err != nil {
		return err
	}
	q.conn, q.pub, q.sub = conn, pub, sub
	q.gen++
	q.broken = false

	if q.declared {
		if err := q.declareLocked(); err != nil {
			q.broken = true
			return err
		}
	}
	return nil
}

func (q *RabbitQueue) teardownLocked() {
	q.deliveries = nil
	if q.sub != nil {
		q.sub.Close()
	}
	if q.pub != nil {
		q.pub.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	q.conn, q.pub, q.sub = nil, nil, nil
}

func (q *RabbitQueue) declareLocked() error {
	if _, err := q.pub.QueueDeclare(
		q.name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return q.pub.Tx()
}

// EnsureGroup declares the durable queue and puts the publish channel in
// transaction mode. Both are repeated after every reconnect.
func (q *RabbitQueue) EnsureGroup(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.connectLocked(); err != nil {
		return err
	}
	if err := q.declareLocked(); err != nil {
		q.broken = true
		return err
	}
	q.declared = true
	return nil
}

// Enqueue publishes every job in one broker transaction.
func (q *RabbitQueue) Enqueue(ctx context.Context, jobs ...model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	bodies := make([][]byte, len(jobs))
	for i, job := range jobs {
		body, err := json.Marshal(job)
		if err != nil {
			return err
		}
		bodies[i] = body
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.connectLocked(); err != nil {
		return err
	}

	for i, job := range jobs {
		err := q.pub.Publish("", q.name, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.MessageID,
			Body:         bodies[i],
		})
		if err != nil {
			q.pub.TxRollback()
			q.broken = true
			return err
		}
	}
	if err := q.pub.TxCommit(); err != nil {
		q.broken = true
		return err
	}
	return nil
}

func (q *RabbitQueue) consume(consumer string) (<-chan amqp.Delivery, uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.connectLocked(); err != nil {
		return nil, 0, err
	}
	if q.deliveries != nil {
		return q.deliveries, q.gen, nil
	}
	if err := q.sub.Qos(1, 0, false); err != nil {
		q.broken = true
		return nil, 0, err
	}
	msgs, err := q.sub.Consume(
		q.name,
		consumer,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		q.broken = true
		return nil, 0, fmt.Errorf("failed to register consumer: %w", err)
	}
	q.deliveries = msgs
	return msgs, q.gen, nil
}

func (q *RabbitQueue) ReadNext(ctx context.Context, consumer string, block time.Duration) (*Delivery, error) {
	msgs, gen, err := q.consume(consumer)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(block)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-msgs:
		if !ok {
			q.mu.Lock()
			if q.gen == gen {
				q.broken = true
				q.deliveries = nil
			}
			q.mu.Unlock()
			return nil, ErrConnectionLost
		}
		return decodeDelivery(gen, d), nil
	}
}

func decodeDelivery(gen uint64, d amqp.Delivery) *Delivery {
	out := &Delivery{ID: fmt.Sprintf("%d-%d", gen, d.DeliveryTag)}
	var job model.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		out.Invalid = err
		return out
	}
	if job.MessageID == "" {
		out.Invalid = fmt.Errorf("job is missing message_id")
		return out
	}
	out.Job = job
	return out
}

func parseDeliveryID(id string) (gen, tag uint64, err error) {
	g, t, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid delivery id %q", id)
	}
	if gen, err = strconv.ParseUint(g, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid delivery id %q: %w", id, err)
	}
	if tag, err = strconv.ParseUint(t, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid delivery id %q: %w", id, err)
	}
	return gen, tag, nil
}

// Ack acknowledges a delivery on the channel that produced it. A delivery from
// a channel that has since dropped is already back on the queue and yields
// ErrConnectionLost.
func (q *RabbitQueue) Ack(ctx context.Context, id string) error {
	gen, tag, err := parseDeliveryID(id)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if gen != q.gen || q.broken {
		return ErrConnectionLost
	}
	if err := q.sub.Ack(tag, false); err != nil {
		q.broken = true
		return err
	}
	return nil
}

func (q *RabbitQueue) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, error) {
	return nil, nil
}

// Ping reconnects if needed.
func (q *RabbitQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connectLocked()
}

func (q *RabbitQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.teardownLocked()
	return nil
}

var _ Queue = (*RabbitQueue)(nil)
