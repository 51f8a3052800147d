package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/campaign-messaging/internal/model"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is an append-only log of jobs read through a single consumer group.
// A delivered entry stays pending for its consumer until it is acked, and a
// pending entry left idle long enough can be claimed by another consumer.
type Queue interface {
	// EnsureGroup creates the consumer group (and the log) if missing.
	EnsureGroup(ctx context.Context) error
	// Enqueue appends jobs in order, in as few round trips as the backend allows.
	Enqueue(ctx context.Context, jobs ...model.Job) error
	// ReadNext returns the next undelivered entry, waiting up to block.
	// It returns (nil, nil) when nothing arrived in time.
	ReadNext(ctx context.Context, consumer string, block time.Duration) (*Delivery, error)
	Ack(ctx context.Context, id string) error
	// ClaimStale hands consumer up to count entries that have been pending for
	// at least minIdle.
	ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, error)
	Ping(ctx context.Context) error
	Close() error
}

// Delivery is one entry handed to a consumer.
type Delivery struct {
	ID  string
	Job model.Job
	// Invalid is set when the entry could not be decoded into a job. The
	// entry should be acked and dropped.
	Invalid error
}

// InMemoryQueue is a single-process Queue. It backs QUEUE_BACKEND=memory and
// the worker tests.
type InMemoryQueue struct {
	mu      sync.Mutex
	entries []memoryEntry
	cursor  int // index of the next undelivered entry
	pending map[string]*pendingEntry
	seq     int64
	notify  chan struct{}
	closed  bool
	now     func() time.Time
}

type memoryEntry struct {
	id  string
	job model.Job
}

type pendingEntry struct {
	entry       memoryEntry
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pending: make(map[string]*pendingEntry),
		notify:  make(chan struct{}),
		now:     time.Now,
	}
}

func (q *InMemoryQueue) EnsureGroup(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, jobs ...model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if len(jobs) == 0 {
		return nil
	}
	for _, job := range jobs {
		q.seq++
		q.entries = append(q.entries, memoryEntry{id: fmt.Sprintf("%d-0", q.seq), job: job})
	}
	// wake blocked readers
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

func (q *InMemoryQueue) ReadNext(ctx context.Context, consumer string, block time.Duration) (*Delivery, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if q.cursor < len(q.entries) {
			e := q.entries[q.cursor]
			q.cursor++
			q.pending[e.id] = &pendingEntry{entry: e, consumer: consumer, deliveredAt: q.now(), deliveries: 1}
			q.mu.Unlock()
			return &Delivery{ID: e.id, Job: e.job}, nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wait:
		}
	}
}

func (q *InMemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	delete(q.pending, id)
	return nil
}

func (q *InMemoryQueue) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	now := q.now()
	var claimed []Delivery
	// walk in log order so redeliveries keep enqueue order
	for _, e := range q.entries[:q.cursor] {
		if len(claimed) >= count {
			break
		}
		p, ok := q.pending[e.id]
		if !ok || now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		claimed = append(claimed, Delivery{ID: e.id, Job: e.job})
	}
	return claimed, nil
}

func (q *InMemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.notify)
	}
	return nil
}

// Len is the number of entries ever appended.
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending is the number of delivered but unacknowledged entries.
func (q *InMemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Jobs returns every appended job in log order.
func (q *InMemoryQueue) Jobs() []model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]model.Job, len(q.entries))
	for i, e := range q.entries {
		jobs[i] = e.job
	}
	return jobs
}

var _ Queue = (*InMemoryQueue)(nil)
