package queue

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/unclebandit/campaign-messaging/internal/model"
)

// streamClient is the part of valkey.Client the queue uses.
type streamClient interface {
	B() valkey.Builder
	Do(ctx context.Context, cmd valkey.Completed) valkey.ValkeyResult
	DoMulti(ctx context.Context, multi ...valkey.Completed) []valkey.ValkeyResult
	Close()
}

// StreamQueue is a Queue on a Valkey/Redis stream with a consumer group.
type StreamQueue struct {
	client streamClient
	stream string
	group  string
}

func NewStreamQueue(client valkey.Client, stream, group string) *StreamQueue {
	return newStreamQueue(client, stream, group)
}

func newStreamQueue(client streamClient, stream, group string) *StreamQueue {
	return &StreamQueue{client: client, stream: stream, group: group}
}

// EnsureGroup runs XGROUP CREATE ... 0 MKSTREAM. A group that already exists
// is not an error. Starting at 0 lets a group created after the first
// enqueue still see those entries.
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	cmd := q.client.B().XgroupCreate().Key(q.stream).Group(q.group).Id("0").Mkstream().Build()
	err := q.client.Do(ctx, cmd).Error()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// Enqueue pipelines one XADD per job.
func (q *StreamQueue) Enqueue(ctx context.Context, jobs ...model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	cmds := make(valkey.Commands, 0, len(jobs))
	for _, job := range jobs {
		fv := q.client.B().Xadd().Key(q.stream).Id("*").FieldValue()
		for _, pair := range job.Fields() {
			fv = fv.FieldValue(pair[0], pair[1])
		}
		cmds = append(cmds, fv.Build())
	}
	for _, resp := range q.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (q *StreamQueue) ReadNext(ctx context.Context, consumer string, block time.Duration) (*Delivery, error) {
	cmd := q.client.B().Xreadgroup().
		Group(q.group, consumer).
		Count(1).
		Block(block.Milliseconds()).
		Streams().
		Key(q.stream).
		Id(">").
		Build()

	streams, err := q.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	deliveries := toDeliveries(streams[q.stream])
	if len(deliveries) == 0 {
		return nil, nil
	}
	return &deliveries[0], nil
}

func (q *StreamQueue) Ack(ctx context.Context, id string) error {
	return q.client.Do(ctx, q.client.B().Xack().Key(q.stream).Group(q.group).Id(id).Build()).Error()
}

// ClaimStale pages through XAUTOCLAIM until count entries were claimed or the
// pending list is exhausted.
func (q *StreamQueue) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, error) {
	var claimed []Delivery
	start := "0-0"
	for len(claimed) < count {
		cmd := q.client.B().Xautoclaim().
			Key(q.stream).
			Group(q.group).
			Consumer(consumer).
			MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
			Start(start).
			Count(int64(count - len(claimed))).
			Build()

		reply, err := q.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return claimed, err
		}
		if len(reply) < 2 {
			break
		}
		next, err := reply[0].ToString()
		if err != nil {
			return claimed, err
		}
		entries, err := reply[1].AsXRange()
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, toDeliveries(entries)...)
		if next == "0-0" {
			break
		}
		start = next
	}
	return claimed, nil
}

func (q *StreamQueue) Ping(ctx context.Context) error {
	return q.client.Do(ctx, q.client.B().Ping().Build()).Error()
}

func (q *StreamQueue) Close() error {
	q.client.Close()
	return nil
}

func toDeliveries(entries []valkey.XRangeEntry) []Delivery {
	deliveries := make([]Delivery, 0, len(entries))
	for _, e := range entries {
		// entries deleted from the stream while pending come back without fields
		if e.ID == "" {
			continue
		}
		job, err := model.JobFromFields(e.FieldValues)
		deliveries = append(deliveries, Delivery{ID: e.ID, Job: job, Invalid: err})
	}
	return deliveries
}

func isBusyGroup(err error) bool {
	if verr, ok := valkey.IsValkeyErr(err); ok {
		return strings.HasPrefix(verr.Error(), "BUSYGROUP")
	}
	return false
}

var _ Queue = (*StreamQueue)(nil)
