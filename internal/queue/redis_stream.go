// Package queue implements the durable intake queue on Redis Streams.
//
// A consumer group provides the lease: an entry read with XREADGROUP stays in
// the group's pending list until it is acknowledged. Entries that are neither
// acknowledged nor dead-lettered become claimable by any consumer once they
// have been idle for the visibility timeout. Entries whose delivery count
// reaches the configured maximum are moved to the dead-letter stream.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
)

const (
	fieldBody       = "body"
	fieldSourceID   = "source_id"
	fieldReason     = "reason"
	fieldDeliveries = "deliveries"
	fieldFailedAt   = "failed_at"
)

// Message is one leased queue entry.
type Message struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// EnqueuedAt returns the time encoded in the stream entry id, or the zero
// time when the id is not a stream id.
func (m Message) EnqueuedAt() time.Time {
	millis, _, ok := strings.Cut(m.ID, "-")
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// DeadLetter is an entry moved off the intake stream.
type DeadLetter struct {
	ID         string
	SourceID   string
	Body       []byte
	Reason     string
	Deliveries int64
	FailedAt   time.Time
}

// RedisStreamQueue is the intake queue.
type RedisStreamQueue struct {
	client redis.Cmdable
	cfg    config.QueueConfig
	logger *zap.Logger
}

// NewRedisStreamQueue creates the queue.
func NewRedisStreamQueue(client redis.Cmdable, cfg config.QueueConfig, logger *zap.Logger) *RedisStreamQueue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &RedisStreamQueue{client: client, cfg: cfg, logger: logger.Named("queue")}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (q *RedisStreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Enqueue appends body to the stream and returns the entry id.
func (q *RedisStreamQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{fieldBody: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Receive leases up to BatchSize new entries for consumer.
func (q *RedisStreamQueue) Receive(ctx context.Context, consumer string) ([]Message, error) {
	block := q.cfg.Block()
	if block <= 0 {
		block = -1
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.BatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}

	var out []Message
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			out = append(out, toMessage(entry, 1))
		}
	}
	return out, nil
}

// Reclaim takes over entries whose lease has expired.
func (q *RedisStreamQueue) Reclaim(ctx context.Context, consumer string) ([]Message, error) {
	entries, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  q.cfg.VisibilityTimeout(),
		Start:    "0-0",
		Count:    q.cfg.BatchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reclaim: %w", err)
	}

	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		deliveries, err := q.deliveries(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, toMessage(entry, deliveries))
	}
	return out, nil
}

// Ack removes a processed entry from the pending list.
func (q *RedisStreamQueue) Ack(ctx context.Context, msg Message) error {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// DeadLetter copies msg to the dead-letter stream and acknowledges it.
func (q *RedisStreamQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.cfg.DeadLetterStream,
			Values: map[string]any{
				fieldBody:       msg.Body,
				fieldSourceID:   msg.ID,
				fieldReason:     reason,
				fieldDeliveries: msg.Deliveries,
				fieldFailedAt:   time.Now().UTC().Format(time.RFC3339Nano),
			},
		})
		pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
	}
	return nil
}

// Exhausted reports whether msg has used up its redelivery budget.
func (q *RedisStreamQueue) Exhausted(msg Message) bool {
	return q.cfg.MaxDeliveries > 0 && msg.Deliveries >= q.cfg.MaxDeliveries
}

// Pending returns the number of leased but unacknowledged entries.
func (q *RedisStreamQueue) Pending(ctx context.Context) (int64, error) {
	res, err := q.client.XPending(ctx, q.cfg.Stream, q.cfg.Group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// DeadLetters returns the newest count dead-lettered entries.
func (q *RedisStreamQueue) DeadLetters(ctx context.Context, count int64) ([]DeadLetter, error) {
	entries, err := q.client.XRevRangeN(ctx, q.cfg.DeadLetterStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(entries))
	for _, entry := range entries {
		dl := DeadLetter{
			ID:       entry.ID,
			SourceID: stringValue(entry.Values[fieldSourceID]),
			Body:     []byte(stringValue(entry.Values[fieldBody])),
			Reason:   stringValue(entry.Values[fieldReason]),
		}
		dl.Deliveries, _ = strconv.ParseInt(stringValue(entry.Values[fieldDeliveries]), 10, 64)
		dl.FailedAt, _ = time.Parse(time.RFC3339Nano, stringValue(entry.Values[fieldFailedAt]))
		out = append(out, dl)
	}
	return out, nil
}

// Ping verifies the stream is reachable.
func (q *RedisStreamQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisStreamQueue) deliveries(ctx context.Context, id string) (int64, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.cfg.Stream,
		Group:  q.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("pending %s: %w", id, err)
	}
	if len(pending) == 0 {
		return 1, nil
	}
	return pending[0].RetryCount, nil
}

func toMessage(entry redis.XMessage, deliveries int64) Message {
	return Message{
		ID:         entry.ID,
		Body:       []byte(stringValue(entry.Values[fieldBody])),
		Deliveries: deliveries,
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
