package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
)

func newTestQueue(t *testing.T) (*RedisStreamQueue, *miniredis.Miniredis) {
	t.Helper()
	return newTestQueueWithVisibility(t, 60)
}

func newTestQueueWithVisibility(t *testing.T, visibilitySeconds int) (*RedisStreamQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisStreamQueue(client, config.QueueConfig{
		Stream:                   "concerns:intake",
		Group:                    "assigners",
		DeadLetterStream:         "concerns:intake:dlq",
		VisibilityTimeoutSeconds: visibilitySeconds,
		MaxDeliveries:            3,
		BatchSize:                10,
	}, zap.NewNop())
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return q, mr
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("second ensure should ignore BUSYGROUP, got %v", err)
	}
}

func TestEnqueueReceiveAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"bookingRef":"B1"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected entry id")
	}

	msgs, err := q.Receive(ctx, "worker-1")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != id || string(msgs[0].Body) != `{"bookingRef":"B1"}` || msgs[0].Deliveries != 1 {
		t.Fatalf("unexpected message %+v", msgs[0])
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected leased entry to be pending, got %d", pending)
	}

	if err := q.Ack(ctx, msgs[0]); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if pending, _ = q.Pending(ctx); pending != 0 {
		t.Fatalf("expected no pending entries after ack, got %d", pending)
	}

	again, err := q.Receive(ctx, "worker-2")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected entry to be consumed once, got %d", len(again))
	}
}

func TestDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, []byte("not json")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msgs, err := q.Receive(ctx, "worker-1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("receive: %v (%d)", err, len(msgs))
	}

	if err := q.DeadLetter(ctx, msgs[0], "MALFORMED_MESSAGE"); err != nil {
		t.Fatalf("dead-letter: %v", err)
	}
	if pending, _ := q.Pending(ctx); pending != 0 {
		t.Fatalf("dead-lettered entry should be acknowledged, pending=%d", pending)
	}

	letters, err := q.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(letters))
	}
	dl := letters[0]
	if dl.SourceID != msgs[0].ID || dl.Reason != "MALFORMED_MESSAGE" || string(dl.Body) != "not json" {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
	if dl.Deliveries != 1 || dl.FailedAt.IsZero() {
		t.Fatalf("expected delivery count and timestamp, got %+v", dl)
	}
}

func TestExhausted(t *testing.T) {
	q, _ := newTestQueue(t)
	if q.Exhausted(Message{Deliveries: 2}) {
		t.Error("2 deliveries should not exhaust a budget of 3")
	}
	if !q.Exhausted(Message{Deliveries: 3}) {
		t.Error("3 deliveries should exhaust a budget of 3")
	}
}

func TestMessageEnqueuedAt(t *testing.T) {
	at := Message{ID: "1751364000000-0"}.EnqueuedAt()
	if at.UnixMilli() != 1751364000000 {
		t.Fatalf("unexpected time %v", at)
	}
	if !(Message{ID: "opaque"}).EnqueuedAt().IsZero() {
		t.Fatal("expected zero time for non-stream id")
	}
}

func TestReclaim_RedeliversExpiredLease(t *testing.T) {
	q, _ := newTestQueueWithVisibility(t, 1)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"bookingRef":"B1"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first, err := q.Receive(ctx, "worker-1")
	if err != nil || len(first) != 1 {
		t.Fatalf("receive: %v (%d)", err, len(first))
	}

	early, err := q.Reclaim(ctx, "reclaimer")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("lease inside the visibility timeout must not be reclaimed, got %d", len(early))
	}

	for _, want := range []struct {
		deliveries int64
		exhausted  bool
	}{{2, false}, {3, true}} {
		time.Sleep(1100 * time.Millisecond)
		msgs, err := q.Reclaim(ctx, "reclaimer")
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("expected expired lease to be reclaimed, got %d", len(msgs))
		}
		msg := msgs[0]
		if msg.ID != id || string(msg.Body) != `{"bookingRef":"B1"}` {
			t.Fatalf("unexpected reclaimed message %+v", msg)
		}
		if msg.Deliveries != want.deliveries {
			t.Fatalf("expected %d deliveries, got %d", want.deliveries, msg.Deliveries)
		}
		if q.Exhausted(msg) != want.exhausted {
			t.Fatalf("deliveries=%d: expected exhausted=%v", msg.Deliveries, want.exhausted)
		}
	}

	if pending, _ := q.Pending(ctx); pending != 1 {
		t.Fatalf("reclaimed entry should stay pending until settled, got %d", pending)
	}
}
