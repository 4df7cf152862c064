package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/queue"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

// ReasonMaxDeliveries prefixes the dead-letter reason of entries that kept
// failing with retryable errors.
const ReasonMaxDeliveries = "MAX_DELIVERIES_EXCEEDED"

// Outcome is what happened to a leased entry after processing.
type Outcome string

const (
	OutcomeAcked        Outcome = "acked"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeReleased     Outcome = "released"
)

// StreamQueue is the lease-based intake queue.
type StreamQueue interface {
	Receive(ctx context.Context, consumer string) ([]queue.Message, error)
	Reclaim(ctx context.Context, consumer string) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	DeadLetter(ctx context.Context, msg queue.Message, reason string) error
	Exhausted(msg queue.Message) bool
}

// Processor handles one intake message.
type Processor interface {
	Process(ctx context.Context, msg queue.Message) (*domain.Concern, error)
}

// AssignmentWorker runs a pool of stream consumers plus a reclaimer.
type AssignmentWorker struct {
	queue           StreamQueue
	processor       Processor
	logger          *zap.Logger
	metrics         *observability.Metrics
	name            string
	concurrency     int
	reclaimInterval time.Duration
	idleWait        time.Duration
	errorBackoff    time.Duration
}

// AssignmentWorkerConfig bundles pool settings.
type AssignmentWorkerConfig struct {
	Name              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// IdleWait is the pause after an empty read; use it when reads do not block.
	IdleWait time.Duration
}

// NewAssignmentWorker creates the worker.
func NewAssignmentWorker(q StreamQueue, p Processor, cfg AssignmentWorkerConfig, logger *zap.Logger, metrics *observability.Metrics) *AssignmentWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Name == "" {
		cfg.Name = "assigner"
	}
	interval := cfg.VisibilityTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &AssignmentWorker{
		queue:           q,
		processor:       p,
		logger:          logger,
		metrics:         metrics,
		name:            cfg.Name,
		concurrency:     cfg.Concurrency,
		reclaimInterval: interval,
		idleWait:        cfg.IdleWait,
		errorBackoff:    time.Second,
	}
}

// Run consumes until ctx is cancelled. Entries in flight at shutdown stay
// pending and are reclaimed after the visibility timeout.
func (w *AssignmentWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", w.name, i)
		g.Go(func() error { return w.consume(gctx, consumer) })
	}
	g.Go(func() error { return w.reclaim(gctx, w.name+"-reclaimer") })

	w.logger.Info("assignment worker started",
		zap.String("name", w.name),
		zap.Int("concurrency", w.concurrency))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *AssignmentWorker) consume(ctx context.Context, consumer string) error {
	for ctx.Err() == nil {
		msgs, err := w.queue.Receive(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("receive failed", zap.String("consumer", consumer), zap.Error(err))
			sleep(ctx, w.errorBackoff)
			continue
		}
		if len(msgs) == 0 {
			sleep(ctx, w.idleWait)
			continue
		}
		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
	return nil
}

func (w *AssignmentWorker) reclaim(ctx context.Context, consumer string) error {
	ticker := time.NewTicker(w.reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		msgs, err := w.queue.Reclaim(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("reclaim failed", zap.Error(err))
			continue
		}
		if len(msgs) > 0 {
			w.logger.Info("reclaimed expired leases", zap.Int("count", len(msgs)))
		}
		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one entry and settles its lease.
func (w *AssignmentWorker) Handle(ctx context.Context, msg queue.Message) Outcome {
	_, err := w.processor.Process(ctx, msg)
	if err != nil && ctx.Err() != nil {
		w.logger.Info("shutdown during processing; leaving entry pending", zap.String("message_id", msg.ID))
		return OutcomeReleased
	}
	return w.Settle(ctx, msg, err)
}

// Settle applies the queue policy for a processing result: success is
// acknowledged, permanent failures and exhausted entries are dead-lettered,
// and retryable failures are left pending for redelivery.
func (w *AssignmentWorker) Settle(ctx context.Context, msg queue.Message, procErr error) Outcome {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	log := w.logger.With(zap.String("message_id", msg.ID), zap.Int64("deliveries", msg.Deliveries))

	var outcome Outcome
	switch {
	case procErr == nil:
		if err := w.queue.Ack(sctx, msg); err != nil {
			log.Warn("ack failed; entry will be redelivered", zap.Error(err))
		}
		outcome = OutcomeAcked
	case !apperrors.IsRetryable(procErr):
		outcome = w.deadLetter(sctx, msg, apperrors.CodeOf(procErr), procErr, log)
	case w.queue.Exhausted(msg):
		outcome = w.deadLetter(sctx, msg, ReasonMaxDeliveries+":"+apperrors.CodeOf(procErr), procErr, log)
	default:
		log.Warn("processing failed; leaving entry for redelivery",
			zap.String("code", apperrors.CodeOf(procErr)),
			zap.Error(procErr))
		outcome = OutcomeReleased
	}
	w.metrics.RecordOutcome("queue", string(outcome))
	return outcome
}

func (w *AssignmentWorker) deadLetter(ctx context.Context, msg queue.Message, reason string, procErr error, log *zap.Logger) Outcome {
	if err := w.queue.DeadLetter(ctx, msg, reason); err != nil {
		log.Error("dead-letter failed; entry stays pending", zap.String("reason", reason), zap.Error(err))
		return OutcomeReleased
	}
	log.Warn("entry dead-lettered", zap.String("reason", reason), zap.Error(procErr))
	return OutcomeDeadLettered
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
