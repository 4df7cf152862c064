package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/notify"
	"github.com/dalscooter/concern-service/internal/persistence"
	"github.com/dalscooter/concern-service/internal/repository"
	"github.com/dalscooter/concern-service/internal/service"
	"github.com/dalscooter/concern-service/internal/worker"
)

func assignerCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "assigner",
		Short: "Assign queued concerns to operators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap("assigner")
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck
			if err := rt.cfg.ValidateWorker(); err != nil {
				return err
			}
			return runAssigner(cmd.Context(), rt, name)
		},
	}
	hostname, _ := os.Hostname()
	cmd.Flags().StringVar(&name, "name", "assigner-"+hostname, "consumer name prefix within the group")
	return cmd
}

func runAssigner(parent context.Context, rt *runtime, name string) error {
	runCtx, fail := context.WithCancelCause(parent)
	defer fail(nil)
	ctx, cancel := signalContext(runCtx, rt.logger)
	defer cancel()

	pg, err := openPostgres(ctx, rt)
	if err != nil {
		return err
	}
	defer pg.Close()

	redis := persistence.NewRedis(ctx, rt.cfg.Redis, rt.logger)
	defer redis.Close()

	q, err := openQueue(ctx, rt, redis)
	if err != nil {
		return err
	}

	dir, err := openDirectory(rt, pg)
	if err != nil {
		return err
	}

	rabbit, err := persistence.NewRabbitMQ(ctx, rt.cfg.RabbitMQ, rt.logger)
	if err != nil {
		return err
	}
	defer rabbit.Close()
	ch, err := rabbit.Channel()
	if err != nil {
		return err
	}
	publisher, err := notify.NewPublisher(ch, rt.cfg.Notification, rt.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	// Exit on broker-side closes; publishes on a dead channel only log.
	persistence.WatchClosed(ctx, fail, rt.logger, rabbit.NotifyClosed(ch)...)

	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Directory:        dir,
		Store:            repository.NewConcernRepository(pg.PoolHandle(), rt.cfg.Postgres.ConcernsTable),
		Notifier:         publisher,
		Logger:           rt.logger,
		Metrics:          rt.metrics,
		Group:            rt.cfg.Directory.Group,
		Limit:            rt.cfg.Directory.Limit,
		DirectoryTimeout: rt.cfg.Worker.DirectoryTimeout(),
		NotifyTimeout:    rt.cfg.Worker.NotifyTimeout(),
	})

	// Blocking reads already wait for entries; only poll when they are disabled.
	var idle time.Duration
	if rt.cfg.Queue.Block() == 0 {
		idle = idlePoll
	}
	w := worker.NewAssignmentWorker(q, assignments, worker.AssignmentWorkerConfig{
		Name:              name,
		Concurrency:       rt.cfg.Worker.Concurrency,
		VisibilityTimeout: rt.cfg.Queue.VisibilityTimeout(),
		IdleWait:          idle,
	}, rt.logger, rt.metrics)

	err = w.Run(ctx)
	rt.logger.Info("assigner stopped", zap.Any("outcomes", rt.metrics.Snapshot()["outcomes"]))
	if err != nil {
		return err
	}
	return brokerFailure(ctx)
}
