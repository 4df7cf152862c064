package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
	"github.com/dalscooter/concern-service/internal/directory"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/persistence"
	"github.com/dalscooter/concern-service/internal/queue"
	"github.com/dalscooter/concern-service/internal/repository"
)

// runtime holds what every process needs.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// bootstrap loads config and builds the logger for process. Connections are
// labelled with the process so server-side listings tell them apart.
func bootstrap(process string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Postgres.ApplicationName = connectionName(cfg.Postgres.ApplicationName, process)
	cfg.Redis.ClientName = connectionName(cfg.Redis.ClientName, process)

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name, process)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}, nil
}

func connectionName(base, process string) string {
	if base == "" {
		return ""
	}
	return base + ":" + process
}

// signalContext is cancelled with parent or on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		watchSignals(ctx, cancel, logger, sigCh)
	}()
	return ctx, cancel
}

// watchSignals cancels on the first signal and returns once ctx is done.
func watchSignals(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, sigCh <-chan os.Signal) {
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}
}

// brokerFailure returns the cause when ctx ended because RabbitMQ went away.
func brokerFailure(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, persistence.ErrBrokerClosed) {
		return cause
	}
	return nil
}

func openPostgres(ctx context.Context, rt *runtime) (*persistence.Postgres, error) {
	if rt.cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if rt.cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), rt.cfg.Postgres.ConcernsTable, rt.logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return pg, nil
}

func openQueue(ctx context.Context, rt *runtime, redis *persistence.Redis) (*queue.RedisStreamQueue, error) {
	q := queue.NewRedisStreamQueue(redis.Client, rt.cfg.Queue, rt.logger)
	if err := q.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func openDirectory(rt *runtime, pg *persistence.Postgres) (directory.Directory, error) {
	switch rt.cfg.Directory.Backend {
	case config.DirectoryBackendFile:
		dir, err := directory.LoadFileDirectory(rt.cfg.Directory.File)
		if err != nil {
			return nil, err
		}
		return dir, nil
	default:
		return directory.NewPostgresDirectory(rt.cfg.Directory.PoolID, repository.NewOperatorRepository(pg.PoolHandle())), nil
	}
}
