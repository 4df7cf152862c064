package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/dalscooter/concern-service/internal/api/http"
	"github.com/dalscooter/concern-service/internal/api/http/handlers"
	"github.com/dalscooter/concern-service/internal/auth"
	"github.com/dalscooter/concern-service/internal/notify"
	"github.com/dalscooter/concern-service/internal/persistence"
	"github.com/dalscooter/concern-service/internal/repository"
	"github.com/dalscooter/concern-service/internal/service"
)

func apiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve concern intake, lookup and notification endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap("api")
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck
			return runAPI(cmd.Context(), rt)
		},
	}
}

func runAPI(parent context.Context, rt *runtime) error {
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
	persistence.WatchClosed(ctx, fail, rt.logger, rabbit.NotifyClosed(ch)...)

	intake := service.NewIntakeService(service.IntakeDependencies{
		Queue:   q,
		Store:   repository.NewConcernRepository(pg.PoolHandle(), rt.cfg.Postgres.ConcernsTable),
		Logger:  rt.logger,
		Metrics: rt.metrics,
	})
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Publisher: publisher,
		Logger:    rt.logger,
		Metrics:   rt.metrics,
	})
	tokens := auth.NewTokenManager(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: rt.cfg.App.Name})
	httptransport.RegisterMiddlewares(app, rt.logger, rt.metrics, rt.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
			"rabbitmq": rabbit,
		}, rt.metrics),
		Concerns:       handlers.NewConcernsHandler(intake),
		Notifications:  handlers.NewNotificationsHandler(notifications),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(rt.cfg.App.Addr()); err != nil {
			rt.logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	<-ctx.Done()

	if err := app.Shutdown(); err != nil {
		return err
	}
	return brokerFailure(ctx)
}
