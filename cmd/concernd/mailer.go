package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/events"
	"github.com/dalscooter/concern-service/internal/mail"
	"github.com/dalscooter/concern-service/internal/persistence"
	"github.com/dalscooter/concern-service/internal/service"
	"github.com/dalscooter/concern-service/internal/worker"
)

const idlePoll = 250 * time.Millisecond

func mailerCmd() *cobra.Command {
	var logOnly bool
	cmd := &cobra.Command{
		Use:   "mailer",
		Short: "Deliver notifications from the topic by email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap("mailer")
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck
			if !logOnly {
				if err := rt.cfg.ValidateMailer(); err != nil {
					return err
				}
			}
			return runMailer(cmd.Context(), rt, logOnly)
		},
	}
	cmd.Flags().BoolVar(&logOnly, "log-only", false, "log notifications instead of sending email")
	return cmd
}

func runMailer(parent context.Context, rt *runtime, logOnly bool) error {
	ctx, cancel := signalContext(parent, rt.logger)
	defer cancel()

	redis := persistence.NewRedis(ctx, rt.cfg.Redis, rt.logger)
	defer redis.Close()

	var email mail.Sender
	if !logOnly {
		sender, err := mail.NewSMTPSender(rt.cfg.SMTP, rt.logger)
		if err != nil {
			return err
		}
		email = sender
	}

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:  events.NewInMemoryDispatcher(),
		Dedup:       redis.Client,
		DedupTTL:    rt.cfg.Notification.DedupTTL(),
		InFlightTTL: rt.cfg.SMTP.Timeout() + 30*time.Second,
		Email:       email,
		Logger:      rt.logger,
		Metrics:     rt.metrics,
	})
	notifications.RegisterHandlers()

	rabbit, err := persistence.NewRabbitMQ(ctx, rt.cfg.RabbitMQ, rt.logger)
	if err != nil {
		return err
	}
	defer rabbit.Close()
	ch, err := rabbit.Channel()
	if err != nil {
		return err
	}

	w := worker.NewMailerWorker(ch, notifications, rt.cfg.Notification, "mailer", rt.logger)
	defer w.Close() //nolint:errcheck

	err = w.Run(ctx)
	rt.logger.Info("mailer stopped", zap.Any("outcomes", rt.metrics.Snapshot()["outcomes"]))
	return err
}
