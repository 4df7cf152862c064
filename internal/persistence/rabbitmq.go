package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
)

const (
	rabbitDialAttempts = 30
	rabbitDialBackoff  = 2 * time.Second
)

// ErrBrokerClosed is the cancellation cause once the broker drops the
// connection or a channel.
var ErrBrokerClosed = errors.New("rabbitmq link closed")

// RabbitMQ wraps an AMQP connection.
type RabbitMQ struct {
	Conn *amqp.Connection
}

// NewRabbitMQ dials the broker, retrying while it starts up.
func NewRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQ, error) {
	var lastErr error
	for attempt := 1; attempt <= rabbitDialAttempts; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			logger.Info("connected to rabbitmq")
			return &RabbitMQ{Conn: conn}, nil
		}
		lastErr = err
		logger.Warn("unable to reach rabbitmq; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", rabbitDialBackoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rabbitDialBackoff):
		}
	}
	return nil, fmt.Errorf("could not connect to rabbitmq after %d attempts: %w", rabbitDialAttempts, lastErr)
}

// Channel opens a new AMQP channel.
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	if r == nil || r.Conn == nil {
		return nil, errors.New("rabbitmq connection not configured")
	}
	return r.Conn.Channel()
}

// Ping reports whether the connection is still open.
func (r *RabbitMQ) Ping(context.Context) error {
	if r == nil || r.Conn == nil {
		return errors.New("rabbitmq connection not configured")
	}
	if r.Conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the connection.
func (r *RabbitMQ) Close() {
	if r != nil && r.Conn != nil {
		_ = r.Conn.Close()
	}
}

// NotifyClosed returns notifications for the connection and for ch. They
// fire with an error on broker-side closes and close silently on Close.
func (r *RabbitMQ) NotifyClosed(ch *amqp.Channel) []<-chan *amqp.Error {
	return []<-chan *amqp.Error{
		r.Conn.NotifyClose(make(chan *amqp.Error, 1)),
		ch.NotifyClose(make(chan *amqp.Error, 1)),
	}
}

// WatchClosed cancels with ErrBrokerClosed when any of closed reports an
// error. It stops watching once ctx is done.
func WatchClosed(ctx context.Context, cancel context.CancelCauseFunc, logger *zap.Logger, closed ...<-chan *amqp.Error) {
	for _, c := range closed {
		go func(c <-chan *amqp.Error) {
			select {
			case <-ctx.Done():
			case amqpErr, ok := <-c:
				if !ok || amqpErr == nil {
					return
				}
				cause := fmt.Errorf("%w: %s", ErrBrokerClosed, amqpErr.Error())
				logger.Error("rabbitmq link lost", zap.Error(cause))
				cancel(cause)
			}
		}(c)
	}
}
