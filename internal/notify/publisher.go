package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/events"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Notifier publishes rendered notifications to the topic.
type Notifier interface {
	Publish(ctx context.Context, event domain.NotificationEvent, correlationID string) error
}

// Publisher fans notification events out through a RabbitMQ topic exchange.
type Publisher struct {
	channel Channel
	cfg     config.NotificationConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewPublisher declares the topic exchange and returns a publisher on it.
func NewPublisher(ch Channel, cfg config.NotificationConfig, logger *zap.Logger) (*Publisher, error) {
	if err := DeclareTopic(ch, cfg.Topic); err != nil {
		return nil, err
	}
	return &Publisher{channel: ch, cfg: cfg, logger: logger, now: time.Now}, nil
}

// DeclareTopic declares the durable topic exchange. Safe to repeat.
func DeclareTopic(ch interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}, topic string) error {
	if err := ch.ExchangeDeclare(
		topic,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	return nil
}

// Publish wraps event in a topic envelope and publishes it persistently.
func (p *Publisher) Publish(ctx context.Context, event domain.NotificationEvent, correlationID string) error {
	messageID := uuid.NewString()
	body, err := events.WrapPubSub(event, p.cfg.Topic, messageID, p.now())
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := p.RoutingKey(event.RecipientAddress)

	p.logger.Debug("publishing notification",
		zap.String("topic", p.cfg.Topic),
		zap.String("routing_key", key),
		zap.String("message_id", messageID),
		zap.String("dedup_key", event.DedupKey),
		zap.String("correlation_id", correlationID))

	return p.channel.PublishWithContext(
		ctx,
		p.cfg.Topic,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			MessageId:     messageID,
			CorrelationId: correlationID,
			Type:          string(event.Kind),
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     p.now(),
		},
	)
}

// RoutingKey returns the operator-specific key for recipient, or the default.
func (p *Publisher) RoutingKey(recipient string) string {
	if key, ok := p.cfg.OperatorRoutes[strings.ToLower(strings.TrimSpace(recipient))]; ok {
		return key
	}
	return p.cfg.RoutingKey
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
