package worker

import (
	"context"
	"errors"
	"sort"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
	"github.com/dalscooter/concern-service/internal/notify"
)

// ConsumerChannel is the subset of *amqp.Channel the mailer needs.
type ConsumerChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// DeliveryHandler handles one notification payload. A nil error acks.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, body []byte) error
}

// MailerWorker consumes the notification topic and hands each delivery to
// the notification service.
type MailerWorker struct {
	channel ConsumerChannel
	handler DeliveryHandler
	cfg     config.NotificationConfig
	name    string
	logger  *zap.Logger
}

// NewMailerWorker creates the worker.
func NewMailerWorker(ch ConsumerChannel, handler DeliveryHandler, cfg config.NotificationConfig, name string, logger *zap.Logger) *MailerWorker {
	if name == "" {
		name = "mailer"
	}
	return &MailerWorker{channel: ch, handler: handler, cfg: cfg, name: name, logger: logger}
}

// DeadLetterQueue returns the name of the mailer's dead-letter queue.
func (w *MailerWorker) DeadLetterQueue() string {
	return w.cfg.MailerQueue + ".dlq"
}

// BindingKeys returns the default routing key plus every operator route.
func (w *MailerWorker) BindingKeys() []string {
	seen := map[string]struct{}{w.cfg.RoutingKey: {}}
	keys := []string{w.cfg.RoutingKey}
	for _, key := range w.cfg.OperatorRoutes {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys[1:])
	return keys
}

// Setup declares the exchange, the mailer queue with its dead-letter queue,
// binds the routing keys and starts consuming with manual acks.
func (w *MailerWorker) Setup() (<-chan amqp.Delivery, error) {
	if err := notify.DeclareTopic(w.channel, w.cfg.Topic); err != nil {
		return nil, err
	}

	if _, err := w.channel.QueueDeclare(
		w.DeadLetterQueue(),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": w.DeadLetterQueue(),
	}
	if _, err := w.channel.QueueDeclare(
		w.cfg.MailerQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return nil, err
	}

	for _, key := range w.BindingKeys() {
		if err := w.channel.QueueBind(w.cfg.MailerQueue, key, w.cfg.Topic, false, nil); err != nil {
			return nil, err
		}
	}

	prefetch := w.cfg.MailerPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := w.channel.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}

	return w.channel.Consume(
		w.cfg.MailerQueue,
		w.name,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (w *MailerWorker) Run(ctx context.Context) error {
	deliveries, err := w.Setup()
	if err != nil {
		return err
	}
	w.logger.Info("mailer consumer started", zap.String("queue", w.cfg.MailerQueue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle acks a handled delivery and nacks a failed one to the dead-letter queue.
func (w *MailerWorker) Handle(ctx context.Context, d amqp.Delivery) {
	log := w.logger.With(
		zap.String("message_id", d.MessageId),
		zap.String("correlation_id", d.CorrelationId),
		zap.String("routing_key", d.RoutingKey))

	if err := w.handler.HandleDelivery(ctx, d.Body); err != nil {
		log.Warn("delivery failed; dead-lettering", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("nack failed", zap.Error(nackErr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// Close closes the channel.
func (w *MailerWorker) Close() error {
	return w.channel.Close()
}
