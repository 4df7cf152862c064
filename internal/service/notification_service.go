package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/events"
	"github.com/dalscooter/concern-service/internal/mail"
	"github.com/dalscooter/concern-service/internal/notify"
	"github.com/dalscooter/concern-service/internal/observability"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

const (
	missingNotificationFields = "Missing email, subject, or body"
	dedupKeyPrefix            = "notify:dedup:"
)

// NotificationService publishes notifications on the API side and delivers
// them on the mailer side.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  notify.Notifier
	dedup      redis.Cmdable
	dedupTTL   time.Duration
	inFlight   time.Duration
	email      mail.Sender
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NotificationDependencies bundles collaborators. The API process sets
// Publisher; the mailer sets Dispatcher, Email and Dedup.
type NotificationDependencies struct {
	Dispatcher  events.Dispatcher
	Publisher   notify.Notifier
	Dedup       redis.Cmdable
	DedupTTL    time.Duration
	// InFlightTTL bounds a claim taken before sending, so a crash mid-send
	// frees the key for the redelivery. Successful sends extend it to DedupTTL.
	InFlightTTL time.Duration
	Email       mail.Sender
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.DedupTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	inFlight := deps.InFlightTTL
	if inFlight <= 0 {
		inFlight = 2 * time.Minute
	}
	if inFlight > ttl {
		inFlight = ttl
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		dedup:      deps.Dedup,
		dedupTTL:   ttl,
		inFlight:   inFlight,
		email:      deps.Email,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// RegisterHandlers subscribes the delivery channels.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.AnyKind, "log", mail.NewLogSender(n.logger).Send)
	if n.email != nil {
		n.dispatcher.Subscribe(events.AnyKind, "email", n.email.Send)
	}
}

// PublishAccountEvent validates a caller-rendered notification and publishes
// it on the topic.
func (n *NotificationService) PublishAccountEvent(ctx context.Context, event domain.NotificationEvent, correlationID string) error {
	event.RecipientAddress = strings.TrimSpace(event.RecipientAddress)
	if fieldErrs := domain.ValidateNotification(event); len(fieldErrs) > 0 {
		return apperrors.NewValidationError(missingNotificationFields, map[string]any{"fields": fieldErrs})
	}
	if event.Kind == "" {
		event.Kind = domain.NotificationAccountEvent
	}
	if err := n.publisher.Publish(ctx, event, correlationID); err != nil {
		n.metrics.RecordOutcome("notification", apperrors.CodeNotificationDelivery)
		n.logger.Error("failed to publish notification",
			zap.String("recipient", event.RecipientAddress),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	n.metrics.RecordOutcome("notification", "published")
	return nil
}

// HandleDelivery unwraps one delivered payload and sends it. Payloads that can
// never be delivered are logged and skipped with a nil error. Duplicates of an
// already sent dedup key are dropped. A transport failure is returned so the
// caller can dead-letter the delivery.
func (n *NotificationService) HandleDelivery(ctx context.Context, body []byte) error {
	out, err := events.Unwrap(body)
	if err != nil {
		n.metrics.RecordOutcome("mailer", "skipped")
		n.logger.Warn("skipping undeliverable notification",
			zap.Int("layers", len(out.Layers)),
			zap.Error(err))
		return nil
	}
	event := out.Event
	log := n.logger.With(
		zap.String("recipient", event.RecipientAddress),
		zap.String("dedup_key", event.DedupKey))

	key, claimed := n.claim(ctx, event, log)
	if key != "" && !claimed {
		n.metrics.RecordOutcome("mailer", "duplicate")
		log.Info("duplicate notification dropped")
		return nil
	}

	if err := n.dispatcher.Publish(ctx, event); err != nil {
		n.release(key, log)
		n.metrics.RecordOutcome("mailer", apperrors.CodeNotificationDelivery)
		log.Error("notification delivery failed", zap.Error(err))
		return apperrors.NewNotificationDelivery(err)
	}
	n.confirm(ctx, key, log)
	n.metrics.RecordOutcome("mailer", "sent")
	return nil
}

// claim records the event's dedup key for the in-flight window. It reports the key used and whether
// this delivery owns it. Events without a key, or a failing dedup store,
// always proceed.
func (n *NotificationService) claim(ctx context.Context, event domain.NotificationEvent, log *zap.Logger) (string, bool) {
	if n.dedup == nil || event.DedupKey == "" {
		return "", true
	}
	key := dedupKeyPrefix + event.DedupKey + ":" + strings.ToLower(event.RecipientAddress)
	ok, err := n.dedup.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), n.inFlight).Result()
	if err != nil {
		log.Warn("dedup check failed; sending anyway", zap.Error(err))
		return "", true
	}
	return key, ok
}

// confirm keeps a sent event's key for the full dedup window.
func (n *NotificationService) confirm(ctx context.Context, key string, log *zap.Logger) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.dedup.Expire(ctx, key, n.dedupTTL).Err(); err != nil {
		log.Warn("failed to extend dedup key", zap.Error(err))
	}
}

func (n *NotificationService) release(key string, log *zap.Logger) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.dedup.Del(ctx, key).Err(); err != nil {
		log.Warn("failed to release dedup key", zap.Error(err))
	}
}
