package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/repository"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

const missingConcernFields = "Missing email, bookingRef, or concern"

// Enqueuer accepts serialized intake messages and returns the message id.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
}

// ConcernSubmission is a rider's raw concern as received at the edge.
type ConcernSubmission struct {
	SubmitterEmail string
	BookingRef     string
	ConcernText    string
	Type           *string
	IdempotencyKey string
	CorrelationID  string
}

// IntakeService validates submissions and hands them to the durable queue.
// It never consults the directory and never writes concern records.
type IntakeService struct {
	queue   Enqueuer
	store   repository.ConcernRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// IntakeDependencies bundles collaborators. Store is only needed for lookups.
type IntakeDependencies struct {
	Queue   Enqueuer
	Store   repository.ConcernRepository
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Clock   func() time.Time
}

// NewIntakeService creates the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		queue:   deps.Queue,
		store:   deps.Store,
		logger:  logger,
		metrics: deps.Metrics,
		now:     clock,
	}
}

// Submit validates the submission, stamps submittedAt and enqueues exactly one
// message. It returns the queue message id.
func (s *IntakeService) Submit(ctx context.Context, sub ConcernSubmission) (string, error) {
	draft := domain.ConcernDraft{
		SubmitterEmail: sub.SubmitterEmail,
		BookingRef:     sub.BookingRef,
		ConcernText:    sub.ConcernText,
		Type:           sub.Type,
		IdempotencyKey: sub.IdempotencyKey,
		CorrelationID:  sub.CorrelationID,
	}
	draft.Normalize()

	if fieldErrs := domain.ValidateDraft(&draft); len(fieldErrs) > 0 {
		s.metrics.RecordOutcome("intake", "rejected")
		return "", apperrors.NewValidationError(validationMessage(fieldErrs), map[string]any{"fields": fieldErrs})
	}

	draft.SubmittedAt = s.now().UTC()
	body, err := json.Marshal(draft)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}

	messageID, err := s.queue.Enqueue(ctx, body)
	if err != nil {
		s.metrics.RecordOutcome("intake", "enqueue_failed")
		s.logger.Error("failed to enqueue concern",
			zap.String("booking_ref", draft.BookingRef),
			zap.String("correlation_id", draft.CorrelationID),
			zap.Error(err))
		return "", apperrors.NewInternalError(err)
	}

	s.metrics.RecordOutcome("intake", "accepted")
	s.logger.Info("concern enqueued",
		zap.String("message_id", messageID),
		zap.String("booking_ref", draft.BookingRef),
		zap.String("correlation_id", draft.CorrelationID))
	return messageID, nil
}

// Get returns a stored concern record.
func (s *IntakeService) Get(ctx context.Context, concernID string) (*domain.Concern, error) {
	if s.store == nil {
		return nil, apperrors.NewInternalError(errors.New("concern store not configured"))
	}
	concern, err := s.store.Get(ctx, concernID)
	if err != nil {
		if errors.Is(err, repository.ErrConcernNotFound) {
			return nil, apperrors.NewNotFound("concern", map[string]any{"concern_id": concernID})
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	return concern, nil
}

// validationMessage returns the client-facing text for a failed submission.
func validationMessage(errs []domain.FieldError) string {
	for _, fe := range errs {
		if fe.Msg == "required" {
			return missingConcernFields
		}
	}
	return "Invalid concern submission"
}
