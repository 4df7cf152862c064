package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/directory"
	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/idempotency"
	"github.com/dalscooter/concern-service/internal/notify"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/queue"
	"github.com/dalscooter/concern-service/internal/repository"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

const (
	AssignmentSubject = "New DALScooter Concern Assigned"
	defaultGreeting   = "Franchise"
)

// Picker chooses an index in [0, n).
type Picker interface {
	Pick(n int) int
}

// UniformPicker draws each candidate with equal probability.
type UniformPicker struct{}

func (UniformPicker) Pick(n int) int { return rand.IntN(n) }

// AssignmentService turns one intake message into one persisted, assigned
// concern and alerts the chosen operator.
type AssignmentService struct {
	directory        directory.Directory
	store            repository.ConcernRepository
	notifier         notify.Notifier
	picker           Picker
	logger           *zap.Logger
	metrics          *observability.Metrics
	group            string
	limit            int
	directoryTimeout time.Duration
	notifyTimeout    time.Duration
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Directory        directory.Directory
	Store            repository.ConcernRepository
	Notifier         notify.Notifier
	Picker           Picker
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Group            string
	Limit            int
	DirectoryTimeout time.Duration
	NotifyTimeout    time.Duration
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	s := &AssignmentService{
		directory:        deps.Directory,
		store:            deps.Store,
		notifier:         deps.Notifier,
		picker:           deps.Picker,
		logger:           deps.Logger,
		metrics:          deps.Metrics,
		group:            deps.Group,
		limit:            deps.Limit,
		directoryTimeout: deps.DirectoryTimeout,
		notifyTimeout:    deps.NotifyTimeout,
	}
	if s.picker == nil {
		s.picker = UniformPicker{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.limit <= 0 {
		s.limit = 60
	}
	if s.directoryTimeout <= 0 {
		s.directoryTimeout = 5 * time.Second
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 5 * time.Second
	}
	return s
}

// Process handles one queue message. A nil error means the concern record is
// durably stored and the message may be acknowledged. Notification failures
// never surface here.
func (s *AssignmentService) Process(ctx context.Context, msg queue.Message) (*domain.Concern, error) {
	log := s.logger.With(zap.String("message_id", msg.ID), zap.Int64("deliveries", msg.Deliveries))
	log.Debug("concern received")

	draft, err := decodeDraft(msg)
	if err != nil {
		s.metrics.RecordOutcome("assignment", apperrors.CodeMalformedMessage)
		return nil, err
	}

	concernID, source := idempotency.ConcernID(draft, msg.ID)
	log = log.With(zap.String("concern_id", concernID))
	log.Debug("concern validated", zap.String("key_source", string(source)))

	existing, err := s.store.Get(ctx, concernID)
	switch {
	case err == nil:
		log.Info("concern already persisted; reusing stored assignment",
			zap.String("operator_id", existing.AssignedOperatorID))
		s.metrics.RecordOutcome("assignment", "redelivered")
		s.notifyOperator(ctx, existing, log)
		return existing, nil
	case !errors.Is(err, repository.ErrConcernNotFound):
		s.metrics.RecordOutcome("assignment", apperrors.CodePersistence)
		return nil, apperrors.NewPersistenceError(err)
	}

	operator, err := s.selectOperator(ctx, log)
	if err != nil {
		s.metrics.RecordOutcome("assignment", apperrors.CodeOf(err))
		return nil, err
	}

	concern := buildConcern(concernID, draft, operator)
	if concern.AssignedOperatorEmail == nil {
		log.Warn("operator has no email attribute", zap.String("operator_id", operator.ID))
	}
	if concern.AssignedOperatorName == nil {
		log.Warn("operator has no name attribute", zap.String("operator_id", operator.ID))
	}

	stored, created, err := s.store.Upsert(ctx, concern)
	if err != nil {
		s.metrics.RecordOutcome("assignment", apperrors.CodePersistence)
		log.Error("failed to persist concern", zap.Error(err))
		return nil, apperrors.NewPersistenceError(err)
	}
	if !created {
		log.Info("concern persisted by a concurrent delivery; using stored assignment",
			zap.String("operator_id", stored.AssignedOperatorID))
	}
	log.Info("concern persisted", zap.String("operator_id", stored.AssignedOperatorID))
	s.metrics.RecordOutcome("assignment", "assigned")

	s.notifyOperator(ctx, stored, log)
	return stored, nil
}

func decodeDraft(msg queue.Message) (*domain.ConcernDraft, error) {
	var draft domain.ConcernDraft
	if err := json.Unmarshal(msg.Body, &draft); err != nil {
		return nil, apperrors.NewMalformedMessage(err)
	}
	draft.Normalize()
	if fieldErrs := domain.ValidateDraft(&draft); len(fieldErrs) > 0 {
		return nil, apperrors.NewMalformedMessage(fmt.Errorf("invalid draft: %v", fieldErrs))
	}
	if draft.SubmittedAt.IsZero() {
		draft.SubmittedAt = msg.EnqueuedAt()
	}
	if draft.SubmittedAt.IsZero() {
		return nil, apperrors.NewMalformedMessage(errors.New("submittedAt missing"))
	}
	draft.SubmittedAt = draft.SubmittedAt.UTC()
	return &draft, nil
}

func (s *AssignmentService) selectOperator(ctx context.Context, log *zap.Logger) (domain.Operator, error) {
	dctx, cancel := context.WithTimeout(ctx, s.directoryTimeout)
	defer cancel()

	operators, err := s.directory.ListEligible(dctx, s.group, s.limit)
	if err != nil {
		log.Warn("agent directory query failed", zap.String("group", s.group), zap.Error(err))
		return domain.Operator{}, apperrors.NewDirectoryUnavailable(err)
	}
	if len(operators) == 0 {
		log.Warn("no eligible operators", zap.String("group", s.group))
		return domain.Operator{}, apperrors.NewNoEligibleOperators(s.group)
	}

	idx := s.picker.Pick(len(operators))
	if idx < 0 || idx >= len(operators) {
		idx = 0
	}
	operator := operators[idx]
	log.Debug("operator selected",
		zap.String("operator_id", operator.ID),
		zap.Int("candidates", len(operators)))
	return operator, nil
}

func buildConcern(id string, draft *domain.ConcernDraft, operator domain.Operator) *domain.Concern {
	c := &domain.Concern{
		ID:                 id,
		SubmitterEmail:     draft.SubmitterEmail,
		BookingRef:         draft.BookingRef,
		ConcernText:        draft.ConcernText,
		Type:               draft.Type,
		SubmittedAt:        draft.SubmittedAt,
		AssignedOperatorID: operator.ID,
		Status:             domain.ConcernStatusPending,
	}
	if operator.HasEmail() {
		email := *operator.Email
		c.AssignedOperatorEmail = &email
	}
	if operator.Name != nil && strings.TrimSpace(*operator.Name) != "" {
		name := *operator.Name
		c.AssignedOperatorName = &name
	}
	if draft.CorrelationID != "" {
		corr := draft.CorrelationID
		c.CorrelationID = &corr
	}
	return c
}

func (s *AssignmentService) notifyOperator(ctx context.Context, c *domain.Concern, log *zap.Logger) {
	if s.notifier == nil {
		return
	}
	if c.AssignedOperatorEmail == nil || *c.AssignedOperatorEmail == "" {
		log.Warn("skipping operator notification; no email on record", zap.String("operator_id", c.AssignedOperatorID))
		s.metrics.RecordOutcome("notification", "skipped")
		return
	}

	event, err := RenderOperatorAlert(c)
	if err != nil {
		log.Warn("failed to render operator notification", zap.Error(err))
		s.metrics.RecordOutcome("notification", apperrors.CodeNotificationDelivery)
		return
	}

	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	correlationID := ""
	if c.CorrelationID != nil {
		correlationID = *c.CorrelationID
	}
	if err := s.notifier.Publish(nctx, event, correlationID); err != nil {
		log.Warn("operator notification failed", zap.Error(apperrors.NewNotificationDelivery(err)))
		s.metrics.RecordOutcome("notification", apperrors.CodeNotificationDelivery)
		return
	}
	s.metrics.RecordOutcome("notification", "published")
	log.Debug("operator notified", zap.String("operator_id", c.AssignedOperatorID))
}

// RenderOperatorAlert builds the assignment email for the record's operator.
// The body carries the full record so the operator can act without a lookup.
func RenderOperatorAlert(c *domain.Concern) (domain.NotificationEvent, error) {
	record, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return domain.NotificationEvent{}, err
	}
	greeting := defaultGreeting
	if c.AssignedOperatorName != nil && *c.AssignedOperatorName != "" {
		greeting = *c.AssignedOperatorName
	}
	recipient := ""
	if c.AssignedOperatorEmail != nil {
		recipient = *c.AssignedOperatorEmail
	}
	return domain.NotificationEvent{
		RecipientAddress: recipient,
		Subject:          AssignmentSubject,
		Body:             fmt.Sprintf("Hello %s,\n\nYou have been assigned a new concern:\n\n%s", greeting, record),
		Kind:             domain.NotificationConcernAssigned,
		DedupKey:         c.ID,
	}, nil
}
