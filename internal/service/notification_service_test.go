package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/events"
	"github.com/dalscooter/concern-service/internal/observability"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

type mailerFixture struct {
	svc     *NotificationService
	email   *fakeSender
	metrics *observability.Metrics
	mr      *miniredis.Miniredis
}

func newMailerFixture(t *testing.T) *mailerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &mailerFixture{email: &fakeSender{}, metrics: observability.NewMetrics(), mr: mr}
	f.svc = NewNotificationService(NotificationDependencies{
		Dispatcher:  events.NewInMemoryDispatcher(),
		Dedup:       client,
		DedupTTL:    time.Hour,
		InFlightTTL: 30 * time.Second,
		Email:       f.email,
		Metrics:     f.metrics,
	})
	f.svc.RegisterHandlers()
	return f
}

func wrapped(t *testing.T, event domain.NotificationEvent, queueLayer bool) []byte {
	t.Helper()
	body, err := events.WrapPubSub(event, "notifications", "m-1", time.Now())
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if queueLayer {
		if body, err = events.WrapQueue(body, "q-1"); err != nil {
			t.Fatalf("wrap queue: %v", err)
		}
	}
	return body
}

func TestHandleDelivery_AllEnvelopeDepths(t *testing.T) {
	f := newMailerFixture(t)
	event := domain.NotificationEvent{RecipientAddress: "u@x.com", Subject: "Welcome", Body: "Hi"}

	payloads := [][]byte{
		[]byte(`{"email":"u@x.com","subject":"Welcome","body":"Hi"}`),
		wrapped(t, event, false),
		wrapped(t, event, true),
	}
	for _, p := range payloads {
		if err := f.svc.HandleDelivery(context.Background(), p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(f.email.sent) != 3 {
		t.Fatalf("expected 3 emails, got %d", len(f.email.sent))
	}
	for _, sent := range f.email.sent {
		if sent.RecipientAddress != "u@x.com" || sent.Subject != "Welcome" || sent.Body != "Hi" {
			t.Fatalf("unexpected email %+v", sent)
		}
	}
}

func TestHandleDelivery_SkipsIncompleteAndContinues(t *testing.T) {
	f := newMailerFixture(t)
	batch := [][]byte{
		[]byte(`{"email":"u@x.com","body":"no subject"}`),
		[]byte(`garbage`),
		[]byte(`{"email":"v@x.com","subject":"S","body":"B"}`),
	}
	for _, p := range batch {
		if err := f.svc.HandleDelivery(context.Background(), p); err != nil {
			t.Fatalf("undeliverable payloads must be skipped, got %v", err)
		}
	}
	if len(f.email.sent) != 1 || f.email.sent[0].RecipientAddress != "v@x.com" {
		t.Fatalf("expected only the complete event to be sent, got %+v", f.email.sent)
	}
	if f.metrics.Outcome("mailer", "skipped") != 2 {
		t.Fatal("expected skipped payloads to be counted")
	}
}

func TestHandleDelivery_DropsDuplicates(t *testing.T) {
	f := newMailerFixture(t)
	event := domain.NotificationEvent{RecipientAddress: "op1@y.com", Subject: AssignmentSubject, Body: "b", DedupKey: "c-1"}

	for i := 0; i < 2; i++ {
		if err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected duplicate to be dropped, sent %d", len(f.email.sent))
	}
	if ttl := f.mr.TTL(dedupKeyPrefix + "c-1:op1@y.com"); ttl != time.Hour {
		t.Fatalf("expected dedup key with ttl, got %v", ttl)
	}
}

func TestHandleDelivery_ClaimsForInFlightWindowThenExtends(t *testing.T) {
	f := newMailerFixture(t)
	event := domain.NotificationEvent{RecipientAddress: "op1@y.com", Subject: "s", Body: "b", DedupKey: "c-3"}
	key := dedupKeyPrefix + "c-3:op1@y.com"

	var duringSend time.Duration
	f.email.onSend = func(domain.NotificationEvent) { duringSend = f.mr.TTL(key) }

	if err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if duringSend != 30*time.Second {
		t.Fatalf("expected the in-flight ttl while sending, got %v", duringSend)
	}
	if ttl := f.mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected sent key to keep the dedup ttl, got %v", ttl)
	}
}

func TestHandleDelivery_CrashMidSendFreesKeyForRedelivery(t *testing.T) {
	f := newMailerFixture(t)
	event := domain.NotificationEvent{RecipientAddress: "op1@y.com", Subject: "s", Body: "b", DedupKey: "c-4"}

	// A delivery that claimed the key and died before sending.
	if _, claimed := f.svc.claim(context.Background(), event, zap.NewNop()); !claimed {
		t.Fatal("expected first claim to succeed")
	}

	if err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.email.sent) != 0 {
		t.Fatal("a live claim must still suppress concurrent redelivery")
	}

	f.mr.FastForward(31 * time.Second)
	if err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected redelivery after the in-flight window to send, got %d", len(f.email.sent))
	}
}

func TestHandleDelivery_FailureReleasesDedupKey(t *testing.T) {
	f := newMailerFixture(t)
	event := domain.NotificationEvent{RecipientAddress: "op1@y.com", Subject: "s", Body: "b", DedupKey: "c-2"}

	f.email.err = errors.New("smtp down")
	err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false))
	if !errors.Is(err, apperrors.ErrNotificationDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if f.mr.Exists(dedupKeyPrefix + "c-2:op1@y.com") {
		t.Fatal("failed delivery must release its dedup key")
	}

	f.email.err = nil
	if err := f.svc.HandleDelivery(context.Background(), wrapped(t, event, false)); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected retry to send, got %d", len(f.email.sent))
	}
}

func TestPublishAccountEvent(t *testing.T) {
	pub := &fakeNotifier{}
	svc := NewNotificationService(NotificationDependencies{Publisher: pub})

	err := svc.PublishAccountEvent(context.Background(), domain.NotificationEvent{RecipientAddress: "u@x.com", Subject: "s"}, "")
	if de := apperrors.ToDomainError(err); de.Code != apperrors.CodeValidation || de.Message != "Missing email, subject, or body" {
		t.Fatalf("unexpected error %v", err)
	}

	if err := svc.PublishAccountEvent(context.Background(), domain.NotificationEvent{RecipientAddress: " u@x.com ", Subject: "s", Body: "b"}, "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := pub.published()
	if len(got) != 1 || got[0].Kind != domain.NotificationAccountEvent || got[0].RecipientAddress != "u@x.com" {
		t.Fatalf("unexpected published events %+v", got)
	}

	pub.err = errUnavailable
	err = svc.PublishAccountEvent(context.Background(), domain.NotificationEvent{RecipientAddress: "u@x.com", Subject: "s", Body: "b"}, "")
	if de := apperrors.ToDomainError(err); de.HTTPStatus != 500 {
		t.Fatalf("expected 500, got %+v", de)
	}
}

// An intake submission travels through assignment, the topic envelope and the
// mailer to a single email for the assigned operator.
func TestPipeline_SubmitToEmail(t *testing.T) {
	q := &fakeQueue{}
	intake := NewIntakeService(IntakeDependencies{Queue: q, Clock: fixedClock})
	msgID, err := intake.Submit(context.Background(), ConcernSubmission{
		SubmitterEmail: "a@x.com", BookingRef: "B1", ConcernText: "brake noise", Type: strPtr("brake"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	af := newAssignmentFixture(domain.Operator{ID: "op1", Email: strPtr("op1@y.com")})
	msg := draftMessage(t, validDraft())
	msg.ID, msg.Body = msgID, q.bodies[0]

	c, err := af.svc.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if c.AssignedOperatorID != "op1" || c.Status != domain.ConcernStatusPending || *c.Type != "brake" {
		t.Fatalf("unexpected concern %+v", c)
	}

	mf := newMailerFixture(t)
	for _, ev := range af.notifier.published() {
		if err := mf.svc.HandleDelivery(context.Background(), wrapped(t, ev, true)); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if len(mf.email.sent) != 1 || mf.email.sent[0].RecipientAddress != "op1@y.com" {
		t.Fatalf("expected one email to op1, got %+v", mf.email.sent)
	}
}
