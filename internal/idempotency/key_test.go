package idempotency

import (
	"strings"
	"testing"
	"time"

	"github.com/dalscooter/concern-service/internal/domain"
)

func TestConcernID_CallerKeyIgnoresMessageAndTime(t *testing.T) {
	a := &domain.ConcernDraft{SubmitterEmail: "A@x.com", IdempotencyKey: "k1", SubmittedAt: time.Unix(100, 0)}
	b := &domain.ConcernDraft{SubmitterEmail: "a@x.com", IdempotencyKey: "k1", SubmittedAt: time.Unix(200, 0)}

	idA, src := ConcernID(a, "1-0")
	idB, _ := ConcernID(b, "2-0")
	if src != KeyFromCaller {
		t.Fatalf("expected caller key source, got %s", src)
	}
	if idA != idB {
		t.Fatalf("expected same id for same caller key, got %s and %s", idA, idB)
	}

	other := &domain.ConcernDraft{SubmitterEmail: "b@x.com", IdempotencyKey: "k1"}
	if idOther, _ := ConcernID(other, ""); idOther == idA {
		t.Fatal("caller keys must be scoped to the submitter")
	}
}

func TestConcernID_MessageIDIsStable(t *testing.T) {
	d := &domain.ConcernDraft{SubmitterEmail: "a@x.com", SubmittedAt: time.UnixMilli(1751364000123)}

	first, src := ConcernID(d, "1751364000124-0")
	second, _ := ConcernID(d, "1751364000124-0")
	if src != KeyFromMessageID {
		t.Fatalf("expected message id source, got %s", src)
	}
	if first != second {
		t.Fatalf("expected redelivery to reproduce id, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "1751364000123-") || len(first) != len("1751364000123-")+12 {
		t.Fatalf("unexpected id format %s", first)
	}
	if third, _ := ConcernID(d, "1751364000999-0"); third == first {
		t.Fatal("different messages must not collide")
	}
}

func TestConcernID_RandomFallback(t *testing.T) {
	d := &domain.ConcernDraft{SubmittedAt: time.UnixMilli(5)}
	a, src := ConcernID(d, "")
	b, _ := ConcernID(d, "")
	if src != KeyRandom {
		t.Fatalf("expected random source, got %s", src)
	}
	if a == b {
		t.Fatal("random ids must differ")
	}
}
