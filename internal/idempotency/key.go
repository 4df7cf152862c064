package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dalscooter/concern-service/internal/domain"
)

type KeySource string

const (
	KeyFromCaller    KeySource = "caller_key"
	KeyFromMessageID KeySource = "message_id"
	KeyRandom        KeySource = "random"
)

// ConcernID returns the concern id for a draft and the source used.
//   - A caller-supplied idempotency key wins; it is scoped to the submitter so
//     two riders cannot collide on the same key. Resubmissions of the same
//     logical concern therefore map to one id even across separate messages.
//   - Otherwise the queue message id, which is stable across redeliveries.
//   - Otherwise a random suffix, accepting duplicate risk on redelivery.
func ConcernID(d *domain.ConcernDraft, messageID string) (string, KeySource) {
	if d.IdempotencyKey != "" {
		composite := strings.ToLower(d.SubmitterEmail) + "|" + d.IdempotencyKey
		return "ck-" + digest(composite, 12), KeyFromCaller
	}
	millis := d.SubmittedAt.UnixMilli()
	if messageID != "" {
		return fmt.Sprintf("%d-%s", millis, digest(messageID, 6)), KeyFromMessageID
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", millis, suffix), KeyRandom
}

// digest returns the first n bytes of the SHA-256 of s, hex encoded.
func digest(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:n])
}
