package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalscooter/concern-service/internal/domain"
)

// MaxEnvelopeDepth bounds how many wrapper layers Unwrap will peel.
const MaxEnvelopeDepth = 4

var (
	// ErrIncompleteEvent means the innermost payload lacks a recipient,
	// subject or body.
	ErrIncompleteEvent = errors.New("notification event incomplete")
	// ErrUndecodable means a layer was not a JSON object.
	ErrUndecodable = errors.New("notification payload undecodable")
	// ErrTooDeep means the payload nests more envelopes than MaxEnvelopeDepth.
	ErrTooDeep = errors.New("notification envelope nesting too deep")
)

// LayerKind tags one level of a possibly wrapped payload.
type LayerKind string

const (
	LayerRawEvent LayerKind = "raw_event"
	LayerQueue    LayerKind = "queue_envelope"
	LayerPubSub   LayerKind = "pubsub_envelope"
)

// QueueEnvelope is the record shape a queue delivers: the payload travels
// serialized in Body.
type QueueEnvelope struct {
	MessageID string `json:"messageId,omitempty"`
	Body      string `json:"body"`
}

// PubSubEnvelope is the notification shape a topic fans out: the payload
// travels serialized in Message.
type PubSubEnvelope struct {
	Type      string    `json:"Type"`
	MessageID string    `json:"MessageId"`
	Topic     string    `json:"Topic"`
	Subject   string    `json:"Subject,omitempty"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}

// Layer is one decoded level. Event is set for LayerRawEvent, Payload for the
// envelope kinds.
type Layer struct {
	Kind    LayerKind
	Event   domain.NotificationEvent
	Payload []byte
}

// Unwrapped is the result of peeling every envelope layer.
type Unwrapped struct {
	Event  domain.NotificationEvent
	Layers []LayerKind
}

// rawEvent accepts the recipient under either name.
type rawEvent struct {
	RecipientAddress string                  `json:"recipientAddress"`
	Email            string                  `json:"email"`
	Subject          string                  `json:"subject"`
	Body             string                  `json:"body"`
	Kind             domain.NotificationKind `json:"kind"`
	DedupKey         string                  `json:"dedupKey"`
}

// DecodeLayer classifies a single level of raw.
func DecodeLayer(raw []byte) (Layer, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Layer{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	if msg, ok := stringField(fields, "Message"); ok {
		return Layer{Kind: LayerPubSub, Payload: []byte(msg)}, nil
	}
	_, hasSubject := fields["subject"]
	_, hasRecipient := fields["recipientAddress"]
	_, hasEmail := fields["email"]
	if body, ok := stringField(fields, "body"); ok && !hasSubject && !hasRecipient && !hasEmail {
		return Layer{Kind: LayerQueue, Payload: []byte(body)}, nil
	}

	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Layer{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	recipient := ev.RecipientAddress
	if recipient == "" {
		recipient = ev.Email
	}
	return Layer{Kind: LayerRawEvent, Event: domain.NotificationEvent{
		RecipientAddress: strings.TrimSpace(recipient),
		Subject:          ev.Subject,
		Body:             ev.Body,
		Kind:             ev.Kind,
		DedupKey:         ev.DedupKey,
	}}, nil
}

// Unwrap peels exactly as many envelope layers as raw carries and returns the
// event inside. The event must carry recipient, subject and body.
func Unwrap(raw []byte) (Unwrapped, error) {
	var layers []LayerKind
	for depth := 0; depth <= MaxEnvelopeDepth; depth++ {
		layer, err := DecodeLayer(raw)
		if err != nil {
			return Unwrapped{Layers: layers}, err
		}
		if layer.Kind == LayerRawEvent {
			if !layer.Event.Complete() || strings.TrimSpace(layer.Event.Subject) == "" || strings.TrimSpace(layer.Event.Body) == "" {
				return Unwrapped{Event: layer.Event, Layers: layers}, ErrIncompleteEvent
			}
			return Unwrapped{Event: layer.Event, Layers: layers}, nil
		}
		layers = append(layers, layer.Kind)
		raw = layer.Payload
	}
	return Unwrapped{Layers: layers}, ErrTooDeep
}

// WrapPubSub serializes event inside a topic envelope.
func WrapPubSub(event domain.NotificationEvent, topic, messageID string, at time.Time) ([]byte, error) {
	inner, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(PubSubEnvelope{
		Type:      "Notification",
		MessageID: messageID,
		Topic:     topic,
		Subject:   event.Subject,
		Message:   string(inner),
		Timestamp: at.UTC(),
	})
}

// WrapQueue serializes payload inside a queue record envelope.
func WrapQueue(payload []byte, messageID string) ([]byte, error) {
	return json.Marshal(QueueEnvelope{MessageID: messageID, Body: string(payload)})
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
