package domain

// NotificationKind tags the producer of a notification.
type NotificationKind string

const (
	NotificationConcernAssigned NotificationKind = "concern_assigned"
	NotificationAccountEvent    NotificationKind = "account_event"
)

// NotificationEvent is a fully rendered message ready for delivery.
type NotificationEvent struct {
	RecipientAddress string           `json:"recipientAddress"`
	Subject          string           `json:"subject"`
	Body             string           `json:"body"`
	Kind             NotificationKind `json:"kind,omitempty"`
	// DedupKey lets downstream senders drop redelivered copies.
	DedupKey string `json:"dedupKey,omitempty"`
}

// Complete reports whether all deliverable fields are present.
func (e NotificationEvent) Complete() bool {
	return e.RecipientAddress != "" && e.Subject != "" && e.Body != ""
}
