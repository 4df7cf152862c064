package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ConcernStatus enumerates lifecycle states for concerns.
type ConcernStatus string

const (
	ConcernStatusPending    ConcernStatus = "pending"
	ConcernStatusInProgress ConcernStatus = "in_progress"
	ConcernStatusResolved   ConcernStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s ConcernStatus) Valid() bool {
	switch s {
	case ConcernStatusPending, ConcernStatusInProgress, ConcernStatusResolved:
		return true
	}
	return false
}

// Concern is the persisted assignment record for a rider-submitted issue.
// Only Status may change after the record is stored, and never from here.
type Concern struct {
	ID                    string        `json:"concern_id"`
	SubmitterEmail        string        `json:"submitter_email"`
	BookingRef            string        `json:"booking_ref"`
	ConcernText           string        `json:"concern_text"`
	Type                  *string       `json:"type"`
	SubmittedAt           time.Time     `json:"submitted_at"`
	AssignedOperatorID    string        `json:"assigned_operator_id"`
	AssignedOperatorEmail *string       `json:"assigned_operator_email"`
	AssignedOperatorName  *string       `json:"assigned_operator_name"`
	Status                ConcernStatus `json:"status"`
	CorrelationID         *string       `json:"correlation_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// ConcernDraft is the intake queue message body.
type ConcernDraft struct {
	SubmitterEmail string    `json:"submitterEmail"`
	BookingRef     string    `json:"bookingRef"`
	ConcernText    string    `json:"concernText"`
	Type           *string   `json:"type"`
	SubmittedAt    time.Time `json:"submittedAt"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CorrelationID  string    `json:"correlationId,omitempty"`
}

// UnmarshalJSON accepts both the canonical field names and the short names
// (email, concern, timestamp) used by older producers.
func (d *ConcernDraft) UnmarshalJSON(data []byte) error {
	type canonical ConcernDraft
	var aux struct {
		canonical
		Email     string     `json:"email"`
		Concern   string     `json:"concern"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = ConcernDraft(aux.canonical)
	if d.SubmitterEmail == "" {
		d.SubmitterEmail = aux.Email
	}
	if d.ConcernText == "" {
		d.ConcernText = aux.Concern
	}
	if d.SubmittedAt.IsZero() && aux.Timestamp != nil {
		d.SubmittedAt = *aux.Timestamp
	}
	return nil
}

// Normalize trims free-text fields and collapses an empty type to nil.
func (d *ConcernDraft) Normalize() {
	d.SubmitterEmail = strings.TrimSpace(d.SubmitterEmail)
	d.BookingRef = strings.TrimSpace(d.BookingRef)
	d.ConcernText = strings.TrimSpace(d.ConcernText)
	d.IdempotencyKey = strings.TrimSpace(d.IdempotencyKey)
	if d.Type != nil {
		t := strings.TrimSpace(*d.Type)
		if t == "" {
			d.Type = nil
		} else {
			d.Type = &t
		}
	}
}
