package dto

import "time"

// ConcernSubmitRequest accepts both the canonical and the short field names.
type ConcernSubmitRequest struct {
	Email          string  `json:"email"`
	SubmitterEmail string  `json:"submitterEmail"`
	BookingRef     string  `json:"bookingRef"`
	Concern        string  `json:"concern"`
	ConcernText    string  `json:"concernText"`
	Type           *string `json:"type"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

// Submitter returns the rider email under whichever name was sent.
func (r ConcernSubmitRequest) Submitter() string {
	if r.SubmitterEmail != "" {
		return r.SubmitterEmail
	}
	return r.Email
}

// Text returns the concern text under whichever name was sent.
func (r ConcernSubmitRequest) Text() string {
	if r.ConcernText != "" {
		return r.ConcernText
	}
	return r.Concern
}

// ConcernSubmitResponse acknowledges an accepted submission.
type ConcernSubmitResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// ConcernResponse is the stored record as returned to operator tooling.
type ConcernResponse struct {
	ConcernID             string    `json:"concern_id"`
	SubmitterEmail        string    `json:"submitter_email"`
	BookingRef            string    `json:"booking_ref"`
	ConcernText           string    `json:"concern_text"`
	Type                  *string   `json:"type"`
	SubmittedAt           time.Time `json:"submitted_at"`
	AssignedOperatorID    string    `json:"assigned_operator_id"`
	AssignedOperatorEmail *string   `json:"assigned_operator_email"`
	AssignedOperatorName  *string   `json:"assigned_operator_name"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
}
