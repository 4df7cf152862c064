package domain

import (
	"fmt"
	"strings"
)

const (
	MaxEmailLen       = 320
	MaxBookingRefLen  = 128
	MaxConcernTextLen = 4000
	MaxTypeLen        = 64
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidateDraft checks a normalized draft.
func ValidateDraft(d *ConcernDraft) []FieldError {
	var errs []FieldError

	if d.SubmitterEmail == "" {
		errs = append(errs, FieldError{"submitterEmail", "required"})
	} else if len(d.SubmitterEmail) > MaxEmailLen {
		errs = append(errs, FieldError{"submitterEmail", fmt.Sprintf("max length %d", MaxEmailLen)})
	}

	if d.BookingRef == "" {
		errs = append(errs, FieldError{"bookingRef", "required"})
	} else if len(d.BookingRef) > MaxBookingRefLen {
		errs = append(errs, FieldError{"bookingRef", fmt.Sprintf("max length %d", MaxBookingRefLen)})
	}

	if d.ConcernText == "" {
		errs = append(errs, FieldError{"concernText", "required"})
	} else if len(d.ConcernText) > MaxConcernTextLen {
		errs = append(errs, FieldError{"concernText", fmt.Sprintf("max length %d", MaxConcernTextLen)})
	}

	if d.Type != nil && len(*d.Type) > MaxTypeLen {
		errs = append(errs, FieldError{"type", fmt.Sprintf("max length %d", MaxTypeLen)})
	}

	return errs
}

// ValidateNotification checks the three deliverable fields of an event.
func ValidateNotification(e NotificationEvent) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(e.RecipientAddress) == "" {
		errs = append(errs, FieldError{"email", "required"})
	}
	if strings.TrimSpace(e.Subject) == "" {
		errs = append(errs, FieldError{"subject", "required"})
	}
	if strings.TrimSpace(e.Body) == "" {
		errs = append(errs, FieldError{"body", "required"})
	}
	return errs
}
