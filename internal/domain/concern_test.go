package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConcernDraftUnmarshalAliases(t *testing.T) {
	raw := `{"email":"a@x.com","bookingRef":"B1","concern":"brake noise","type":"brake","timestamp":"2025-07-01T10:00:00Z"}`

	var d ConcernDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.SubmitterEmail != "a@x.com" {
		t.Errorf("expected submitter email from alias, got %q", d.SubmitterEmail)
	}
	if d.ConcernText != "brake noise" {
		t.Errorf("expected concern text from alias, got %q", d.ConcernText)
	}
	want := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	if !d.SubmittedAt.Equal(want) {
		t.Errorf("expected submittedAt %v, got %v", want, d.SubmittedAt)
	}
	if d.Type == nil || *d.Type != "brake" {
		t.Errorf("expected type brake, got %v", d.Type)
	}
}

func TestConcernDraftCanonicalWins(t *testing.T) {
	raw := `{"submitterEmail":"rider@x.com","email":"other@x.com","bookingRef":"B1","concernText":"flat","concern":"ignored"}`

	var d ConcernDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.SubmitterEmail != "rider@x.com" || d.ConcernText != "flat" {
		t.Fatalf("canonical fields should take precedence, got %+v", d)
	}
}

func TestValidateDraft(t *testing.T) {
	blank := "   "
	cases := []struct {
		name   string
		draft  ConcernDraft
		fields []string
	}{
		{
			name:  "valid",
			draft: ConcernDraft{SubmitterEmail: "a@x.com", BookingRef: "B1", ConcernText: "brake noise"},
		},
		{
			name:   "missing concern text",
			draft:  ConcernDraft{SubmitterEmail: "a@x.com", BookingRef: "B1", ConcernText: "  "},
			fields: []string{"concernText"},
		},
		{
			name:   "everything missing",
			draft:  ConcernDraft{},
			fields: []string{"submitterEmail", "bookingRef", "concernText"},
		},
		{
			name:  "email only needs to be present",
			draft: ConcernDraft{SubmitterEmail: "rider", BookingRef: "B1", ConcernText: "x"},
		},
		{
			name:  "blank type collapses",
			draft: ConcernDraft{SubmitterEmail: "a@x.com", BookingRef: "B1", ConcernText: "x", Type: &blank},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.draft
			d.Normalize()
			errs := ValidateDraft(&d)
			if len(errs) != len(tc.fields) {
				t.Fatalf("expected %d errors, got %v", len(tc.fields), errs)
			}
			for i, f := range tc.fields {
				if errs[i].Field != f {
					t.Errorf("error %d: expected field %s, got %s", i, f, errs[i].Field)
				}
			}
			if tc.name == "blank type collapses" && d.Type != nil {
				t.Errorf("expected blank type to normalize to nil")
			}
		})
	}
}

func TestValidateNotification(t *testing.T) {
	if errs := ValidateNotification(NotificationEvent{RecipientAddress: "a@x.com", Subject: "s", Body: "b"}); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if errs := ValidateNotification(NotificationEvent{Subject: "s"}); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
