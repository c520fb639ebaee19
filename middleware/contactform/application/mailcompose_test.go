package application

import (
	"strings"
	"testing"
	"time"

	"contact-gateway/middleware/contactform/domain"
)

func TestMailComposer_BuildsFromPlainView(t *testing.T) {
	v := NewValidator(ValidatorConfig{Categories: []Category{{Key: "reservation", Label: "Reservation & Events"}}})
	req := validRequest()
	req.Name = `Tom "Tommy" <Lee>`
	req.Message = "Table for 2 & a high chair, please."
	req.HasCategory = true
	req.Category = "reservation"
	req.Phone = "090-1234-5678"
	req.VisitDate = "2026-04-01"

	sub, err := v.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := MailComposer{To: "owner@example.com", From: "noreply@example.com", SiteName: "Corner Cafe", Location: time.UTC}
	rc := domain.RequestContext{Identity: "198.51.100.4", ReceivedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	m := c.Compose(sub, rc)

	if m.Subject != "[Corner Cafe] Contact: Reservation & Events" {
		t.Fatalf("unexpected subject %q", m.Subject)
	}
	if m.To != "owner@example.com" || m.From != "noreply@example.com" || m.ReplyTo != "hanako@example.com" {
		t.Fatalf("unexpected addressing: %+v", m)
	}
	for _, want := range []string{
		`Name: Tom "Tommy" <Lee>`,
		"Phone: 090-1234-5678",
		"Inquiry type: Reservation & Events",
		"Preferred date: 2026-04-01",
		"Sent at: 2026-03-01 09:30:00 UTC",
		"IP address: 198.51.100.4",
		"Table for 2 & a high chair, please.",
	} {
		if !strings.Contains(m.Body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, m.Body)
		}
	}
	if strings.Contains(m.Body, "&amp;") || strings.Contains(m.Body, "&#34;") || strings.Contains(m.Body, "&lt;") {
		t.Fatalf("entity-encoded text leaked into mail body:\n%s", m.Body)
	}
}

func TestMailComposer_SubjectFallsBackToName(t *testing.T) {
	sub, err := Validator{}.Validate(validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := MailComposer{SubjectPrefix: "Inquiry from "}.Compose(sub, domain.RequestContext{})
	if m.Subject != "Inquiry from Hanako Yamada" {
		t.Fatalf("unexpected subject %q", m.Subject)
	}
	if strings.Contains(m.Body, "Phone:") {
		t.Fatalf("expected optional fields omitted")
	}
}
