package application

import (
	"errors"
	"strings"
	"testing"

	"contact-gateway/middleware/contactform/domain"
)

func validRequest() domain.SubmissionRequest {
	return domain.SubmissionRequest{
		Name:    "Hanako Yamada",
		Email:   "hanako@example.com",
		Message: "I would like to book a table for four.",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *domain.ValidationError, got %T (%v)", err, err)
	}
	return ve.Field
}

func TestValidator_AcceptsValidRequest(t *testing.T) {
	sub, err := Validator{}.Validate(validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := sub.Plain()
	if p.Name != "Hanako Yamada" || p.Email != "hanako@example.com" {
		t.Fatalf("unexpected plain fields: %+v", p)
	}
}

func TestValidator_RequiredFields(t *testing.T) {
	cases := map[string]func(*domain.SubmissionRequest){
		"name":    func(r *domain.SubmissionRequest) { r.Name = "  " },
		"email":   func(r *domain.SubmissionRequest) { r.Email = "" },
		"message": func(r *domain.SubmissionRequest) { r.Message = "\r\n" },
	}
	for want, mutate := range cases {
		req := validRequest()
		mutate(&req)
		_, err := Validator{}.Validate(req)
		if got := fieldOf(t, err); got != want {
			t.Fatalf("expected field %q, got %q", want, got)
		}
	}
}

func TestValidator_FirstFailingFieldWins(t *testing.T) {
	req := domain.SubmissionRequest{Name: "", Email: "not-an-email", Message: ""}
	_, err := Validator{}.Validate(req)
	if got := fieldOf(t, err); got != "name" {
		t.Fatalf("expected name to be reported first, got %q", got)
	}
}

func TestValidator_LengthsCountRunes(t *testing.T) {
	v := NewValidator(ValidatorConfig{NameMax: 5})

	req := validRequest()
	req.Name = strings.Repeat("あ", 5)
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("expected 5 runes to fit, got %v", err)
	}

	req.Name = strings.Repeat("あ", 6)
	_, err := v.Validate(req)
	if got := fieldOf(t, err); got != "name" {
		t.Fatalf("expected name too long, got %q", got)
	}
}

func TestValidator_DefaultMessageMax(t *testing.T) {
	req := validRequest()
	req.Message = strings.Repeat("x", DefaultMessageMax+1)
	_, err := Validator{}.Validate(req)
	if got := fieldOf(t, err); got != "message" {
		t.Fatalf("expected message too long, got %q", got)
	}
}

func TestValidator_RejectsBadEmails(t *testing.T) {
	bad := []string{
		"plainaddress",
		"@example.com",
		"user@localhost",
		"user@example..com",
		"user@.example.com",
		"Name <user@example.com>",
		strings.Repeat("a", 65) + "@example.com",
	}
	for _, e := range bad {
		req := validRequest()
		req.Email = e
		_, err := Validator{}.Validate(req)
		if err == nil {
			t.Fatalf("expected %q to be rejected", e)
		}
		if got := fieldOf(t, err); got != "email" {
			t.Fatalf("expected email error for %q, got %q", e, got)
		}
	}
}

func TestValidator_StripsCRLFFromHeaderFields(t *testing.T) {
	req := validRequest()
	req.Name = "Mallory\r\nBcc: victim@example.com"
	req.Email = "mallory@example.com\r\n"
	req.Message = "line one\r\nline two\nline three"

	sub, err := Validator{}.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := sub.Plain()
	for _, v := range []string{p.Name, p.Email, p.Message} {
		if strings.ContainsAny(v, "\r\n") {
			t.Fatalf("expected no CR/LF, got %q", v)
		}
	}
	if p.Name != "MalloryBcc: victim@example.com" {
		t.Fatalf("unexpected name: %q", p.Name)
	}
	if p.Message != "line one line two line three" {
		t.Fatalf("unexpected message: %q", p.Message)
	}
}

func TestValidator_PreserveMessageLineBreaks(t *testing.T) {
	v := NewValidator(ValidatorConfig{PreserveMessageLineBreaks: true})
	req := validRequest()
	req.Message = "first\r\nsecond\rthird"

	sub, err := v.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sub.Plain().Message; got != "first\nsecond\nthird" {
		t.Fatalf("expected normalized line breaks, got %q", got)
	}
}

func TestValidator_HTMLAndPlainViews(t *testing.T) {
	req := validRequest()
	req.Name = `O'Brien <b>`
	req.Message = `5 < 6 & "quoted"`

	sub, err := Validator{}.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sub.Plain().Message; got != req.Message {
		t.Fatalf("plain view must match input, got %q", got)
	}
	if got := sub.Plain().Name; got != req.Name {
		t.Fatalf("plain view must match input, got %q", got)
	}

	h := sub.HTML()
	if h.Name != "O&#39;Brien &lt;b&gt;" {
		t.Fatalf("unexpected escaped name: %q", h.Name)
	}
	if h.Message != "5 &lt; 6 &amp; &#34;quoted&#34;" {
		t.Fatalf("unexpected escaped message: %q", h.Message)
	}
}

func TestValidator_Category(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		Categories: []Category{
			{Key: "reservation", Label: "Reservation"},
			{Key: "other"},
		},
	})

	req := validRequest()
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("absent optional category should pass, got %v", err)
	}

	req.HasCategory = true
	req.Category = "reservation"
	sub, err := v.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Plain().CategoryLabel != "Reservation" {
		t.Fatalf("expected label resolved, got %q", sub.Plain().CategoryLabel)
	}

	req.Category = "other"
	sub, err = v.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Plain().CategoryLabel != "other" {
		t.Fatalf("expected key as fallback label, got %q", sub.Plain().CategoryLabel)
	}

	req.Category = "<script>"
	if got := fieldOf(t, mustFail(t, v, req)); got != "category" {
		t.Fatalf("expected unknown category rejected, got %q", got)
	}

	req.Category = ""
	if got := fieldOf(t, mustFail(t, v, req)); got != "category" {
		t.Fatalf("expected present-but-empty category rejected, got %q", got)
	}
}

func TestValidator_RequireCategory(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		Categories:      []Category{{Key: "general", Label: "General"}},
		RequireCategory: true,
	})
	if got := fieldOf(t, mustFail(t, v, validRequest())); got != "category" {
		t.Fatalf("expected category required, got %q", got)
	}
}

func TestValidator_Phone(t *testing.T) {
	good := []string{"", "+81 (03) 1234-5678", "090-1234-5678"}
	for _, p := range good {
		req := validRequest()
		req.Phone = p
		if _, err := (Validator{}).Validate(req); err != nil {
			t.Fatalf("expected phone %q accepted, got %v", p, err)
		}
	}

	bad := []string{"call me", "123;DROP", strings.Repeat("1", 31)}
	for _, p := range bad {
		req := validRequest()
		req.Phone = p
		if got := fieldOf(t, mustFail(t, Validator{}, req)); got != "phone" {
			t.Fatalf("expected phone %q rejected, got %q", p, got)
		}
	}
}

func TestValidator_VisitDate(t *testing.T) {
	req := validRequest()
	req.VisitDate = "2026-04-01"
	sub, err := Validator{}.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Plain().VisitDate != "2026-04-01" {
		t.Fatalf("unexpected date: %q", sub.Plain().VisitDate)
	}

	for _, d := range []string{"2026-13-01", "01/04/2026", "tomorrow"} {
		req.VisitDate = d
		if got := fieldOf(t, mustFail(t, Validator{}, req)); got != "visit_date" {
			t.Fatalf("expected date %q rejected, got %q", d, got)
		}
	}
}

func TestValidator_Consent(t *testing.T) {
	req := validRequest()
	req.HasConsent = true
	req.Consent = ""
	if got := fieldOf(t, mustFail(t, Validator{}, req)); got != "consent" {
		t.Fatalf("expected consent required when present, got %q", got)
	}

	req.Consent = "on"
	sub, err := Validator{}.Validate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sub.Plain().Consent {
		t.Fatalf("expected consent recorded")
	}

	v := NewValidator(ValidatorConfig{RequireConsent: true})
	if got := fieldOf(t, mustFail(t, v, validRequest())); got != "consent" {
		t.Fatalf("expected consent required by config, got %q", got)
	}
}

func TestValidator_MessagesNeverEchoInput(t *testing.T) {
	req := validRequest()
	req.Email = "<script>alert(1)</script>"
	err := mustFail(t, Validator{}, req)
	if strings.Contains(err.Error(), "script") {
		t.Fatalf("error message must not echo input: %q", err.Error())
	}
}

func mustFail(t *testing.T, v Validator, req domain.SubmissionRequest) error {
	t.Helper()
	_, err := v.Validate(req)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}
