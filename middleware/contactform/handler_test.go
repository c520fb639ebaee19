package contactform

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"contact-gateway/middleware/contactform/application"
	"contact-gateway/middleware/contactform/domain"
	"contact-gateway/middleware/contactform/infra"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []domain.Mail
}

func (m *fakeMailer) Send(_ context.Context, msg domain.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	handler http.Handler
	mailer  *fakeMailer
	stats   *infra.MemoryStatsStore
	audit   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auditPath := filepath.Join(t.TempDir(), "contact.log")
	audit, err := infra.NewFileAuditLog(auditPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mailer := &fakeMailer{}
	stats := infra.NewMemoryStatsStore()

	p := &application.Pipeline{
		TrustedOrigins: []string{"corner-cafe.example"},
		Limiter: application.Limiter{
			Store:        infra.NewMemoryLedger(),
			MaxPerWindow: 3,
			Window:       time.Minute,
		},
		Validator: application.NewValidator(application.ValidatorConfig{
			Categories: []application.Category{{Key: "reservation", Label: "Reservation"}},
		}),
		Composer: application.MailComposer{To: "owner@corner-cafe.example", From: "noreply@corner-cafe.example"},
		Mailer:   mailer,
		Audit:    audit,
		Stats:    stats,
	}
	return &testEnv{
		handler: Handler(Options{Pipeline: p, TrustXForwardedFor: true, MaxBodyBytes: 4 << 10}),
		mailer:  mailer,
		stats:   stats,
		audit:   auditPath,
	}
}

func validForm() url.Values {
	return url.Values{
		"name":    {"Hanako Yamada"},
		"email":   {"hanako@example.com"},
		"message": {"Do you have vegetarian options?"},
		"website": {""},
	}
}

func postForm(h http.Handler, form url.Values, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "http://corner-cafe.example/contact", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Origin", "https://corner-cafe.example")
	r.RemoteAddr = "203.0.113.7:40000"
	for _, m := range mutate {
		m(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var body response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return body
}

func (e *testEnv) auditOutcomes(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(e.audit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			t.Fatalf("malformed audit line %q", line)
		}
		out = append(out, fields[2])
	}
	return out
}

func TestHandler_Success(t *testing.T) {
	env := newTestEnv(t)

	w := postForm(env.handler, validForm())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if !body.Success || body.Message == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected one mail, got %d", env.mailer.count())
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "SUCCESS" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	w := postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Set("X-Request-ID", "abc-123")
	})
	want := map[string]string{
		"Content-Type":           "application/json; charset=utf-8",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Cache-Control":          "no-store",
		"X-Request-ID":           "abc-123",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Fatalf("header %s: expected %q, got %q", k, v, got)
		}
	}
}

func TestHandler_GeneratesRequestIDWhenMissingOrInvalid(t *testing.T) {
	env := newTestEnv(t)

	w := postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Set("X-Request-ID", "bad id\twith tab")
	})
	id := w.Header().Get("X-Request-ID")
	if id == "" || strings.ContainsAny(id, " \t") {
		t.Fatalf("expected generated request id, got %q", id)
	}
}

func TestHandler_EmptyMessageIsValidationError(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("message", "")

	w := postForm(env.handler, form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decode(t, w); body.Success {
		t.Fatalf("expected success=false")
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_HoneypotGetsSuccessWithoutMail(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("website", "spam")

	w := postForm(env.handler, form)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode(t, w); !body.Success {
		t.Fatalf("expected success=true for bots")
	}
	if env.mailer.count() != 0 {
		t.Fatalf("expected no mail for bots")
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "HONEYPOT" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_FourthPostIsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		if w := postForm(env.handler, validForm()); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := postForm(env.handler, validForm())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Fatalf("expected Retry-After >= 1, got %q", ra)
	}
	if env.stats.Count(domain.OutcomeRateLimited) != 1 {
		t.Fatalf("expected one RATE_LIMITED stat")
	}

	// outro IP (via XFF) continua livre
	w = postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "198.51.100.1")
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected other identity to pass, got %d", w.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodGet, "http://corner-cafe.example/contact", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", got)
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "METHOD_NOT_ALLOWED" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_BadOrigin(t *testing.T) {
	env := newTestEnv(t)

	w := postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Set("Origin", "https://evil.example")
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if body := decode(t, w); body.Success || body.Message != "Forbidden" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandler_RefererFallbackAndMissingOrigin(t *testing.T) {
	env := newTestEnv(t)

	w := postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Del("Origin")
		r.Header.Set("Referer", "https://corner-cafe.example/contact.html")
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected Referer to satisfy origin check, got %d", w.Code)
	}

	w = postForm(env.handler, validForm(), func(r *http.Request) {
		r.Header.Del("Origin")
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without Origin/Referer, got %d", w.Code)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("message", strings.Repeat("x", 8<<10))

	w := postForm(env.handler, form)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if body := decode(t, w); body.Success {
		t.Fatalf("expected success=false")
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_MultipartAndFieldAliases(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"name":         "Hanako Yamada",
		"email":        "hanako@example.com",
		"message":      "Table for two, please.",
		"inquiry_type": "reservation",
		"tel":          "03-1234-5678",
		"privacy":      "on",
	} {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "http://corner-cafe.example/contact", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Origin", "https://corner-cafe.example")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected one mail")
	}
	m := env.mailer.sent[0]
	if !strings.Contains(m.Subject, "Reservation") || !strings.Contains(m.Body, "Phone: 03-1234-5678") {
		t.Fatalf("expected aliased fields in mail, got subject %q body:\n%s", m.Subject, m.Body)
	}
}

func TestHandler_UnknownCategoryRejected(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("category", "free-money")

	if w := postForm(env.handler, form); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandler_MailBodyHasNoEntities(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("message", `Fish & chips <3 "today"`)

	if w := postForm(env.handler, form); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := env.mailer.sent[0].Body; !strings.Contains(body, `Fish & chips <3 "today"`) {
		t.Fatalf("expected raw text in mail body, got:\n%s", body)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.Outcome]int{
		domain.OutcomeSuccess:          http.StatusOK,
		domain.OutcomeHoneypot:         http.StatusOK,
		domain.OutcomeMailSkipped:      http.StatusOK,
		domain.OutcomeValidationError:  http.StatusBadRequest,
		domain.OutcomeBadOrigin:        http.StatusForbidden,
		domain.OutcomeMethodNotAllowed: http.StatusMethodNotAllowed,
		domain.OutcomeRateLimited:      http.StatusTooManyRequests,
		domain.OutcomeMailFailed:       http.StatusInternalServerError,
		domain.OutcomeInternalError:    http.StatusInternalServerError,
	}
	for o, want := range cases {
		if got := StatusFor(o); got != want {
			t.Fatalf("StatusFor(%s): expected %d, got %d", o, want, got)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	if got := retryAfterSeconds(0); got != "1" {
		t.Fatalf("expected minimum 1, got %q", got)
	}
	if got := retryAfterSeconds(1500 * time.Millisecond); got != "2" {
		t.Fatalf("expected rounding up, got %q", got)
	}
}

func TestHandler_BadOriginWinsOverBodyErrors(t *testing.T) {
	env := newTestEnv(t)
	huge := validForm()
	huge.Set("message", strings.Repeat("x", 8<<10))

	w := postForm(env.handler, huge, func(r *http.Request) {
		r.Header.Set("Origin", "https://evil.example")
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("oversized body from bad origin: expected 403, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "http://corner-cafe.example/contact", strings.NewReader("%zz=%%"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("malformed body without origin: expected 403, got %d", w.Code)
	}

	if got := env.auditOutcomes(t); len(got) != 2 || got[0] != "BAD_ORIGIN" || got[1] != "BAD_ORIGIN" {
		t.Fatalf("unexpected audit outcomes: %v", got)
	}
}

func TestHandler_CancelledRequestIsStillAudited(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := postForm(env.handler, validForm(), func(r *http.Request) {
		*r = *r.WithContext(ctx)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := env.auditOutcomes(t); len(got) != 1 || got[0] != "SUCCESS" {
		t.Fatalf("expected audit record despite cancelled context, got %v", got)
	}
}
