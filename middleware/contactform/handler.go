package contactform

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"contact-gateway/middleware/contactform/application"
	"contact-gateway/middleware/contactform/domain"

	"github.com/google/uuid"
)

const (
	DefaultHoneypotField = "website"
	DefaultMaxBodyBytes  = 64 << 10

	headerRequestID = "X-Request-ID"

	msgBodyTooLarge = "Your submission is too large."
	msgBadForm      = "The form data could not be read."
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)

// Nomes aceitos para cada campo; o primeiro presente vence.
var (
	categoryFields = []string{"category", "inquiry_type"}
	phoneFields    = []string{"phone", "tel"}
	consentFields  = []string{"consent", "privacy"}
)

type Options struct {
	Pipeline           *application.Pipeline
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	HoneypotField      string
	MaxBodyBytes       int64
	Logger             *slog.Logger
	Now                func() time.Time
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler expõe o pipeline como endpoint POST. Qualquer outro método cai em
// 405 (o pipeline registra METHOD_NOT_ALLOWED).
func Handler(opts Options) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	if opts.HoneypotField == "" {
		opts.HoneypotField = DefaultHoneypotField
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := opts.Pipeline

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := domain.RequestContext{
			RequestID:  requestID(r),
			Method:     r.Method,
			Host:       r.Host,
			Origin:     claimedOrigin(r),
			Identity:   opts.KeyFn(r),
			UserAgent:  r.UserAgent(),
			ReceivedAt: opts.Now(),
		}
		w.Header().Set(headerRequestID, rc.RequestID)

		// corpo só é lido depois da origem; origem ruim cai em BAD_ORIGIN no Submit
		if r.Method == http.MethodPost && application.CheckOrigin(rc.Origin, p.TrustedOrigins) {
			r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)
			if err := parseForm(r, opts.MaxBodyBytes); err != nil {
				status, msg := http.StatusBadRequest, msgBadForm
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					status, msg = http.StatusRequestEntityTooLarge, msgBodyTooLarge
				}
				opts.Logger.DebugContext(r.Context(), "contact form parse failed", "request_id", rc.RequestID, "error", err)
				res := p.Reject(r.Context(), rc, domain.OutcomeValidationError, msg)
				writeResult(w, status, res)
				return
			}
			rc.Form = readSubmission(r, opts.HoneypotField)
		}

		res := p.Submit(r.Context(), rc)
		writeResult(w, StatusFor(res.Outcome), res)
	})
}

// StatusFor traduz o desfecho em status HTTP.
func StatusFor(o domain.Outcome) int {
	switch o {
	case domain.OutcomeSuccess, domain.OutcomeHoneypot, domain.OutcomeMailSkipped:
		return http.StatusOK
	case domain.OutcomeValidationError:
		return http.StatusBadRequest
	case domain.OutcomeBadOrigin:
		return http.StatusForbidden
	case domain.OutcomeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case domain.OutcomeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, status int, res domain.Result) {
	switch status {
	case http.StatusMethodNotAllowed:
		w.Header().Set("Allow", http.MethodPost)
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", retryAfterSeconds(res.RetryAfter))
	}
	writeJSON(w, status, response{Success: res.Success, Message: res.Message})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseForm(r *http.Request, maxBytes int64) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return r.ParseMultipartForm(maxBytes)
	}
	return r.ParseForm()
}

func readSubmission(r *http.Request, honeypotField string) domain.SubmissionRequest {
	f := r.PostForm
	req := domain.SubmissionRequest{
		Name:      f.Get("name"),
		Email:     f.Get("email"),
		Message:   f.Get("message"),
		Honeypot:  f.Get(honeypotField),
		VisitDate: f.Get("visit_date"),
	}
	req.Category, req.HasCategory = firstField(r, categoryFields)
	req.Phone, _ = firstField(r, phoneFields)
	req.Consent, req.HasConsent = firstField(r, consentFields)
	return req
}

func firstField(r *http.Request, names []string) (string, bool) {
	for _, n := range names {
		if v, ok := r.PostForm[n]; ok {
			if len(v) == 0 {
				return "", true
			}
			return v[0], true
		}
	}
	return "", false
}

// claimedOrigin usa Origin e, na falta dele, Referer.
func claimedOrigin(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); o != "" {
		return o
	}
	return strings.TrimSpace(r.Referer())
}

// requestID reaproveita um X-Request-ID bem formado vindo do proxy.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerRequestID)); requestIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}
