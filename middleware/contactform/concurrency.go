package contactform

import (
	"log/slog"
	"net/http"
	"time"

	"contact-gateway/middleware/contactform/application"
	"contact-gateway/middleware/contactform/infra"
)

const msgBusy = "The server is busy. Please try again in a moment."

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
}

// ConcurrencyMiddleware limita submissões simultâneas; sem vaga a tempo,
// responde 503 no mesmo formato JSON do endpoint. Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	adm := application.Admission{
		Pool:           infra.NewSlotPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			leave, err := adm.Enter(r.Context())
			if err != nil {
				opts.Logger.WarnContext(r.Context(), "contact submission rejected", "error", err)
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusServiceUnavailable, response{Message: msgBusy})
				return
			}
			defer leave()

			next.ServeHTTP(w, r)
		})
	}
}
