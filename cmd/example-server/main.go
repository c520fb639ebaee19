package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"contact-gateway/middleware/contactform"
	"contact-gateway/middleware/contactform/application"
	"contact-gateway/middleware/contactform/infra"
)

func main() {
	// Exemplo: formulário embutido no seu webserver, tudo em memória e sem
	// envio de e-mail (MAIL_SKIPPED). Útil para testar o front-end localmente.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger := infra.NewMemoryLedger(infra.WithStaleAfter(time.Minute))
	ledger.StartJanitor(ctx)

	audit, err := infra.NewFileAuditLog(filepath.Join(os.TempDir(), "contact-example", "contact.log"))
	if err != nil {
		logger.Error("audit error", "error", err)
		os.Exit(1)
	}
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	pipeline := &application.Pipeline{
		TrustedOrigins: []string{"localhost", "127.0.0.1"},
		Limiter: application.Limiter{
			Store:        ledger,
			MaxPerWindow: 3,
			Window:       time.Minute,
		},
		Validator: application.NewValidator(application.ValidatorConfig{
			Categories: []application.Category{
				{Key: "reservation", Label: "Reservation"},
				{Key: "general", Label: "General question"},
			},
		}),
		Composer: application.MailComposer{To: "owner@example.com", SiteName: "Example"},
		Audit:    audit,
		Stats:    stats,
		Logger:   logger,
		SkipMail: true,
	}

	mux := http.NewServeMux()
	mux.Handle("/contact", contactform.Handler(contactform.Options{
		Pipeline:           pipeline,
		TrustXForwardedFor: true,
		Logger:             logger,
	}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		for outcome, n := range stats.ByOutcome() {
			logger.Info("stats", "outcome", string(outcome), "count", n)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	h := contactform.ConcurrencyMiddleware(contactform.ConcurrencyOptions{Max: 50, Logger: logger})(mux)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr, "audit", audit.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
