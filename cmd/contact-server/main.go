package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contact-gateway/middleware/contactform"
	"contact-gateway/middleware/contactform/application"
	"contact-gateway/middleware/contactform/domain"
	"contact-gateway/middleware/contactform/infra"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, errs := readConfig()
	logger := newLogger(cfg.env)
	slog.SetDefault(logger)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("config error", "error", err)
		}
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := infra.EnsureDataDir(cfg.dataDir); err != nil {
		fatal(logger, "data dir error", err)
	}

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		fatal(logger, "tracing error", err)
	}

	var rdb *redis.Client
	if cfg.ledgerBackend == "redis" || cfg.statsEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			// o ledger falha aberto; só avisamos
			logger.Warn("redis ping error", "addr", cfg.redisAddr, "error", err)
		}
	}

	var ledger domain.LedgerStore
	var health pinger
	switch cfg.ledgerBackend {
	case "memory":
		mem := infra.NewMemoryLedger(infra.WithStaleAfter(cfg.rateWindow))
		mem.StartJanitor(ctx)
		ledger = mem
	case "redis":
		rl := infra.NewRedisLedger(rdb,
			infra.WithLedgerPrefix(cfg.ledgerPrefix),
			infra.WithLedgerTTL(cfg.rateWindow),
		)
		ledger, health = rl, rl
	default:
		fl, err := infra.NewFileLedger(cfg.ledgerFile, infra.WithFileStaleAfter(cfg.rateWindow))
		if err != nil {
			fatal(logger, "ledger error", err)
		}
		ledger = fl
	}

	audit, closeAudit, err := buildAudit(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "audit error", err)
	}
	defer closeAudit()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var stats infra.MultiStatsStore
	if cfg.metricsEnabled {
		prom := infra.NewPrometheusStats()
		if err := prom.Register(reg); err != nil {
			fatal(logger, "metrics error", err)
		}
		stats = append(stats, prom)
	}
	if cfg.statsEnabled {
		stats = append(stats, infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
		))
	}

	var mailer domain.Mailer
	if !cfg.mailSkip {
		mailer = infra.NewThrottledMailer(&infra.SMTPMailer{
			Addr:     cfg.smtpAddr,
			Username: cfg.smtpUsername,
			Password: cfg.smtpPassword,
		}, cfg.mailRPS, cfg.mailBurst)
	}

	pipeline := &application.Pipeline{
		TrustedOrigins: cfg.trustedOrigins,
		Limiter: application.Limiter{
			Store:        ledger,
			MaxPerWindow: cfg.rateMax,
			Window:       cfg.rateWindow,
			OnFailOpen: func(key domain.Key, err error) {
				logger.Warn("rate ledger unavailable, failing open", "identity", string(key), "error", err)
			},
		},
		Validator: application.NewValidator(application.ValidatorConfig{
			NameMax:         cfg.nameMax,
			EmailMax:        cfg.emailMax,
			MessageMax:      cfg.messageMax,
			Categories:      cfg.categories,
			RequireCategory: cfg.requireCategory,
			RequireConsent:  cfg.requireConsent,
		}),
		Composer: application.MailComposer{
			To:            cfg.mailTo,
			From:          cfg.mailFrom,
			SiteName:      cfg.siteName,
			SubjectPrefix: cfg.mailSubjectPrefix,
		},
		Mailer:      mailer,
		Audit:       audit,
		Stats:       stats,
		Logger:      logger,
		Tracer:      otel.Tracer("contact-gateway/pipeline"),
		SkipMail:    cfg.mailSkip,
		LocalHosts:  cfg.localHosts,
		MailTimeout: cfg.mailTimeout,
	}

	h := contactform.Handler(contactform.Options{
		Pipeline:           pipeline,
		TrustXForwardedFor: cfg.trustXFF,
		HoneypotField:      cfg.honeypotField,
		MaxBodyBytes:       cfg.maxBodyBytes,
		Logger:             logger,
	})
	h = contactform.ConcurrencyMiddleware(contactform.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         logger,
	})(h)

	r := chi.NewRouter()
	r.Handle(cfg.contactPath, otelhttp.NewHandler(h, "contact",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))
	r.Get("/healthz", healthHandler(health))
	if cfg.metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	logger.Info("contact server listening", "addr", cfg.listenAddr, "path", cfg.contactPath, "env", cfg.env)
	logger.Info("rate", "max", cfg.rateMax, "window", cfg.rateWindow, "ledger", cfg.ledgerBackend, "trustXFF", cfg.trustXFF)
	logger.Info("mail", "skip", cfg.mailSkip, "smtp", cfg.smtpAddr, "rps", cfg.mailRPS, "burst", cfg.mailBurst, "timeout", cfg.mailTimeout)
	logger.Info("audit", "file", cfg.auditFile, "postgres", cfg.auditDatabaseURL != "")
	logger.Info("concurrency", "max", cfg.concurrencyMax, "acquireTimeout", cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "server error", err)
	}
}

// buildAudit monta o arquivo TSV e, se configurado, o espelho em Postgres.
func buildAudit(ctx context.Context, cfg config, logger *slog.Logger) (domain.AuditSink, func(), error) {
	fileLog, err := infra.NewFileAuditLog(cfg.auditFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.auditDatabaseURL == "" {
		return fileLog, func() {}, nil
	}

	pool, err := infra.ConnectAuditPool(ctx, cfg.auditDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := infra.NewPostgresAuditSink(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("audit mirror enabled", "table", "contact_audit")
	return infra.MultiAuditSink{fileLog, pg}, pool.Close, nil
}

func healthHandler(p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				// ledger fora não derruba o formulário (fail open), mas fica visível aqui
				http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}

// newLogger usa JSON em produção e texto no resto.
func newLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
