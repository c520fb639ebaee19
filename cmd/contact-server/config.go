package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contact-gateway/middleware/contactform/application"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type config struct {
	listenAddr  string
	contactPath string
	env         string
	dataDir     string

	rateMax    int
	rateWindow time.Duration

	ledgerBackend string
	ledgerFile    string
	ledgerPrefix  string
	redisAddr     string
	redisPassword string
	redisDB       int

	auditFile        string
	auditDatabaseURL string

	trustedOrigins []string
	trustXFF       bool
	honeypotField  string
	maxBodyBytes   int64

	nameMax         int
	emailMax        int
	messageMax      int
	categories      []application.Category
	requireCategory bool
	requireConsent  bool

	mailTo            string
	mailFrom          string
	mailSubjectPrefix string
	siteName          string
	smtpAddr          string
	smtpUsername      string
	smtpPassword      string
	mailTimeout       time.Duration
	mailSkip          bool
	localHosts        []string
	mailRPS           float64
	mailBurst         int

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	metricsEnabled bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	otlpEndpoint string
	otlpInsecure bool
}

// envSource lê cada chave do ambiente e, na falta, do YAML opcional
// (mesmo nome em minúsculas: RATE_MAX -> rate_max). Erros de parse
// são acumulados para serem reportados juntos.
type envSource struct {
	k    *koanf.Koanf
	errs []error
}

func (s *envSource) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	fk := strings.ToLower(key)
	if s.k != nil && s.k.Exists(fk) {
		return s.k.String(fk), true
	}
	return "", false
}

func (s *envSource) getenvDefault(k, def string) string {
	if v, ok := s.lookup(k); ok {
		return v
	}
	return def
}

func (s *envSource) getenvIntDefault(k string, def int) int {
	v, ok := s.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be an integer, got %q", k, v))
		return def
	}
	return i
}

func (s *envSource) getenvFloatDefault(k string, def float64) float64 {
	v, ok := s.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a number, got %q", k, v))
		return def
	}
	return f
}

func (s *envSource) getenvBoolDefault(k string, def bool) bool {
	v, ok := s.lookup(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a boolean, got %q", k, v))
		return def
	}
	return b
}

func (s *envSource) getenvDurationDefault(k string, def time.Duration) time.Duration {
	v, ok := s.lookup(k)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	// número puro = segundos
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a duration, got %q", k, v))
		return def
	}
	return d
}

// getenvListDefault aceita lista separada por vírgula (env) ou lista YAML.
func (s *envSource) getenvListDefault(k string, def []string) []string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return splitList(v)
	}
	fk := strings.ToLower(k)
	if s.k != nil && s.k.Exists(fk) {
		if l := s.k.Strings(fk); len(l) > 0 {
			return l
		}
		return splitList(s.k.String(fk))
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseCategories lê "chave:Rótulo" (rótulo opcional).
func parseCategories(items []string) []application.Category {
	out := make([]application.Category, 0, len(items))
	for _, it := range items {
		key, label, _ := strings.Cut(it, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out = append(out, application.Category{Key: key, Label: strings.TrimSpace(label)})
	}
	return out
}

// readConfig carrega .env (opcional), o YAML de CONFIG_FILE (opcional) e o
// ambiente, nessa ordem de precedência crescente. Devolve todos os erros.
func readConfig() (config, []error) {
	_ = godotenv.Load()

	src := &envSource{k: koanf.New(".")}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := src.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return config{}, []error{fmt.Errorf("load config file %s: %w", path, err)}
		}
	}

	cfg := config{}
	cfg.listenAddr = src.getenvDefault("LISTEN_ADDR", ":8080")
	cfg.contactPath = src.getenvDefault("CONTACT_PATH", "/contact")
	cfg.env = src.getenvDefault("ENV", "development")
	cfg.dataDir = src.getenvDefault("DATA_DIR", "data")

	cfg.rateMax = src.getenvIntDefault("RATE_MAX", application.DefaultMaxPerWindow)
	cfg.rateWindow = src.getenvDurationDefault("RATE_WINDOW", application.DefaultWindow)

	cfg.ledgerBackend = strings.ToLower(src.getenvDefault("LEDGER_BACKEND", "file"))
	cfg.ledgerFile = src.getenvDefault("LEDGER_FILE", filepath.Join(cfg.dataDir, "rate_limit.json"))
	cfg.ledgerPrefix = src.getenvDefault("LEDGER_PREFIX", "contact:ledger")
	cfg.redisAddr = src.getenvDefault("REDIS_ADDR", "")
	cfg.redisPassword = src.getenvDefault("REDIS_PASSWORD", "")
	cfg.redisDB = src.getenvIntDefault("REDIS_DB", 0)

	cfg.auditFile = src.getenvDefault("AUDIT_FILE", filepath.Join(cfg.dataDir, "contact.log"))
	cfg.auditDatabaseURL = src.getenvDefault("AUDIT_DATABASE_URL", "")

	cfg.trustedOrigins = src.getenvListDefault("TRUSTED_ORIGINS", []string{"localhost", "127.0.0.1"})
	cfg.trustXFF = src.getenvBoolDefault("TRUST_XFF", true)
	cfg.honeypotField = src.getenvDefault("HONEYPOT_FIELD", "website")
	cfg.maxBodyBytes = int64(src.getenvIntDefault("MAX_BODY_BYTES", 64<<10))

	cfg.nameMax = src.getenvIntDefault("NAME_MAX", application.DefaultNameMax)
	cfg.emailMax = src.getenvIntDefault("EMAIL_MAX", application.DefaultEmailMax)
	cfg.messageMax = src.getenvIntDefault("MESSAGE_MAX", application.DefaultMessageMax)
	cfg.categories = parseCategories(src.getenvListDefault("CATEGORIES", nil))
	cfg.requireCategory = src.getenvBoolDefault("REQUIRE_CATEGORY", false)
	cfg.requireConsent = src.getenvBoolDefault("REQUIRE_CONSENT", false)

	cfg.mailTo = src.getenvDefault("MAIL_TO", "")
	cfg.mailFrom = src.getenvDefault("MAIL_FROM", "")
	cfg.mailSubjectPrefix = src.getenvDefault("MAIL_SUBJECT_PREFIX", "Contact: ")
	cfg.siteName = src.getenvDefault("SITE_NAME", "")
	cfg.smtpAddr = src.getenvDefault("SMTP_ADDR", "")
	cfg.smtpUsername = src.getenvDefault("SMTP_USERNAME", "")
	cfg.smtpPassword = src.getenvDefault("SMTP_PASSWORD", "")
	cfg.mailTimeout = src.getenvDurationDefault("MAIL_TIMEOUT", application.DefaultMailTimeout)
	cfg.mailSkip = src.getenvBoolDefault("MAIL_SKIP", false)
	cfg.localHosts = src.getenvListDefault("LOCAL_HOSTS", []string{"localhost", "127.0.0.1"})
	cfg.mailRPS = src.getenvFloatDefault("MAIL_RPS", 1)
	cfg.mailBurst = src.getenvIntDefault("MAIL_BURST", 5)

	cfg.statsEnabled = src.getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsPrefix = src.getenvDefault("STATS_PREFIX", "contact:stats")
	cfg.statsTTL = src.getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.metricsEnabled = src.getenvBoolDefault("METRICS_ENABLED", true)

	cfg.concurrencyMax = src.getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = src.getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.otlpEndpoint = src.getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.otlpInsecure = src.getenvBoolDefault("OTEL_INSECURE", false)

	errs := append(src.errs, cfg.validate()...)
	return cfg, errs
}

func (c config) validate() []error {
	var errs []error
	if !strings.HasPrefix(c.contactPath, "/") {
		errs = append(errs, errors.New("CONTACT_PATH must start with /"))
	}
	if c.rateMax <= 0 {
		errs = append(errs, errors.New("RATE_MAX must be > 0"))
	}
	if c.rateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be > 0"))
	}
	switch c.ledgerBackend {
	case "memory", "file":
	case "redis":
		if strings.TrimSpace(c.redisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when LEDGER_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be memory, file or redis, got %q", c.ledgerBackend))
	}
	if c.statsEnabled && strings.TrimSpace(c.redisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when STATS_ENABLED=true"))
	}
	if len(c.trustedOrigins) == 0 {
		errs = append(errs, errors.New("TRUSTED_ORIGINS must list at least one host"))
	}
	if c.nameMax <= 0 || c.emailMax <= 0 || c.messageMax <= 0 {
		errs = append(errs, errors.New("NAME_MAX, EMAIL_MAX and MESSAGE_MAX must be > 0"))
	}
	if c.requireCategory && len(c.categories) == 0 {
		errs = append(errs, errors.New("CATEGORIES is required when REQUIRE_CATEGORY=true"))
	}
	if !c.mailSkip {
		if c.mailTo == "" {
			errs = append(errs, errors.New("MAIL_TO is required unless MAIL_SKIP=true"))
		}
		if c.mailFrom == "" {
			errs = append(errs, errors.New("MAIL_FROM is required unless MAIL_SKIP=true"))
		}
		if c.smtpAddr == "" {
			errs = append(errs, errors.New("SMTP_ADDR is required unless MAIL_SKIP=true"))
		}
	}
	if c.mailRPS <= 0 {
		errs = append(errs, errors.New("MAIL_RPS must be > 0"))
	}
	if c.maxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be > 0"))
	}
	if c.concurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	return errs
}
