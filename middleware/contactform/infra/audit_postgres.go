package infra

import (
	"context"
	"time"

	"contact-gateway/middleware/contactform/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditSchema = `CREATE TABLE IF NOT EXISTS contact_audit (
	id          BIGSERIAL PRIMARY KEY,
	at          TIMESTAMPTZ NOT NULL,
	identity    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	preview     TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
)`

const auditInsert = `INSERT INTO contact_audit(at,identity,outcome,name,email,preview,user_agent,request_id)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`

// execer é o subconjunto de *pgxpool.Pool usado aqui (permite fake em teste).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresAuditSink espelha o log de auditoria numa tabela contact_audit.
type PostgresAuditSink struct {
	DB execer
}

func NewPostgresAuditSink(pool *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{DB: pool}
}

// ConnectAuditPool abre o pool com os mesmos limites usados nos demais serviços.
func ConnectAuditPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (s *PostgresAuditSink) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, auditSchema)
	return err
}

// Record implementa domain.AuditSink. Os valores passam pelo mesmo saneamento
// do arquivo TSV para que as duas fontes batam.
func (s *PostgresAuditSink) Record(ctx context.Context, rec domain.AuditRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	identity := string(rec.Identity)
	if identity == "" {
		identity = string(domain.UnknownKey)
	}
	_, err := s.DB.Exec(ctx, auditInsert,
		at.UTC(),
		sanitizeField(identity),
		string(rec.Outcome),
		sanitizeField(rec.Name),
		sanitizeField(rec.Email),
		truncateRunes(sanitizeField(rec.MessagePreview), previewMax),
		truncateRunes(sanitizeField(rec.UserAgent), userAgentMax),
		sanitizeField(rec.RequestID),
	)
	return err
}
