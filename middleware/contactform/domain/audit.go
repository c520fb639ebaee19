package domain

import (
	"context"
	"time"
)

// Outcome é a etiqueta gravada no log de auditoria para cada requisição.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeHoneypot         Outcome = "HONEYPOT"
	OutcomeRateLimited      Outcome = "RATE_LIMITED"
	OutcomeValidationError  Outcome = "VALIDATION_ERROR"
	OutcomeMailFailed       Outcome = "MAIL_FAILED"
	OutcomeMailSkipped      Outcome = "MAIL_SKIPPED"
	OutcomeBadOrigin        Outcome = "BAD_ORIGIN"
	OutcomeMethodNotAllowed Outcome = "METHOD_NOT_ALLOWED"
	OutcomeInternalError    Outcome = "INTERNAL_ERROR"
)

// Outcomes lista todas as etiquetas conhecidas (útil para pré-registrar métricas).
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeHoneypot,
	OutcomeRateLimited,
	OutcomeValidationError,
	OutcomeMailFailed,
	OutcomeMailSkipped,
	OutcomeBadOrigin,
	OutcomeMethodNotAllowed,
	OutcomeInternalError,
}

// AuditRecord é uma linha do log append-only. Name/Email ficam vazios
// quando a requisição não passou da validação.
type AuditRecord struct {
	At             time.Time
	Identity       Key
	Outcome        Outcome
	Name           string
	Email          string
	MessagePreview string
	UserAgent      string
	RequestID      string
}

// AuditSink persiste registros de auditoria.
//
// Cada Record é gravado como unidade atômica; gravações concorrentes não podem
// intercalar registros parciais. O pipeline trata erro como best-effort
// (não derruba a resposta).
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}
