package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"contact-gateway/middleware/contactform/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMailTimeout = 10 * time.Second
	DefaultSinkTimeout = 3 * time.Second

	tracerName = "contact-gateway/pipeline"
)

// Messages são os textos devolvidos ao cliente por desfecho.
type Messages struct {
	Success     string
	Forbidden   string
	Method      string
	RateLimited string
	MailFailed  string
	Internal    string
}

func DefaultMessages(contactAddress string) Messages {
	mailFailed := "We could not send your message. Please contact us directly."
	if contactAddress != "" {
		mailFailed = "We could not send your message. Please contact us directly at " + contactAddress + "."
	}
	return Messages{
		Success:     "Thank you. Your inquiry has been received.",
		Forbidden:   "Forbidden",
		Method:      "Method Not Allowed",
		RateLimited: "Too many submissions. Please wait a while and try again.",
		MailFailed:  mailFailed,
		Internal:    "An unexpected error occurred. Please try again later.",
	}
}

// Pipeline orquestra as checagens de uma submissão numa ordem fixa:
//
//	método -> origem -> isca -> rate limit -> validação -> e-mail -> auditoria
//
// Cada etapa que falha encerra o fluxo e ainda assim grava auditoria.
// Ele não sabe nada sobre HTTP; devolve um Result.
type Pipeline struct {
	TrustedOrigins []string
	Limiter        RateLimiter
	Validator      Validator
	Composer       MailComposer
	Mailer         domain.Mailer
	Audit          domain.AuditSink
	Stats          domain.StatsStore
	Logger         *slog.Logger
	Tracer         trace.Tracer
	Messages       Messages

	// SkipMail desliga o envio (ambiente local/teste); LocalHosts faz o mesmo
	// apenas quando o Host da requisição bate com um deles.
	SkipMail    bool
	LocalHosts  []string
	MailTimeout time.Duration

	// SinkTimeout limita ledger, auditoria e estatísticas. Essas etapas não
	// herdam o cancelamento da requisição: cliente que desconecta ainda é
	// contado e auditado.
	SinkTimeout time.Duration

	Now func() time.Time
}

// Submit nunca entra em pânico: qualquer falha inesperada vira INTERNAL_ERROR
// com registro de auditoria.
func (p *Pipeline) Submit(ctx context.Context, rc domain.RequestContext) (res domain.Result) {
	if rc.Identity == "" {
		rc.Identity = domain.UnknownKey
	}
	if rc.ReceivedAt.IsZero() {
		rc.ReceivedAt = p.now()
	}

	ctx, span := p.tracer().Start(ctx, "contact.submit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("contact.request_id", rc.RequestID)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal error")
			p.logger().ErrorContext(ctx, "contact pipeline panic", "request_id", rc.RequestID, "error", err)
			res = p.finish(ctx, rc, domain.OutcomeInternalError, nil, false)
		}
		span.SetAttributes(attribute.String("contact.outcome", string(res.Outcome)))
	}()

	// RECEIVED
	if !strings.EqualFold(rc.Method, "POST") {
		return p.finish(ctx, rc, domain.OutcomeMethodNotAllowed, nil, false)
	}

	if !CheckOrigin(rc.Origin, p.TrustedOrigins) {
		return p.finish(ctx, rc, domain.OutcomeBadOrigin, nil, false)
	}
	span.AddEvent("origin_checked")

	if IsBot(rc.Form.Honeypot) {
		return p.finish(ctx, rc, domain.OutcomeHoneypot, nil, false)
	}
	span.AddEvent("bot_checked")

	var dec domain.Decision
	if p.Limiter != nil {
		lctx, cancel := p.detached(ctx, p.SinkTimeout, DefaultSinkTimeout)
		dec = p.Limiter.Allow(lctx, rc.Identity)
		cancel()
	} else {
		dec = domain.Decision{Allowed: true}
	}
	if !dec.Allowed {
		res = p.finish(ctx, rc, domain.OutcomeRateLimited, nil, false)
		res.RetryAfter = dec.RetryAfter
		return res
	}
	span.AddEvent("rate_checked", trace.WithAttributes(
		attribute.Int("contact.window_count", dec.Count),
		attribute.Bool("contact.failed_open", dec.FailedOpen),
	))

	sub, err := p.Validator.Validate(rc.Form)
	if err != nil {
		res = p.finish(ctx, rc, domain.OutcomeValidationError, nil, dec.FailedOpen)
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			res.Message = ve.Message
		}
		return res
	}
	span.AddEvent("validated")

	if p.skipMail(rc.Host) {
		return p.finish(ctx, rc, domain.OutcomeMailSkipped, &sub, dec.FailedOpen)
	}

	if err := p.dispatch(context.WithoutCancel(ctx), p.Composer.Compose(sub, rc)); err != nil {
		span.RecordError(err)
		p.logger().WarnContext(ctx, "contact mail dispatch failed",
			"request_id", rc.RequestID,
			"identity", string(rc.Identity),
			"error", err,
		)
		return p.finish(ctx, rc, domain.OutcomeMailFailed, &sub, dec.FailedOpen)
	}
	span.AddEvent("mail_dispatched")

	return p.finish(ctx, rc, domain.OutcomeSuccess, &sub, dec.FailedOpen)
}

// Reject encerra uma requisição barrada antes do pipeline (ex.: corpo grande
// demais), mantendo auditoria e estatísticas. message vazio usa o padrão.
func (p *Pipeline) Reject(ctx context.Context, rc domain.RequestContext, outcome domain.Outcome, message string) domain.Result {
	if rc.Identity == "" {
		rc.Identity = domain.UnknownKey
	}
	if rc.ReceivedAt.IsZero() {
		rc.ReceivedAt = p.now()
	}
	res := p.finish(ctx, rc, outcome, nil, false)
	if message != "" {
		res.Message = message
	}
	return res
}

// dispatch envia com timeout. O envio roda numa goroutine para que um Mailer
// que ignore o ctx não segure a resposta além do timeout.
func (p *Pipeline) dispatch(ctx context.Context, m domain.Mail) error {
	timeout := p.MailTimeout
	if timeout <= 0 {
		timeout = DefaultMailTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("mailer panic: %v", r)
			}
		}()
		done <- p.Mailer.Send(ctx, m)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", domain.ErrMailTimeout, err)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", domain.ErrMailTimeout, timeout)
	}
}

// detached mantém os valores do ctx (span, request id) sem o cancelamento.
func (p *Pipeline) detached(ctx context.Context, d, def time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = def
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (p *Pipeline) skipMail(host string) bool {
	if p.SkipMail || p.Mailer == nil {
		return true
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, local := range p.LocalHosts {
		if host != "" && host == strings.ToLower(strings.TrimSpace(local)) {
			return true
		}
	}
	return false
}

// finish grava auditoria e estatísticas (best-effort) e monta o Result.
func (p *Pipeline) finish(ctx context.Context, rc domain.RequestContext, outcome domain.Outcome, sub *domain.ValidatedSubmission, failedOpen bool) domain.Result {
	sctx, cancel := p.detached(ctx, p.SinkTimeout, DefaultSinkTimeout)
	defer cancel()

	rec := domain.AuditRecord{
		At:        rc.ReceivedAt,
		Identity:  rc.Identity,
		Outcome:   outcome,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	}
	if sub != nil {
		plain := sub.Plain()
		rec.Name = plain.Name
		rec.Email = plain.Email
		rec.MessagePreview = plain.Message
	}

	if p.Audit != nil {
		err := bestEffort(func() error { return p.Audit.Record(sctx, rec) })
		if err != nil {
			p.logger().WarnContext(ctx, "contact audit record failed", "request_id", rc.RequestID, "error", err)
		}
	}
	if p.Stats != nil {
		_ = bestEffort(func() error {
			return p.Stats.Record(sctx, domain.StatsEvent{
				Key:        rc.Identity,
				Outcome:    outcome,
				FailedOpen: failedOpen,
				At:         rc.ReceivedAt,
			})
		})
	}

	p.logger().InfoContext(ctx, "contact submission",
		"request_id", rc.RequestID,
		"identity", string(rc.Identity),
		"outcome", string(outcome),
		"failed_open", failedOpen,
	)

	return p.result(outcome)
}

// bestEffort protege o caminho de resposta contra pânico de sinks.
func bestEffort(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return fn()
}

func (p *Pipeline) result(outcome domain.Outcome) domain.Result {
	msgs := p.messages()
	res := domain.Result{Outcome: outcome}
	switch outcome {
	case domain.OutcomeSuccess, domain.OutcomeHoneypot, domain.OutcomeMailSkipped:
		res.Success = true
		res.Message = msgs.Success
	case domain.OutcomeBadOrigin:
		res.Message = msgs.Forbidden
	case domain.OutcomeMethodNotAllowed:
		res.Message = msgs.Method
	case domain.OutcomeRateLimited:
		res.Message = msgs.RateLimited
	case domain.OutcomeMailFailed:
		res.Message = msgs.MailFailed
	case domain.OutcomeValidationError:
		res.Message = "Invalid input."
	default:
		res.Message = msgs.Internal
	}
	return res
}

func (p *Pipeline) messages() Messages {
	def := DefaultMessages(p.Composer.To)
	m := p.Messages
	if m.Success == "" {
		m.Success = def.Success
	}
	if m.Forbidden == "" {
		m.Forbidden = def.Forbidden
	}
	if m.Method == "" {
		m.Method = def.Method
	}
	if m.RateLimited == "" {
		m.RateLimited = def.RateLimited
	}
	if m.MailFailed == "" {
		m.MailFailed = def.MailFailed
	}
	if m.Internal == "" {
		m.Internal = def.Internal
	}
	return m
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) tracer() trace.Tracer {
	if p.Tracer != nil {
		return p.Tracer
	}
	return otel.Tracer(tracerName)
}
