package infra

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
	"time"

	"contact-gateway/middleware/contactform/domain"

	"github.com/google/uuid"
)

// SMTPMailer envia por SMTP, usando STARTTLS quando o servidor oferece e
// PLAIN auth quando Username está definido. Todo o diálogo respeita o
// deadline do ctx.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string

	// InsecureSkipVerify só para servidores de teste.
	InsecureSkipVerify bool

	Now func() time.Time
}

// Send implementa domain.Mailer. Respostas 5xx do servidor viram ErrMailRejected.
func (m *SMTPMailer) Send(ctx context.Context, msg domain.Mail) error {
	host, _, err := net.SplitHostPort(m.Addr)
	if err != nil {
		return fmt.Errorf("smtp addr %q: %w", m.Addr, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.Addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// fecha a conexão se o ctx for cancelado no meio do diálogo
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return m.wrap(ctx, "smtp greeting", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, InsecureSkipVerify: m.InsecureSkipVerify}); err != nil {
			return m.wrap(ctx, "smtp starttls", err)
		}
	}
	if m.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, host)); err != nil {
			return m.wrap(ctx, "smtp auth", err)
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return m.wrap(ctx, "smtp MAIL FROM", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return m.wrap(ctx, "smtp RCPT TO", err)
	}
	w, err := c.Data()
	if err != nil {
		return m.wrap(ctx, "smtp DATA", err)
	}
	if _, err := w.Write(BuildMessage(msg, m.now())); err != nil {
		_ = w.Close()
		return m.wrap(ctx, "smtp write", err)
	}
	if err := w.Close(); err != nil {
		return m.wrap(ctx, "smtp end of data", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *SMTPMailer) wrap(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	// deadline da conexão (copiado do ctx) pode disparar antes do próprio ctx
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, context.DeadlineExceeded)
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return fmt.Errorf("%w: %s: %v", domain.ErrMailRejected, step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

// BuildMessage monta a mensagem RFC 5322 em texto puro UTF-8, com CRLF.
// O Subject é codificado (RFC 2047) e o corpo vai em quoted-printable.
// Nenhum cabeçalho aceita quebra de linha.
func BuildMessage(msg domain.Mail, now time.Time) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headerBreaks.Replace(v))
		b.WriteString("\r\n")
	}

	header("From", msg.From)
	header("To", msg.To)
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", headerBreaks.Replace(msg.Subject)))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+messageIDHost(msg.From)+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	// quoted-printable mantém cada linha abaixo de 76 octetos (RFC 5322: 998)
	// mesmo com a mensagem inteira numa linha só; \n vira CRLF no encoder.
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	qp := quotedprintable.NewWriter(&b)
	_, _ = qp.Write([]byte(body))
	_ = qp.Close()
	return []byte(b.String())
}

func messageIDHost(from string) string {
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return strings.Trim(from[at+1:], "> ")
	}
	return "localhost"
}
