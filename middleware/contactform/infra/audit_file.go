package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"contact-gateway/middleware/contactform/domain"

	"github.com/gofrs/flock"
)

const (
	previewMax   = 50
	userAgentMax = 200
)

// FileAuditLog grava uma linha TSV por registro:
//
//	time  identity  outcome  name  email  preview  user-agent  request-id
//
// Cada linha sai num único Write sobre um arquivo O_APPEND, sob mutex do
// processo e flock exclusivo, então escritores concorrentes (inclusive de
// outros processos) nunca intercalam linhas.
type FileAuditLog struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewFileAuditLog(path string) (*FileAuditLog, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileAuditLog{path: path, lock: flock.New(path + ".lock")}, nil
}

func (l *FileAuditLog) Path() string { return l.path }

// Record implementa domain.AuditSink.
func (l *FileAuditLog) Record(ctx context.Context, rec domain.AuditRecord) error {
	line := FormatAuditLine(rec)

	l.mu.Lock()
	defer l.mu.Unlock()

	locked, err := l.lock.TryLockContext(ctx, 5*time.Millisecond)
	if err != nil {
		return fmt.Errorf("audit lock: %w", err)
	}
	if !locked {
		return errors.New("audit lock not acquired")
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Close()
}

// FormatAuditLine monta a linha (com \n final). Campos passam por
// sanitizeField, então nenhum valor consegue abrir coluna ou linha nova.
func FormatAuditLine(rec domain.AuditRecord) string {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	identity := string(rec.Identity)
	if identity == "" {
		identity = string(domain.UnknownKey)
	}

	fields := []string{
		at.UTC().Format(time.RFC3339),
		sanitizeField(identity),
		sanitizeField(string(rec.Outcome)),
		sanitizeField(rec.Name),
		sanitizeField(rec.Email),
		truncateRunes(sanitizeField(rec.MessagePreview), previewMax),
		truncateRunes(sanitizeField(rec.UserAgent), userAgentMax),
		sanitizeField(rec.RequestID),
	}
	return strings.Join(fields, "\t") + "\n"
}

var auditControl = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ", "\x00", "")

func sanitizeField(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return auditControl.Replace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
