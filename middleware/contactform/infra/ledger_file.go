package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"contact-gateway/middleware/contactform/domain"

	"github.com/gofrs/flock"
)

// FileLedger persiste as janelas num único arquivo JSON ({"ip": {...}}).
//
// Cada Update segura um mutex do processo e um lock exclusivo do sistema de
// arquivos (<path>.lock) durante todo o ciclo ler/decidir/gravar, então vários
// processos podem compartilhar o mesmo arquivo. A gravação é feita num arquivo
// temporário + rename: leitores veem o estado anterior ou o novo, nunca parcial.
//
// Janelas mais antigas que staleAfter são descartadas a cada ciclo.
type FileLedger struct {
	mu         sync.Mutex
	path       string
	lock       *flock.Flock
	staleAfter time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

type FileLedgerOption func(*FileLedger)

func WithFileStaleAfter(d time.Duration) FileLedgerOption {
	return func(s *FileLedger) { s.staleAfter = d }
}

func WithFileClock(now func() time.Time) FileLedgerOption {
	return func(s *FileLedger) { s.now = now }
}

// WithLockRetryDelay define o intervalo entre tentativas de obter o lock.
func WithLockRetryDelay(d time.Duration) FileLedgerOption {
	return func(s *FileLedger) { s.retryDelay = d }
}

func NewFileLedger(path string, opts ...FileLedgerOption) (*FileLedger, error) {
	if path == "" {
		return nil, errors.New("ledger file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	s := &FileLedger{
		path:       path,
		lock:       flock.New(path + ".lock"),
		staleAfter: time.Hour,
		retryDelay: 5 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileLedger) Path() string { return s.path }

// Update implementa domain.LedgerStore.
func (s *FileLedger) Update(ctx context.Context, key domain.Key, fn domain.UpdateFunc) (domain.UsageWindow, error) {
	var next domain.UsageWindow
	err := s.withLock(ctx, func(entries map[domain.Key]domain.UsageWindow) bool {
		cur, ok := entries[key]
		next = fn(cur, ok)
		entries[key] = next
		return true
	})
	if err != nil {
		return domain.UsageWindow{}, err
	}
	return next, nil
}

// Sweep implementa domain.Sweeper.
func (s *FileLedger) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	n := 0
	err := s.withLock(ctx, func(entries map[domain.Key]domain.UsageWindow) bool {
		for k, w := range entries {
			if w.WindowStart.Before(olderThan) {
				delete(entries, k)
				n++
			}
		}
		return n > 0
	})
	return n, err
}

// Snapshot devolve uma cópia do conteúdo atual (sem lock: o rename garante
// que a leitura é consistente).
func (s *FileLedger) Snapshot() (map[domain.Key]domain.UsageWindow, error) {
	return s.read()
}

// withLock carrega o ledger sob lock, aplica fn e grava se fn pedir.
// O lock é liberado em qualquer caminho de saída.
func (s *FileLedger) withLock(ctx context.Context, fn func(map[domain.Key]domain.UsageWindow) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, s.retryDelay)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", domain.ErrLedgerUnavailable, s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: lock %s not acquired", domain.ErrLedgerUnavailable, s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := s.read()
	if err != nil {
		return err
	}

	s.sweepStale(entries)

	if !fn(entries) {
		return nil
	}
	return s.write(entries)
}

func (s *FileLedger) sweepStale(entries map[domain.Key]domain.UsageWindow) {
	if s.staleAfter <= 0 {
		return
	}
	cutoff := s.now().Add(-s.staleAfter)
	for k, w := range entries {
		if w.WindowStart.Before(cutoff) {
			delete(entries, k)
		}
	}
}

// read trata arquivo ausente ou vazio como ledger vazio. Conteúdo corrompido
// também recomeça do zero: o próximo write sobrescreve o arquivo.
func (s *FileLedger) read() (map[domain.Key]domain.UsageWindow, error) {
	entries := make(map[domain.Key]domain.UsageWindow)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrLedgerUnavailable, s.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[domain.Key]domain.UsageWindow), nil
	}
	return entries, nil
}

func (s *FileLedger) write(entries map[domain.Key]domain.UsageWindow) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrLedgerUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %v", domain.ErrLedgerUnavailable, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", domain.ErrLedgerUnavailable, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrLedgerUnavailable, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", domain.ErrLedgerUnavailable, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", domain.ErrLedgerUnavailable, tmpName, err)
	}
	return nil
}
