package infra

import (
	"context"
	"sync"
	"time"

	"contact-gateway/middleware/contactform/domain"
)

// MemoryLedger guarda as janelas em memória, protegidas por um mutex que fica
// preso durante todo o ciclo ler/decidir/gravar. Serve para processo único
// (o estado se perde ao reiniciar).
type MemoryLedger struct {
	mu           sync.Mutex
	entries      map[domain.Key]domain.UsageWindow
	staleAfter   time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type MemoryLedgerOption func(*MemoryLedger)

// WithStaleAfter define a idade a partir da qual uma janela pode ser descartada.
// Use o tamanho da janela do limiter.
func WithStaleAfter(d time.Duration) MemoryLedgerOption {
	return func(s *MemoryLedger) { s.staleAfter = d }
}

func WithCleanupEvery(d time.Duration) MemoryLedgerOption {
	return func(s *MemoryLedger) { s.cleanupEvery = d }
}

func WithMemoryClock(now func() time.Time) MemoryLedgerOption {
	return func(s *MemoryLedger) { s.now = now }
}

func NewMemoryLedger(opts ...MemoryLedgerOption) *MemoryLedger {
	s := &MemoryLedger{
		entries:      make(map[domain.Key]domain.UsageWindow),
		staleAfter:   time.Hour,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update implementa domain.LedgerStore.
func (s *MemoryLedger) Update(_ context.Context, key domain.Key, fn domain.UpdateFunc) (domain.UsageWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	next := fn(cur, ok)
	s.entries[key] = next
	return next, nil
}

// Sweep implementa domain.Sweeper.
func (s *MemoryLedger) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, w := range s.entries {
		if w.WindowStart.Before(olderThan) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryLedger) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryLedger) Cleanup() {
	_, _ = s.Sweep(context.Background(), s.now().Add(-s.staleAfter))
}

// StartJanitor inicia uma goroutine que limpa janelas antigas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryLedger) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
