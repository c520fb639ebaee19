package application

import (
	"context"
	"errors"
	"time"

	"contact-gateway/middleware/contactform/domain"
)

const (
	DefaultMaxPerWindow = 3
	DefaultWindow       = 60 * time.Second
)

// RateLimiter decide allow/deny por identidade, registrando a tentativa.
type RateLimiter interface {
	Allow(ctx context.Context, key domain.Key) domain.Decision
}

// Limiter implementa contador de janela fixa sobre um LedgerStore.
//
// Política de falha: se o ledger não puder ser lido/gravado, a requisição é
// LIBERADA (fail open). Disputa de escrita na mesma chave
// (ErrLedgerContention) não é falha de infraestrutura e conta como negação. Preferimos não bloquear tráfego legítimo por problema
// de infraestrutura; OnFailOpen permite registrar/medir cada ocorrência.
type Limiter struct {
	Store        domain.LedgerStore
	MaxPerWindow int
	Window       time.Duration
	Now          func() time.Time
	OnFailOpen   func(key domain.Key, err error)
}

func (l Limiter) Allow(ctx context.Context, key domain.Key) domain.Decision {
	if l.Store == nil {
		return domain.Decision{Allowed: true}
	}
	max := l.MaxPerWindow
	if max <= 0 {
		max = DefaultMaxPerWindow
	}
	window := l.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}

	next, err := l.Store.Update(ctx, key, func(cur domain.UsageWindow, ok bool) domain.UsageWindow {
		if !ok || cur.Expired(now, window) {
			return domain.UsageWindow{Count: 1, WindowStart: now}
		}
		cur.Count++
		return cur
	})
	if errors.Is(err, domain.ErrLedgerContention) {
		// chave disputada = rajada da mesma identidade; nega em vez de liberar
		return domain.Decision{Allowed: false, RetryAfter: retryAfter(0)}
	}
	if err != nil {
		if l.OnFailOpen != nil {
			l.OnFailOpen(key, err)
		}
		return domain.Decision{Allowed: true, FailedOpen: true}
	}

	if next.Count <= max {
		return domain.Decision{Allowed: true, Count: next.Count}
	}
	return domain.Decision{
		Allowed:    false,
		Count:      next.Count,
		RetryAfter: retryAfter(next.WindowStart.Add(window).Sub(now)),
	}
}

// retryAfter arredonda para cima em segundos inteiros, mínimo 1s.
func retryAfter(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
