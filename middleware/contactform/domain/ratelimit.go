package domain

// Camada de domínio do rate limit do formulário.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica o cliente (IP de origem). Nunca é vazia: na falta de
// informação usa-se UnknownKey.
type Key string

const UnknownKey Key = "unknown"

// UsageWindow é o estado de uso por identidade numa janela fixa.
type UsageWindow struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Expired informa se a janela já passou de `window` em relação a now.
func (w UsageWindow) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) >= window
}

// UpdateFunc recebe o estado atual (ok=false quando a chave não existe)
// e devolve o novo estado a ser gravado.
type UpdateFunc func(cur UsageWindow, ok bool) UsageWindow

// LedgerStore guarda o mapa Key -> UsageWindow num recurso compartilhado.
//
// Update executa o ciclo ler/decidir/gravar sob exclusão mútua: duas chamadas
// concorrentes nunca observam o mesmo estado anterior. O lock deve ser liberado
// em qualquer caminho de saída, inclusive erro de I/O.
type LedgerStore interface {
	Update(ctx context.Context, key Key, fn UpdateFunc) (UsageWindow, error)
}

// Sweeper é implementado por ledgers que suportam limpeza explícita
// de janelas antigas (housekeeping). Nunca é necessário para corretude.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

type Decision struct {
	Allowed bool
	// Count é o contador após registrar esta tentativa (0 quando FailedOpen).
	Count int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// FailedOpen indica que o ledger falhou e a requisição foi liberada
	// mesmo assim (disponibilidade acima de rigor).
	FailedOpen bool
}
