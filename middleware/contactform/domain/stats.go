package domain

import (
	"context"
	"time"
)

// StatsEvent representa o desfecho de uma submissão.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Outcome Outcome

	// FailedOpen marca submissões liberadas porque o ledger falhou.
	FailedOpen bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do formulário.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O pipeline deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
