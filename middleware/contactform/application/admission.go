package application

import (
	"context"
	"fmt"
	"time"

	"contact-gateway/middleware/contactform/domain"
)

// Admission limita quantas submissões rodam ao mesmo tempo. Sem Pool, tudo
// passa.
type Admission struct {
	Pool domain.SlotPool

	// AcquireTimeout <= 0 espera até o ctx da requisição encerrar.
	AcquireTimeout time.Duration
}

// Enter devolve a função de saída (chamar exatamente uma vez) ou
// ErrSaturated quando nenhuma vaga abriu a tempo.
func (a Admission) Enter(ctx context.Context) (func(), error) {
	if a.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if a.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, a.AcquireTimeout)
		defer cancel()
	}

	release, ok := a.Pool.Acquire(acqCtx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSaturated, err)
		}
		return nil, fmt.Errorf("%w after %s", domain.ErrSaturated, a.AcquireTimeout)
	}
	return release, nil
}
