package infra

import (
	"context"
	"sync/atomic"

	"contact-gateway/middleware/contactform/domain"
)

// SlotPool é um semáforo baseado em channel com capacidade fixa.
type SlotPool struct {
	sem      chan struct{}
	inFlight atomic.Int64
}

var _ domain.SlotPool = (*SlotPool)(nil)

// NewSlotPool cria um pool com capacidade `max`.
func NewSlotPool(max int) *SlotPool {
	return &SlotPool{sem: make(chan struct{}, max)}
}

func (p *SlotPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		p.inFlight.Add(1)
		var released atomic.Bool
		return func() {
			if released.CompareAndSwap(false, true) {
				p.inFlight.Add(-1)
				<-p.sem
			}
		}, true
	case <-ctx.Done():
		return nil, false
	}
}

// InFlight devolve quantas vagas estão ocupadas agora.
func (p *SlotPool) InFlight() int { return int(p.inFlight.Load()) }

func (p *SlotPool) Cap() int { return cap(p.sem) }
