package infra

import (
	"context"
	"fmt"

	"contact-gateway/middleware/contactform/domain"

	"golang.org/x/time/rate"
)

// ThrottledMailer limita o envio global com um token bucket (rps/burst).
// A espera pelo token conta contra o deadline do ctx: se o bucket não liberar
// a tempo, o envio falha sem chegar ao Mailer interno.
type ThrottledMailer struct {
	next domain.Mailer
	lim  *rate.Limiter
}

func NewThrottledMailer(next domain.Mailer, rps float64, burst int) *ThrottledMailer {
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledMailer{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (m *ThrottledMailer) RPS() float64 { return float64(m.lim.Limit()) }
func (m *ThrottledMailer) Burst() int   { return m.lim.Burst() }

func (m *ThrottledMailer) Send(ctx context.Context, msg domain.Mail) error {
	if err := m.lim.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}
	return m.next.Send(ctx, msg)
}
