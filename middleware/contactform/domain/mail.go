package domain

import "context"

type Mail struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	Body    string
}

// Mailer é a capacidade externa de envio. Retorna nil em caso de sucesso.
// Implementações devem respeitar o deadline do ctx.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}
