package domain

import "errors"

var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrLedgerContention  = errors.New("ledger transaction retries exhausted")
	ErrMailTimeout       = errors.New("mail dispatch timed out")
	ErrMailRejected      = errors.New("mail dispatch rejected")
	ErrSaturated         = errors.New("no submission slot available")
)

// ValidationError é uma falha corrigível pelo usuário. Message é segura
// para exibição: nunca repete o valor recebido.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
