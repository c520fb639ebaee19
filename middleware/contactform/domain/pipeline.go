package domain

import "time"

// RequestContext é tudo que o pipeline precisa saber sobre a requisição,
// montado explicitamente pelo adapter HTTP (sem consultas implícitas ao ambiente).
type RequestContext struct {
	RequestID  string
	Method     string
	Host       string
	Origin     string // Origin, ou Referer quando Origin ausente
	Identity   Key
	UserAgent  string
	Form       SubmissionRequest
	ReceivedAt time.Time
}

// Result é o veredito do pipeline. O adapter HTTP traduz Outcome em status.
type Result struct {
	Outcome    Outcome
	Success    bool
	Message    string
	RetryAfter time.Duration
}
