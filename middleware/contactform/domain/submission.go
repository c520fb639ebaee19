package domain

import "html"

// SubmissionRequest são os valores crus do formulário. Não confiáveis até
// passarem pelo validador.
//
// HasCategory/HasConsent indicam que o campo veio no corpo da requisição:
// campos presentes passam a ser obrigatórios.
type SubmissionRequest struct {
	Name      string
	Email     string
	Message   string
	Honeypot  string
	Category  string
	Phone     string
	VisitDate string
	Consent   string

	HasCategory bool
	HasConsent  bool
}

// SubmissionFields é a forma "achatada" dos campos aceitos.
type SubmissionFields struct {
	Name          string
	Email         string
	Message       string
	Category      string
	CategoryLabel string
	Phone         string
	VisitDate     string
	Consent       bool
}

// ValidatedSubmission é imutável depois de construída. Guarda duas visões:
// HTML (entidades escapadas, segura para interpolar em HTML) e Plain (texto
// original já normalizado, usado no corpo do e-mail).
type ValidatedSubmission struct {
	plain   SubmissionFields
	escaped SubmissionFields
}

func NewValidatedSubmission(f SubmissionFields) ValidatedSubmission {
	return ValidatedSubmission{
		plain: f,
		escaped: SubmissionFields{
			Name:          html.EscapeString(f.Name),
			Email:         html.EscapeString(f.Email),
			Message:       html.EscapeString(f.Message),
			Category:      html.EscapeString(f.Category),
			CategoryLabel: html.EscapeString(f.CategoryLabel),
			Phone:         html.EscapeString(f.Phone),
			VisitDate:     html.EscapeString(f.VisitDate),
			Consent:       f.Consent,
		},
	}
}

// HTML devolve uma cópia com os campos escapados (< > & " ').
func (v ValidatedSubmission) HTML() SubmissionFields { return v.escaped }

// Plain devolve uma cópia sem codificação de entidades.
func (v ValidatedSubmission) Plain() SubmissionFields { return v.plain }
