package application

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"contact-gateway/middleware/contactform/domain"
)

const (
	DefaultNameMax    = 200
	DefaultEmailMax   = 254
	DefaultMessageMax = 3000

	phoneMax      = 30
	emailLocalMax = 64
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^[0-9+\-() ]+$`)
	lineBreaks   = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")
	crlf         = strings.NewReplacer("\r", "", "\n", "")
)

// Mensagens devolvidas ao cliente. São fixas: nunca ecoam o valor recebido.
const (
	msgNameRequired     = "Please enter your name."
	msgNameTooLong      = "Your name is too long."
	msgEmailRequired    = "Please enter your email address."
	msgEmailTooLong     = "Your email address is too long."
	msgEmailInvalid     = "Please enter a valid email address."
	msgMessageRequired  = "Please enter a message."
	msgMessageTooLong   = "Your message is too long."
	msgCategoryRequired = "Please select an inquiry type."
	msgCategoryInvalid  = "Please select a valid inquiry type."
	msgPhoneInvalid     = "The phone number format is invalid."
	msgDateInvalid      = "The date format is invalid."
	msgConsentRequired  = "You must agree to the privacy policy."
)

// Category é uma opção do campo "tipo de contato" (chave enviada + rótulo legível).
type Category struct {
	Key   string
	Label string
}

type ValidatorConfig struct {
	NameMax    int
	EmailMax   int
	MessageMax int

	Categories      []Category
	RequireCategory bool
	RequireConsent  bool

	// PreserveMessageLineBreaks mantém \n na mensagem (CRLF normalizado).
	// Padrão: quebras de linha viram espaço, como nos demais campos de texto.
	PreserveMessageLineBreaks bool
}

// Validator valida campo a campo; a primeira falha encerra (short-circuit).
type Validator struct {
	cfg    ValidatorConfig
	labels map[string]string
}

func NewValidator(cfg ValidatorConfig) Validator {
	labels := make(map[string]string, len(cfg.Categories))
	for _, c := range cfg.Categories {
		label := c.Label
		if label == "" {
			label = c.Key
		}
		labels[c.Key] = label
	}
	return Validator{cfg: cfg, labels: labels}
}

func (v Validator) Validate(req domain.SubmissionRequest) (domain.ValidatedSubmission, error) {
	var f domain.SubmissionFields
	nameMax := orDefault(v.cfg.NameMax, DefaultNameMax)
	emailMax := orDefault(v.cfg.EmailMax, DefaultEmailMax)
	messageMax := orDefault(v.cfg.MessageMax, DefaultMessageMax)

	// name
	name := crlf.Replace(clean(req.Name))
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ValidatedSubmission{}, invalid("name", msgNameRequired)
	}
	if utf8.RuneCountInString(name) > nameMax {
		return domain.ValidatedSubmission{}, invalid("name", msgNameTooLong)
	}
	f.Name = name

	// email
	email := strings.TrimSpace(crlf.Replace(clean(req.Email)))
	if email == "" {
		return domain.ValidatedSubmission{}, invalid("email", msgEmailRequired)
	}
	if utf8.RuneCountInString(email) > emailMax {
		return domain.ValidatedSubmission{}, invalid("email", msgEmailTooLong)
	}
	if !validEmail(email) {
		return domain.ValidatedSubmission{}, invalid("email", msgEmailInvalid)
	}
	f.Email = email

	// message
	message := strings.TrimSpace(clean(req.Message))
	if v.cfg.PreserveMessageLineBreaks {
		message = strings.ReplaceAll(strings.ReplaceAll(message, "\r\n", "\n"), "\r", "\n")
	} else {
		message = strings.TrimSpace(lineBreaks.Replace(message))
	}
	if message == "" {
		return domain.ValidatedSubmission{}, invalid("message", msgMessageRequired)
	}
	if utf8.RuneCountInString(message) > messageMax {
		return domain.ValidatedSubmission{}, invalid("message", msgMessageTooLong)
	}
	f.Message = message

	// category
	if v.cfg.RequireCategory || req.HasCategory {
		key := strings.TrimSpace(req.Category)
		if key == "" {
			return domain.ValidatedSubmission{}, invalid("category", msgCategoryRequired)
		}
		label, ok := v.labels[key]
		if !ok {
			return domain.ValidatedSubmission{}, invalid("category", msgCategoryInvalid)
		}
		f.Category = key
		f.CategoryLabel = label
	}

	// phone (opcional)
	phone := strings.TrimSpace(crlf.Replace(clean(req.Phone)))
	if phone != "" {
		if utf8.RuneCountInString(phone) > phoneMax || !phonePattern.MatchString(phone) {
			return domain.ValidatedSubmission{}, invalid("phone", msgPhoneInvalid)
		}
		f.Phone = phone
	}

	// visit date (opcional)
	date := strings.TrimSpace(crlf.Replace(clean(req.VisitDate)))
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return domain.ValidatedSubmission{}, invalid("visit_date", msgDateInvalid)
		}
		f.VisitDate = date
	}

	// consent
	if v.cfg.RequireConsent || req.HasConsent {
		if !truthy(req.Consent) {
			return domain.ValidatedSubmission{}, invalid("consent", msgConsentRequired)
		}
		f.Consent = true
	}

	return domain.NewValidatedSubmission(f), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func invalid(field, msg string) error {
	return &domain.ValidationError{Field: field, Message: msg}
}

// clean troca bytes UTF-8 inválidos e remove NUL.
func clean(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.ReplaceAll(s, "\x00", "")
}

func validEmail(s string) bool {
	if !emailPattern.MatchString(s) {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at > emailLocalMax {
		return false
	}
	domainPart := s[at+1:]
	if strings.HasPrefix(domainPart, ".") || strings.HasSuffix(domainPart, ".") || strings.Contains(domainPart, "..") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "yes", "agree", "agreed":
		return true
	}
	return false
}
