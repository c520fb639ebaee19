package application

import (
	"strings"
	"time"

	"contact-gateway/middleware/contactform/domain"
)

const rule = "----------------------------------------"

// MailComposer monta a notificação a partir da visão Plain da submissão,
// para que nenhuma entidade HTML vaze no corpo do e-mail.
type MailComposer struct {
	To            string
	From          string
	SiteName      string
	SubjectPrefix string
	Location      *time.Location
}

func (c MailComposer) Compose(sub domain.ValidatedSubmission, rc domain.RequestContext) domain.Mail {
	p := sub.Plain()

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	at := rc.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	prefix := c.SubjectPrefix
	if prefix == "" {
		prefix = "Contact: "
	}
	topic := p.CategoryLabel
	if topic == "" {
		topic = p.Name
	}
	subject := prefix + topic
	if c.SiteName != "" {
		subject = "[" + c.SiteName + "] " + subject
	}

	var b strings.Builder
	if c.SiteName != "" {
		b.WriteString("New inquiry received from the " + c.SiteName + " contact form.\n")
	} else {
		b.WriteString("New inquiry received from the contact form.\n")
	}
	b.WriteString(rule + "\n")
	b.WriteString("Name: " + p.Name + "\n")
	b.WriteString("Email: " + p.Email + "\n")
	if p.Phone != "" {
		b.WriteString("Phone: " + p.Phone + "\n")
	}
	if p.CategoryLabel != "" {
		b.WriteString("Inquiry type: " + p.CategoryLabel + "\n")
	}
	if p.VisitDate != "" {
		b.WriteString("Preferred date: " + p.VisitDate + "\n")
	}
	b.WriteString("Sent at: " + at.In(loc).Format("2006-01-02 15:04:05 MST") + "\n")
	b.WriteString("IP address: " + string(rc.Identity) + "\n")
	b.WriteString(rule + "\n")
	b.WriteString("Message:\n\n")
	b.WriteString(p.Message + "\n")
	b.WriteString(rule + "\n")

	return domain.Mail{
		To:      c.To,
		From:    c.From,
		ReplyTo: p.Email,
		Subject: subject,
		Body:    b.String(),
	}
}
