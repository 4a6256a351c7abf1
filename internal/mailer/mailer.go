package mailer

import (
	"fmt"
	"log"
	"strconv"

	gomail "gopkg.in/gomail.v2"
)

// TemplateKind selects the outbound message body.
type TemplateKind string

const (
	TemplateTaskAssigned   TemplateKind = "task_assigned"
	TemplateCommentCreated TemplateKind = "comment_created"
)

// Outbound is the fire-and-forget messaging collaborator. Schedule is
// called only from the asynchronous fan-out path, never inside a
// request transaction; delivery failures are retried by the caller.
type Outbound interface {
	Schedule(recipientAddress string, kind TemplateKind, payload map[string]interface{}) error
}

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTP builds an Outbound over SMTP.
func NewSMTP(cfg Config) (Outbound, error) {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP port %q: %w", cfg.Port, err)
	}
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}, nil
}

func (m *smtpMailer) Schedule(recipientAddress string, kind TemplateKind, payload map[string]interface{}) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipientAddress)
	msg.SetHeader("Subject", subjectFor(kind, payload))
	msg.SetBody("text/plain", bodyFor(kind, payload))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s mail to %s: %w", kind, recipientAddress, err)
	}
	return nil
}

func subjectFor(kind TemplateKind, payload map[string]interface{}) string {
	switch kind {
	case TemplateTaskAssigned:
		return fmt.Sprintf("Task assigned: %v", payload["name"])
	case TemplateCommentCreated:
		return fmt.Sprintf("New comment on %v", payload["name"])
	}
	return "Notification"
}

func bodyFor(kind TemplateKind, payload map[string]interface{}) string {
	switch kind {
	case TemplateTaskAssigned:
		return fmt.Sprintf(
			"You have been assigned the task %v in project %v. Deadline: %v.",
			payload["name"], payload["project"], payload["deadline"],
		)
	case TemplateCommentCreated:
		return fmt.Sprintf(
			"A new comment was posted on %v. Deadline: %v.",
			payload["name"], payload["deadline"],
		)
	}
	return fmt.Sprintf("%v", payload)
}

type noopMailer struct{}

// NewNoop returns an Outbound that only logs. Used when SMTP is not
// configured.
func NewNoop() Outbound {
	return noopMailer{}
}

func (noopMailer) Schedule(recipientAddress string, kind TemplateKind, payload map[string]interface{}) error {
	log.Printf("mailer disabled, dropping %s mail to %s", kind, recipientAddress)
	return nil
}
