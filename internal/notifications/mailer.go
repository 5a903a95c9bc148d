package notifications

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"github.com/educatory/backend/pkg/queue"
)

// SMTPConfig configures the outbound SMTP relay.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
}

// Mailer sends one email job.
type Mailer interface {
	Send(ctx context.Context, p queue.EmailPayload) error
}

// SMTPMailer delivers email jobs over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	cfg    SMTPConfig
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg: cfg}
}

// Send builds the MIME message and delivers it. ctx is checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, p queue.EmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(buildMessage(m.cfg, p)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", p.RecipientEmail, err)
	}
	return nil
}

func buildMessage(cfg SMTPConfig, p queue.EmailPayload) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", cfg.FromAddress, cfg.FromName)
	msg.SetHeader("To", p.RecipientEmail)
	if len(p.CC) > 0 {
		msg.SetHeader("Cc", p.CC...)
	}
	msg.SetHeader("Subject", p.Subject)
	msg.SetBody("text/html", p.BodyHTML)
	for _, a := range p.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		if a.Inline {
			msg.Embed(a.Filename, settings...)
		} else {
			msg.Attach(a.Filename, settings...)
		}
	}
	return msg
}
