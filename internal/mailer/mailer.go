// Package mailer builds and delivers account email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/contactsbook/identity/config"
	"gopkg.in/gomail.v2"
)

// Email is a single outgoing message.
type Email struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

const verificationSubject = "Verify"

// VerificationLink returns the confirmation URL for a verification token.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/api/users/verify/" + url.PathEscape(token)
}

// NewVerificationEmail builds the message that carries the verification link.
func NewVerificationEmail(to, baseURL, token string) Email {
	link := VerificationLink(baseURL, token)
	return Email{
		To:       []string{to},
		Subject:  verificationSubject,
		Body:     "Open this link to verify your email: " + link,
		HTMLBody: fmt.Sprintf(`<a target="_blank" href="%s">Click to verify</a>`, html.EscapeString(link)),
	}
}

// SMTPSender delivers mail over SMTP.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender constructs a sender from the SMTP settings.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.Port == 465
	return &SMTPSender{from: cfg.From, dialer: dialer}, nil
}

// Send delivers one message. gomail does not take a context; ctx is checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return errors.New("no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	s.setMessage(msg, email)
	return s.dialer.DialAndSend(msg)
}

func (s *SMTPSender) setMessage(msg *gomail.Message, email Email) {
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)

	if email.HTMLBody != "" {
		msg.SetBody("text/html", email.HTMLBody)
		if email.Body != "" {
			msg.AddAlternative("text/plain", email.Body)
		}
		return
	}
	msg.SetBody("text/plain", email.Body)
}

func validate(cfg config.MailConfig) error {
	if cfg.Host == "" {
		return errors.New("missing SMTP_HOST environment variable")
	}
	if cfg.Port == 0 {
		return errors.New("missing SMTP_PORT environment variable")
	}
	if cfg.From == "" {
		return errors.New("missing SMTP_FROM environment variable")
	}
	return nil
}
