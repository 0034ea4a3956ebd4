package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"practice-ledger/internal/config"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
)

// sendgridClient is the part of *sendgrid.Client used here.
type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridSender struct {
	client    sendgridClient
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) EmailSender {
	return &sendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridSender) Send(ctx context.Context, msg events.Email) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	logger.ExternalServiceCall("sendgrid", "send", "to", msg.To)
	response, err := s.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "to", msg.To)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) EmailSender {
	return &smtpSender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (s *smtpSender) Send(ctx context.Context, msg events.Email) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	logger.ExternalServiceCall("smtp", "send", "to", msg.To)
	err := s.dialer.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "send", err, "to", msg.To)
	if err != nil {
		return fmt.Errorf("failed to send email via smtp: %w", err)
	}
	return nil
}

// logSender writes mail to the log. Used in development when no provider is configured.
type logSender struct{}

func (logSender) Send(ctx context.Context, msg events.Email) error {
	logger.InfoContext(ctx, "Email (not sent)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// NewEmailSender picks SendGrid, then SMTP, then the log sender.
func NewEmailSender(cfg config.EmailConfig) EmailSender {
	switch {
	case cfg.SendGridAPIKey != "":
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName)
	case cfg.SMTPHost != "":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail)
	default:
		logger.Warn("No email provider configured, emails will only be logged")
		return logSender{}
	}
}
