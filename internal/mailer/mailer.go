package mailer

import (
	"context"
	"fmt"

	"prediction-platform/internal/config"
	"prediction-platform/internal/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends the account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// New returns an SMTP mailer, or a LogMailer when no SMTP host is set.
func New(cfg *config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		logger.Warn("SMTP host not configured, emails will only be logged")
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   from,
	}
}

func (m *SMTPMailer) SendVerification(_ context.Context, to, name, link string) error {
	subject := "Confirm your email address"
	body := fmt.Sprintf(verificationTemplate, name, link, link)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) SendPasswordReset(_ context.Context, to, name, link string) error {
	subject := "Reset your password"
	body := fmt.Sprintf(resetTemplate, name, link, link)
	return m.send(to, subject, body)
}

func (m *SMTPMailer) send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.from, "Prediction Platform"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("event", "email_sent"),
	)
	return nil
}

// LogMailer writes the links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendVerification(_ context.Context, to, _, link string) error {
	logger.Info("Verification email",
		zap.String("to", to),
		zap.String("link", link),
		zap.String("event", "verification_email_logged"),
	)
	return nil
}

func (LogMailer) SendPasswordReset(_ context.Context, to, _, link string) error {
	logger.Info("Password reset email",
		zap.String("to", to),
		zap.String("link", link),
		zap.String("event", "password_reset_email_logged"),
	)
	return nil
}

const verificationTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333333;">
	<p>Hi %s,</p>
	<p>Thanks for signing up. Please confirm your email address:</p>
	<p><a href="%s" style="background-color: #5271ff; color: #ffffff; padding: 10px 24px; text-decoration: none; border-radius: 4px;">Verify email</a></p>
	<p>If the button does not work, paste this link into your browser:<br>%s</p>
</body>
</html>`

const resetTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333333;">
	<p>Hi %s,</p>
	<p>We received a request to reset your password. The link is valid for one hour.</p>
	<p><a href="%s" style="background-color: #5271ff; color: #ffffff; padding: 10px 24px; text-decoration: none; border-radius: 4px;">Reset password</a></p>
	<p>If the button does not work, paste this link into your browser:<br>%s</p>
	<p>If you did not ask for this, you can ignore this email.</p>
</body>
</html>`
