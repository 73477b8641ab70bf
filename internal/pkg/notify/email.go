package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"tasknotes/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

// Configured reports whether SMTP settings are complete enough to send mail.
func (n *EmailNotifier) Configured() bool {
	return n != nil && n.cfg != nil && n.cfg.SMTPHost != "" && n.cfg.SMTPUser != "" && n.cfg.FromEmail != ""
}

// SendWelcome 发送注册欢迎邮件。SMTP 未配置时只记录警告。
func (n *EmailNotifier) SendWelcome(ctx context.Context, toEmail string, username string) error {
	if !n.Configured() {
		if n != nil && n.logger != nil {
			n.logger.Warn("email config missing, skip welcome mail")
		}
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[TaskNotes] Welcome aboard")
	m.SetBody("text/html", welcomeBody(username))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("welcome email sent", slog.String("to", toEmail))
	return nil
}

func welcomeBody(username string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to TaskNotes, %s!</h2>
    <p>Your account is ready. Log in to start adding tasks and notes.</p>
  </div>
</body>
</html>`, html.EscapeString(username))
}
