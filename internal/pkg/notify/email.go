package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"taskboard/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送账号通知邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendWelcome 发送欢迎邮件。
func (n *EmailNotifier) SendWelcome(toEmail string, name string) error {
	subject := "Welcome to your Task App!"
	body := fmt.Sprintf("Thank you %s for joining the Task App.", name)
	return n.send(toEmail, subject, body)
}

// SendCancellation 发送账号注销告别邮件。
func (n *EmailNotifier) SendCancellation(toEmail string, name string) error {
	subject := "Sad to see you leave!"
	body := fmt.Sprintf("%s, your account has been cancelled.", name)
	return n.send(toEmail, subject, body)
}

func (n *EmailNotifier) send(toEmail, subject, body string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email notification sent", slog.String("to", toEmail), slog.String("subject", subject))
	return nil
}
