package mailer

import (
	"taskhive/configs"
	"taskhive/pkg/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sender mengirimkan satu email transaksional.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender mengirim email lewat server SMTP menggunakan gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg configs.Config) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   cfg.MailFrom,
	}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}

// LogSender dipakai saat SMTP_HOST tidak diset (mode development):
// email hanya dicatat ke log, tidak benar-benar dikirim.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(to, subject, body string) error {
	logger.MailLogger.Info("Email (not sent, SMTP disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
