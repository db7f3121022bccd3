package notify

import (
	"log"

	"gopkg.in/gomail.v2"
)

// Notifier — внешний коллаборатор доставки писем. Отправка fire-and-forget:
// ошибки логируются и никогда не доходят до вызывающего.
type Notifier interface {
	Send(to, subject, body string)
}

// SMTPNotifier шлёт письма через SMTP
type SMTPNotifier struct {
	dialer *gomail.Dialer
	sender string
}

func NewSMTPNotifier(host string, port int, username, password, sender string) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		sender: sender,
	}
}

func (n *SMTPNotifier) Send(to, subject, body string) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.sender)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		log.Printf("notify: failed to send email to %s: %v", to, err)
	}
}

// LogNotifier — консольный фолбэк, когда SMTP не настроен
type LogNotifier struct{}

func (LogNotifier) Send(to, subject, body string) {
	log.Printf("notify (console fallback): to=%s subject=%q\n%s", to, subject, body)
}
