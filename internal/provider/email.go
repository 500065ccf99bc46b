package provider

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPEmailSender delivers email through an SMTP relay.
type SMTPEmailSender struct {
	from string
	send func(m *gomail.Message) error
}

func NewSMTPEmailSender(host string, port int, username, password, from string) (*SMTPEmailSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	dialer := gomail.NewDialer(host, port, username, password)

	return &SMTPEmailSender{
		from: from,
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
	}, nil
}

// Send delivers one email. SMTP gives no provider-side message id back,
// so success results carry an empty MessageID.
func (s *SMTPEmailSender) Send(_ context.Context, recipient, subject, body string) DeliveryResult {
	if s == nil || s.send == nil {
		return Undelivered("email sender is not initialized")
	}
	if strings.TrimSpace(recipient) == "" {
		return Undelivered("email recipient is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody(bodyContentType(body), body)

	if err := s.send(m); err != nil {
		return Undelivered(fmt.Sprintf("smtp send failed: %v", err))
	}

	return Delivered("")
}

func bodyContentType(body string) string {
	if strings.Contains(body, "<html") {
		return "text/html"
	}
	return "text/plain"
}
