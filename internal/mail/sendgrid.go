package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client   *sendgrid.Client
	fromName string
}

// NewSendGridSender returns a sender using apiKey.  fromName is the display
// name attached to the From address.
func NewSendGridSender(apiKey, fromName string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), fromName: fromName}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	if m.From == "" {
		return ErrNotConfigured
	}
	if !ValidAddress(m.To) {
		return ErrInvalidAddress
	}
	msg := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, m.From),
		m.Subject,
		sgmail.NewEmail("", m.To),
		m.Text,
		m.HTML,
	)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
