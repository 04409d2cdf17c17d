package mail

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/estock/internal/queue"
)

// Publisher is satisfied by the RabbitMQ queue publisher.
type Publisher interface {
	PublishMail(ctx context.Context, ev queue.MailRequested) error
}

// QueueSender hands messages to the broker; the consumer delivers them.
// Send succeeds once the broker has accepted the message.
type QueueSender struct {
	Publisher Publisher
}

func (s QueueSender) Send(ctx context.Context, m Message) error {
	if m.From == "" {
		return ErrNotConfigured
	}
	if !ValidAddress(m.To) {
		return ErrInvalidAddress
	}
	return s.Publisher.PublishMail(ctx, queue.MailRequested{
		ID:          uuid.NewString(),
		To:          m.To,
		From:        m.From,
		Subject:     m.Subject,
		HTML:        m.HTML,
		Text:        m.Text,
		Kind:        m.Kind,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Deliverer adapts a direct Sender to the queue consumer.
func Deliverer(s Sender) queue.DeliverFunc {
	return func(ctx context.Context, ev queue.MailRequested) error {
		return s.Send(ctx, Message{
			To:      ev.To,
			From:    ev.From,
			Subject: ev.Subject,
			HTML:    ev.HTML,
			Text:    ev.Text,
			Kind:    ev.Kind,
		})
	}
}
