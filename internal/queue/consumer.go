package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// DeliverFunc sends one requested message through a real mail transport.
type DeliverFunc func(ctx context.Context, m MailRequested) error

// Consumer listens to the mail.outbound queue, hands each message to Deliver
// and appends one JSON line per message to the delivery journal.
type Consumer struct {
	URL     string
	Deliver DeliverFunc
	Journal zerolog.Logger
	Log     *zap.Logger
}

// Run connects to RabbitMQ, declares the queue (durable), and starts
// consuming messages.  It runs a reconnect loop with exponential backoff and
// only returns once ctx is cancelled; processing errors are logged and the
// offending message is rejected so the server continues operating.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("mail-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("mail-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warn("mail-consumer: set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(MailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(MailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.Log.Error("mail-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// OpenJournal opens (creating if needed) dir/mail.log for appending and
// returns a zerolog logger writing one JSON line per entry into it.
func OpenJournal(dir string) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "mail.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open journal: %w", err)
	}
	return zerolog.New(f).With().Timestamp().Logger(), f, nil
}

// Handle decodes and delivers one message body and journals the outcome.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var m MailRequested
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	err := c.Deliver(ctx, m)
	ev := c.Journal.Info()
	if err != nil {
		ev = c.Journal.Error().Err(err)
	}
	ev.Str("id", m.ID).
		Str("kind", m.Kind).
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("requested_at", m.RequestedAt).
		Bool("delivered", err == nil).
		Msg("mail")
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
