// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned so the caller decides whether a failed
// publish fails the request.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/estock/internal/queue"
)

// Publisher publishes to the broker at URL.  Every publish dials its own
// connection; mail volume is a handful of messages per administrative action.
type Publisher struct {
	URL string
	Log *zap.Logger
}

// PublishMail publishes a MailRequested event to the "mail.outbound" queue.
// Messages are marked as persistent.
func (p *Publisher) PublishMail(ctx context.Context, event q.MailRequested) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Error("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Error("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.MailQueueName, // name
		true,            // durable
		false,           // autoDelete
		false,           // exclusive
		false,           // noWait
		nil,             // args
	); err != nil {
		p.Log.Error("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.Log.Error("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    event.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",              // default exchange
		q.MailQueueName, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		pub,
	); err != nil {
		p.Log.Error("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}
