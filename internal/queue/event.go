// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers them.
package queue

// MailQueueName is the durable queue transactional email is published to.
const MailQueueName = "mail.outbound"

// MailRequested is published when the application wants an email sent.  It
// carries the fully rendered message so the consumer never needs to query
// the primary database.
type MailRequested struct {
	ID          string `json:"id"`
	To          string `json:"to"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	HTML        string `json:"html"`
	Text        string `json:"text,omitempty"`
	Kind        string `json:"kind"` // provisioning | password_reset
	RequestedAt string `json:"requested_at"`
}
