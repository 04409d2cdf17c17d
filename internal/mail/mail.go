// Package mail sends transactional email: account provisioning and
// password-reset links.  Senders either deliver directly through SendGrid,
// publish to the mail queue for the background consumer, or only log.
package mail

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// ErrNotConfigured is returned when no sender credentials are configured.
var ErrNotConfigured = errors.New("email sender not configured")

// ErrInvalidAddress is returned for recipients that are not valid addresses.
var ErrInvalidAddress = errors.New("invalid email address")

// Message is one rendered email.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
	Text    string
	Kind    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Unconfigured is the Sender used when neither an API key nor a queue is
// available.  Every send fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Send(context.Context, Message) error { return ErrNotConfigured }

// ValidAddress reports whether s parses as a single bare address.
func ValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
