package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Mail transports.
const (
	TransportDirect = "direct" // send through SendGrid in the request
	TransportQueue  = "queue"  // publish to RabbitMQ; the consumer sends
	TransportLog    = "log"    // development: log instead of sending
)

// MailConfig is read from MAIL_* variables.
type MailConfig struct {
	From           string `envconfig:"FROM"`
	BrandName      string `envconfig:"BRAND_NAME" default:"E-Stock"`
	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY"`
	Transport      string `envconfig:"TRANSPORT" default:"direct"`
	JournalDir     string `envconfig:"JOURNAL_DIR" default:"logs"`
}

func LoadMailConfig() (MailConfig, error) {
	var m MailConfig
	if err := envconfig.Process("MAIL", &m); err != nil {
		return MailConfig{}, err
	}
	if m.Transport == "" {
		m.Transport = TransportDirect
	}
	if m.BrandName == "" {
		m.BrandName = "E-Stock"
	}
	switch m.Transport {
	case TransportDirect, TransportQueue, TransportLog:
	default:
		return MailConfig{}, fmt.Errorf("invalid MAIL_TRANSPORT %q", m.Transport)
	}
	return m, nil
}

// Configured reports whether mail can be delivered at all.  Without a sender
// address, or without an API key for a SendGrid transport, the provisioning
// endpoint answers "Email sender not configured".
func (m MailConfig) Configured() bool {
	if m.From == "" {
		return false
	}
	return m.Transport == TransportLog || m.SendGridAPIKey != ""
}
