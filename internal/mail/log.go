package mail

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogSender logs messages instead of sending them.  Sent keeps every
// message so development tooling and tests can read reset links back.
type LogSender struct {
	Log *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	if !ValidAddress(m.To) {
		return ErrInvalidAddress
	}
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	if s.Log != nil {
		s.Log.Info("mail not sent (log transport)",
			zap.String("to", m.To), zap.String("kind", m.Kind), zap.String("subject", m.Subject))
	}
	return nil
}

// Sent returns a copy of every message passed to Send.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
