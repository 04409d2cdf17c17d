package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/queue"
)

type fakePublisher struct {
	events []queue.MailRequested
	err    error
}

func (p *fakePublisher) PublishMail(_ context.Context, ev queue.MailRequested) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestProvisioningTemplateEscapes(t *testing.T) {
	m, err := Provisioning("E-Stock", "noreply@estock.test", "bob@example.com", "<Bob>", "https://x.test/reset?token=a&b=c")
	require.NoError(t, err)
	assert.Equal(t, KindProvisioning, m.Kind)
	assert.Equal(t, "E-Stock: Set up the password for your account", m.Subject)
	assert.Contains(t, m.HTML, "&lt;Bob&gt;")
	assert.Contains(t, m.HTML, "token=a&amp;b=c")
	assert.Contains(t, m.Text, "https://x.test/reset?token=a&b=c")
}

func TestPasswordResetTemplate(t *testing.T) {
	m, err := PasswordReset("E-Stock", "noreply@estock.test", "bob@example.com", "", "https://x.test/r")
	require.NoError(t, err)
	assert.Equal(t, KindPasswordReset, m.Kind)
	assert.Contains(t, m.HTML, "Hello,")
}

func TestQueueSenderPublishes(t *testing.T) {
	pub := &fakePublisher{}
	s := QueueSender{Publisher: pub}
	err := s.Send(context.Background(), Message{To: "a@b.test", From: "n@b.test", Subject: "s", HTML: "<p>h</p>", Kind: KindPasswordReset})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "a@b.test", ev.To)
	assert.Equal(t, KindPasswordReset, ev.Kind)

	pub.err = errors.New("broker down")
	assert.Error(t, s.Send(context.Background(), Message{To: "a@b.test", From: "n@b.test"}))
	assert.ErrorIs(t, s.Send(context.Background(), Message{To: "a@b.test"}), ErrNotConfigured)
}

func TestDelivererRoundTrip(t *testing.T) {
	ls := &LogSender{}
	d := Deliverer(ls)
	require.NoError(t, d(context.Background(), queue.MailRequested{To: "a@b.test", Subject: "hi", Kind: KindProvisioning}))
	sent := ls.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Subject)
}

func TestValidation(t *testing.T) {
	assert.True(t, ValidAddress("a@b.test"))
	assert.False(t, ValidAddress("Bob <a@b.test>"))
	assert.False(t, ValidAddress("nope"))
	assert.ErrorIs(t, (&LogSender{}).Send(context.Background(), Message{To: "nope"}), ErrInvalidAddress)
	assert.ErrorIs(t, Unconfigured{}.Send(context.Background(), Message{}), ErrNotConfigured)
}
