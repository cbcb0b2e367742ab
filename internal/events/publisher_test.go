package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingChannel struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.key = key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func TestRabbitPublisherPublish(t *testing.T) {
	ch := &recordingChannel{}
	p := &RabbitPublisher{ch: ch, queue: DefaultQueue, log: zap.NewNop()}

	at := time.Date(2024, 6, 10, 10, 15, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Type:          "APPOINTMENT_BOOKED",
		AppointmentID: 7,
		Payload:       json.RawMessage(`{"doctor_id":2}`),
		OccurredAt:    at,
	})
	require.NoError(t, err)

	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, DefaultQueue, ch.key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "APPOINTMENT_BOOKED", msg.Headers["event_type"])
	assert.JSONEq(t,
		`{"type":"APPOINTMENT_BOOKED","appointment_id":7,"payload":{"doctor_id":2},"occurred_at":"2024-06-10T10:15:00Z"}`,
		string(msg.Body))
}

func TestRabbitPublisherWrapsErrors(t *testing.T) {
	p := &RabbitPublisher{ch: &recordingChannel{err: errors.New("channel closed")}, queue: "q", log: zap.NewNop()}

	err := p.Publish(context.Background(), Event{Type: "APPOINTMENT_CANCELLED", AppointmentID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to q")
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), Event{Type: "X"}))
}
