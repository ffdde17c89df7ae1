package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"affiliate-tracking-system/internal/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTopic struct {
	messages []kafka.Message
	closed   bool
}

func (m *memoryTopic) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *memoryTopic) ReadMessage(context.Context) (kafka.Message, error) {
	if len(m.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

func (m *memoryTopic) Close() error {
	m.closed = true
	return nil
}

func TestPublishAndTail(t *testing.T) {
	topic := &memoryTopic{}
	publisher := &KafkaPublisher{writer: topic, logger: logger.Discard()}

	event, err := NewEvent(EventLeadCreated, map[string]string{"trackingId": "site-20"})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), "site-20", event))

	require.Len(t, topic.messages, 1)
	assert.Equal(t, "site-20", string(topic.messages[0].Key))
	assert.Equal(t, EventLeadCreated, string(topic.messages[0].Headers[0].Value))

	topic.messages = append(topic.messages, kafka.Message{Value: []byte("not json")})

	consumer := &Consumer{reader: topic, logger: logger.Discard()}
	var got []Event
	err = consumer.Tail(context.Background(), func(e Event) error {
		got = append(got, e)
		return nil
	})
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 1, "undecodable messages are skipped")
	assert.Equal(t, event.ID, got[0].ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, "site-20", payload["trackingId"])

	require.NoError(t, consumer.Close())
	assert.True(t, topic.closed)
}

func TestTailStopsOnHandlerError(t *testing.T) {
	topic := &memoryTopic{}
	event, _ := NewEvent(EventConversionSent, nil)
	raw, _ := json.Marshal(event)
	topic.messages = []kafka.Message{{Value: raw}, {Value: raw}}

	consumer := &Consumer{reader: topic, logger: logger.Discard()}
	stop := errors.New("stop")
	calls := 0
	err := consumer.Tail(context.Background(), func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "k", Event{}))
	assert.NoError(t, p.Close())
}
