package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer tails the tracking topic. The CLI uses it to watch leads and
// conversions as they happen.
type Consumer struct {
	reader messageReader
	logger *logrus.Logger
}

func NewConsumer(brokerURL, topic, groupID string, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{brokerURL},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

func (c *Consumer) ReadEvent(ctx context.Context) (Event, error) {
	message, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to read message: %w", err)
	}
	return c.decode(message)
}

func (c *Consumer) decode(message kafka.Message) (Event, error) {
	c.logger.WithFields(logrus.Fields{
		"key":       string(message.Key),
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}).Debug("Successfully read message from Kafka")

	var event Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return Event{}, fmt.Errorf("decode event at offset %d: %w", message.Offset, err)
	}
	return event, nil
}

// Tail hands every event to fn until ctx ends or fn fails. Undecodable
// messages are logged and skipped.
func (c *Consumer) Tail(ctx context.Context, fn func(Event) error) error {
	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		event, err := c.decode(message)
		if err != nil {
			c.logger.WithError(err).Warn("Skipping unreadable event")
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
