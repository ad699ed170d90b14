package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer    MessageWriter
	appOrigin string
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
}

func NewKafkaNotifier(writer MessageWriter, appOrigin string) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, appOrigin: appOrigin}
}

func (n *KafkaNotifier) SendVerification(ctx context.Context, msg Message) error {
	return n.publish(ctx, newEvent(EventVerifyEmail, n.appOrigin, msg))
}

func (n *KafkaNotifier) SendPasswordReset(ctx context.Context, msg Message) error {
	return n.publish(ctx, newEvent(EventPasswordReset, n.appOrigin, msg))
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	// Keyed by email so every event for one account lands on the same partition.
	if err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Email),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}
