package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fathima-sithara/chat-relay/internal/models"
)

const EventMessageSent = "message.sent"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes message.sent events for messages accepted over the socket.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w}
}

// PublishMessageSent keys by conversation so one conversation stays on one partition.
func (p *Producer) PublishMessageSent(ctx context.Context, ev models.MessageEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(ev.ConversationID),
		Value:   b,
		Time:    time.Now(),
		Headers: []kafkago.Header{{Key: "event", Value: []byte(EventMessageSent)}},
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
