package history

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink exports jam events as JSON records keyed by event id.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka sink needs brokers and a topic")
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}, nil
}

func (k *KafkaSink) SaveJam(ctx context.Context, ev JamEvent) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ID),
		Value: encodeJSON(ev),
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
