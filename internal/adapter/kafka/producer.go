package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
)

// LocationProducer writes driver samples to the driver-locations topic
type LocationProducer struct {
	writer *kafka.Writer
}

func NewLocationProducer(brokers []string, topic string) *LocationProducer {
	return &LocationProducer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

func (p *LocationProducer) Publish(ctx context.Context, samples ...models.LocationSample) error {
	const op = "LocationProducer.Publish"

	msgs := make([]kafka.Message, 0, len(samples))
	for _, s := range samples {
		b, err := json.Marshal(NewLocationMessage(s))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		msgs = append(msgs, kafka.Message{Key: messageKey(s.DriverID), Value: b})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *LocationProducer) Close() error {
	return p.writer.Close()
}
