package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"onramp/internal/platform/kafka"
)

// KafkaSink publishes notifications to the notifications topic, keyed by
// application so per-customer ordering holds within a partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(producer *kafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.producer.Publish(ctx, s.topic, []byte(n.ApplicationID), payload)
}
