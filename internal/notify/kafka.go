package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaNotifier publishes alerts to a Kafka topic keyed by advocate, so one
// advocate's alerts stay ordered within a partition.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: topic}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(alert.AdvocateID),
		Value: payload,
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce alert: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() {
	n.client.Close()
}
