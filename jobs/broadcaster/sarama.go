package broadcaster

import (
	"context"

	"github.com/IBM/sarama"
)

// SaramaPublisher sends events with a synchronous sarama producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewSaramaPublisherFromProducer(producer, topic), nil
}

// NewSaramaPublisherFromProducer wraps an existing producer.
func NewSaramaPublisherFromProducer(p sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: p, topic: topic}
}

// Publish blocks until the broker acknowledges the message. sarama has
// no per-call context; ctx is only checked before sending.
func (p *SaramaPublisher) Publish(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
