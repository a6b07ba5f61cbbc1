// Package broadcaster implements the background job that drains the
// trade outbox and publishes each event to Kafka, either through
// sarama (SaramaPublisher) or kafka-go (infra/kafka.Producer).
package broadcaster
