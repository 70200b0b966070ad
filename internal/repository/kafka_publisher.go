package repository

import (
	"context"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	pkgkafka "PulsePrice/pkg/kafka"
)

// KafkaBatchPublisher publishes one message per batch item, keyed by token
// id so a token's prices stay ordered within a partition.
type KafkaBatchPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBatchPublisher(producer *pkgkafka.Producer, topic string) *KafkaBatchPublisher {
	return &KafkaBatchPublisher{producer: producer, topic: topic}
}

func (p *KafkaBatchPublisher) Name() string { return "kafka" }

func (p *KafkaBatchPublisher) Write(ctx context.Context, b models.Batch) error {
	if len(b.Items) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(b.Items))
	for i, it := range b.Items {
		msgs[i] = pkgkafka.Message{
			Key: []byte(it.TokenID),
			Value: priceMessage{
				TokenID:        it.TokenID,
				Price:          it.Price,
				Timestamp:      it.Timestamp,
				Ohlc:           it.Ohlc,
				Changed:        it.Changed,
				BatchTimestamp: b.Timestamp,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

type priceMessage struct {
	TokenID        string            `json:"tokenId"`
	Price          int64             `json:"price"`
	Timestamp      int64             `json:"timestamp"`
	Ohlc           models.OhlcCandle `json:"ohlc"`
	Changed        bool              `json:"changed"`
	BatchTimestamp int64             `json:"batchTimestamp"`
}

// KafkaLogPublisher ships aggregated error logs to a Kafka topic.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

var _ domrepo.BatchSink = (*KafkaBatchPublisher)(nil)
