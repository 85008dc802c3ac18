package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaPublisher produces events keyed by beneficiary id so one
// beneficiary's notifications stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaPublisher(producer Producer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish enqueues event asynchronously. The request context is not used for
// delivery so a finished HTTP request does not cancel the record.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode change request event", "event_type", event.Type, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.BeneficiaryID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}
	logger := p.logger
	p.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			logger.Error("failed to publish change request event",
				"event_type", event.Type,
				"change_request_id", event.ChangeRequestID,
				"error", err,
			)
		}
	})
}
