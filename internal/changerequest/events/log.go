package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	p.logger.InfoContext(ctx, "change request event",
		"event_type", event.Type,
		"change_request_id", event.ChangeRequestID,
		"beneficiary_id", event.BeneficiaryID,
		"status", event.Status,
		"actor_id", event.ActorID,
	)
}
