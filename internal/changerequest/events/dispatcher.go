package events

import (
	"context"
	"log/slog"
)

const defaultBuffer = 256

// Dispatcher decouples callers from a slow publisher. Publish enqueues
// without blocking and Run drains the queue into the next publisher. When
// the queue is full the event is dropped and logged.
type Dispatcher struct {
	next   Publisher
	inbox  chan Event
	logger *slog.Logger
}

func NewDispatcher(next Publisher, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{next: next, inbox: make(chan Event, buffer), logger: logger}
}

func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	select {
	case d.inbox <- event:
	default:
		d.logger.WarnContext(ctx, "change request event dropped, dispatcher queue full",
			"event_type", event.Type,
			"change_request_id", event.ChangeRequestID,
		)
	}
}

// Run delivers queued events until ctx is done, then delivers whatever is
// still queued and returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case event := <-d.inbox:
			d.next.Publish(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.inbox:
			d.next.Publish(context.Background(), event)
		default:
			return
		}
	}
}
