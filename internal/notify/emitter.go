package notify

import (
	"context"
	"log/slog"
)

// Emitter decouples workflow code from sink latency: Emit never blocks beyond
// the buffered channel, and the Run loop absorbs sink failures by logging
// them. Notifications are best-effort by contract.
type Emitter struct {
	sink   Sink
	inbox  chan Notification
	logger *slog.Logger
}

func NewEmitter(sink Sink, buffer int, logger *slog.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{
		sink:   sink,
		inbox:  make(chan Notification, buffer),
		logger: logger,
	}
}

// Emit queues a notification. When the buffer is full the notification is
// dropped with a warning rather than stalling a status transition.
func (e *Emitter) Emit(n Notification) {
	select {
	case e.inbox <- n:
	default:
		e.logger.Warn("notification buffer full, dropping",
			"recipient", n.Recipient, "subject", n.Subject)
	}
}

// Run consumes the inbox until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-e.inbox:
			if err := e.sink.Notify(ctx, n); err != nil {
				e.logger.Warn("notification delivery failed",
					"recipient", n.Recipient, "subject", n.Subject, "error", err)
			}
		}
	}
}
