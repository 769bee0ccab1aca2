package ws

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// Sink is the per-connection delivery buffer. The fan-out worker and
// the dispatch loop write into it, the connection's writer goroutine
// drains it.
type Sink struct {
	log    *slog.Logger
	connID string
	Events chan event.Event
}

func NewSink(log *slog.Logger, connID string, bufferSize int) *Sink {
	return &Sink{
		log:    log,
		connID: connID,
		Events: make(chan event.Event, bufferSize),
	}
}

var _ contract.EventSink = (*Sink)(nil)

// Consume hands the event to the writer goroutine. A full buffer drops
// the event for this connection only, the room fan-out is never slowed
// down by one slow consumer.
func (s *Sink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Warn("Connection buffer full, dropping event",
			slog.String("conn_id", s.connID),
			slog.String("kind", e.Kind()))
		return nil
	}
}
