package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// EventFanout drains the broadcast channel and delivers each outbound
// event to the permanent sinks plus every member of the target room.
//
// Delivery is best effort. A sink that cannot keep up loses events,
// the relay does not slow down for it. Events published for the same
// room leave in publication order.
type EventFanout struct {
	log            *slog.Logger
	permanentSinks []contract.EventSink
	rooms          contract.IRooms
	broadcasts     <-chan event.Outbound
	sinkTimeout    time.Duration
}

func NewEventFanout(
	log *slog.Logger,
	permanentSinks []contract.EventSink,
	rooms contract.IRooms,
	broadcasts <-chan event.Outbound,
	sinkTimeout time.Duration,
) *EventFanout {
	return &EventFanout{
		log:            log,
		permanentSinks: permanentSinks,
		rooms:          rooms,
		broadcasts:     broadcasts,
		sinkTimeout:    sinkTimeout,
	}
}

var _ contract.Worker = (*EventFanout)(nil)

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case out := <-w.broadcasts:
			w.Fanout(ctx, out)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout delivers one outbound event. ExcludeConn filters a single
// connection (typing echo suppression), ExcludeUser filters every
// connection of a user (read notices skip the marker's devices).
func (w *EventFanout) Fanout(ctx context.Context, out event.Outbound) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, out.Event)
	}

	for _, member := range w.rooms.Members(out.Room) {
		if member.ConnID == out.ExcludeConn {
			continue
		}
		if out.ExcludeUser != "" && member.UserID == out.ExcludeUser {
			continue
		}
		w.consume(ctx, member.Sink, out.Event)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.Event) {
	consumeCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	if err := sink.Consume(consumeCtx, evt); err != nil {
		w.log.Warn("Sink rejected event",
			slog.String("kind", evt.Kind()),
			slog.Any("error", err))
	}
}
