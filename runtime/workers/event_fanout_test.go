package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
)

func TestEventFanout_DeliversToPermanentAndRoomSinks(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRooms := mocks.NewMockIRooms(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	aliceSink := mocks.NewMockEventSink(ctrl)
	bobSink := mocks.NewMockEventSink(ctrl)

	room := domain.ConversationRoom("c1")
	evt := event.UserTyping{ConversationID: "c1", UserID: "alice", IsTyping: true}
	out := event.Outbound{Room: room, Event: evt}

	// Given a room with two members
	mockRooms.EXPECT().Members(room).Return([]contract.RoomMember{
		{ConnID: "conn-alice", UserID: "alice", Sink: aliceSink},
		{ConnID: "conn-bob", UserID: "bob", Sink: bobSink},
	}).Times(1)

	// Then the permanent sink and both members receive the event
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	aliceSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	bobSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanout := NewEventFanout(log, []contract.EventSink{permanentSink}, mockRooms, nil, time.Second)

	// When the event is fanned out
	fanout.Fanout(context.Background(), out)
}

func TestEventFanout_Exclusions(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRooms := mocks.NewMockIRooms(ctrl)
	aliceLaptop := mocks.NewMockEventSink(ctrl)
	alicePhone := mocks.NewMockEventSink(ctrl)
	bobLaptop := mocks.NewMockEventSink(ctrl)
	bobPhone := mocks.NewMockEventSink(ctrl)
	caroSink := mocks.NewMockEventSink(ctrl)

	room := domain.ConversationRoom("c1")
	evt := event.MessagesRead{ConversationID: "c1", ReadBy: "bob"}
	out := event.Outbound{
		Room:        room,
		Event:       evt,
		ExcludeConn: "conn-alice-laptop",
		ExcludeUser: "bob",
	}

	mockRooms.EXPECT().Members(room).Return([]contract.RoomMember{
		{ConnID: "conn-alice-laptop", UserID: "alice", Sink: aliceLaptop},
		{ConnID: "conn-alice-phone", UserID: "alice", Sink: alicePhone},
		{ConnID: "conn-bob-laptop", UserID: "bob", Sink: bobLaptop},
		{ConnID: "conn-bob-phone", UserID: "bob", Sink: bobPhone},
		{ConnID: "conn-caro", UserID: "caro", Sink: caroSink},
	}).Times(1)

	// Then only the connections outside both exclusions are served
	alicePhone.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	caroSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanout := NewEventFanout(log, nil, mockRooms, nil, time.Second)
	fanout.Fanout(context.Background(), out)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRooms := mocks.NewMockIRooms(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)

	room := domain.ConversationRoom("c1")
	out := event.Outbound{Room: room, Event: event.UserStatus{UserID: "alice", Status: "online"}}

	mockRooms.EXPECT().Members(room).Return([]contract.RoomMember{
		{ConnID: "conn-alice", UserID: "alice", Sink: slowSink},
	}).Times(1)

	// Given a sink blocking until its context expires
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.Event) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		}).
		Times(1)

	fanout := NewEventFanout(log, nil, mockRooms, nil, 20*time.Millisecond)

	// When the event is fanned out
	start := time.Now()
	fanout.Fanout(context.Background(), out)

	// Then the slow sink could not stall delivery past its timeout
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestEventFanout_RunDrainsChannel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRooms := mocks.NewMockIRooms(ctrl)
	memberSink := mocks.NewMockEventSink(ctrl)

	room := domain.ConversationRoom("c1")
	evt := event.NewMessage{ConversationID: "c1"}

	mockRooms.EXPECT().Members(room).Return([]contract.RoomMember{
		{ConnID: "conn-alice", UserID: "alice", Sink: memberSink},
	}).Times(1)

	delivered := make(chan struct{})
	memberSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, e event.Event) error {
			close(delivered)
			return nil
		}).
		Times(1)

	broadcasts := make(chan event.Outbound, 1)
	fanout := NewEventFanout(log, nil, mockRooms, broadcasts, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	// When an event is published on the channel
	broadcasts <- event.Outbound{Room: room, Event: evt}

	select {
	case <-delivered:
	case <-time.After(1 * time.Second):
		req.Fail("Event was not delivered in time")
	}

	// Then cancelling the context stops the worker
	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("Worker did not stop on context cancellation")
	}
}
