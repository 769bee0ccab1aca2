package main

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
)

func payload(id string, at time.Time, content string) event.MessagePayload {
	return event.MessagePayload{
		ID:             id,
		ConversationID: "general",
		SenderID:       "alice",
		SenderName:     "Alice",
		Content:        content,
		Type:           "text",
		CreatedAt:      at,
	}
}

func TestTimeline_CollapsesDuplicateDeliveries(t *testing.T) {
	req := require.New(t)
	tl := newTimeline()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Given a message already on screen
	req.True(tl.Observe(payload("m-1", at, "hello")))

	// When the same message comes back through a history page
	// Then it is reported as seen and the timeline keeps one copy
	req.False(tl.Observe(payload("m-1", at, "hello")))
	req.Len(tl.messages, 1)
}

func TestTimeline_KeepsTimestampOrder(t *testing.T) {
	req := require.New(t)
	tl := newTimeline()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Given deliveries that arrived out of order
	req.True(tl.Observe(payload("m-2", base.Add(2*time.Second), "second")))
	req.True(tl.Observe(payload("m-3", base.Add(3*time.Second), "third")))
	req.True(tl.Observe(payload("m-1", base.Add(time.Second), "first")))

	// Then the timeline reads in creation order
	ids := lo.Map(tl.messages, func(msg event.MessagePayload, _ int) string { return msg.ID })
	req.Equal([]string{"m-1", "m-2", "m-3"}, ids)
}

func TestTimeline_TiesKeepArrivalOrder(t *testing.T) {
	req := require.New(t)
	tl := newTimeline()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Given two messages stamped in the same instant
	req.True(tl.Observe(payload("m-a", at, "first in")))
	req.True(tl.Observe(payload("m-b", at, "second in")))

	// Then arrival order breaks the tie
	req.Equal("m-a", tl.messages[0].ID)
	req.Equal("m-b", tl.messages[1].ID)
}
