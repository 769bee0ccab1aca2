package main

import (
	"chat-relay/domain/event"
)

// timeline accumulates the displayed messages of one conversation.
// Live deliveries and history pages overlap, so everything passes
// through here before reaching the terminal.
type timeline struct {
	seen     map[string]struct{}
	messages []event.MessagePayload
}

func newTimeline() *timeline {
	return &timeline{seen: make(map[string]struct{})}
}

// Observe records one message and reports whether it was new. The
// slice keeps CreatedAt order however the copies arrive, ties keep
// their arrival order.
func (t *timeline) Observe(msg event.MessagePayload) bool {
	if _, dup := t.seen[msg.ID]; dup {
		return false
	}
	t.seen[msg.ID] = struct{}{}

	i := len(t.messages)
	for i > 0 && t.messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	t.messages = append(t.messages, event.MessagePayload{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
	return true
}
