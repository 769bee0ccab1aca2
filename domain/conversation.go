// Package domain contains core concepts of the chat relay.
// Conversations, messages and presence are defined here.
// No runtime, network, or UI logic should be added.
package domain

import (
	"time"

	"github.com/samber/lo"
)

// RoomID names a broadcast scope. Conversation rooms group the
// participants of one conversation, personal rooms address every
// connection of a single user.
type RoomID string

const (
	conversationRoomPrefix = "conversation:"
	personalRoomPrefix     = "user:"
)

func ConversationRoom(conversationID string) RoomID {
	return RoomID(conversationRoomPrefix + conversationID)
}

func PersonalRoom(userID string) RoomID {
	return RoomID(personalRoomPrefix + userID)
}

// Conversation is the persisted participant list plus the denormalized
// summary shown in conversation lists.
type Conversation struct {
	ID            string
	Participants  []string // user ids, unordered
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// HasParticipant reports exact membership of userID. Membership is a
// set lookup: an id being a prefix or substring of another id grants
// nothing.
func (c Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.Participants, userID)
}

func (c Conversation) Room() RoomID {
	return ConversationRoom(c.ID)
}
