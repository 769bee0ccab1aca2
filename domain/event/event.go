// Package event defines the closed set of notifications the relay can
// push to clients, plus the routing envelope used by the fan-out
// worker. Only types in this package satisfy Event.
package event

import (
	"time"

	"chat-relay/domain"
)

// Event is one server to client notification. Kind is the wire
// discriminator written into the envelope.
type Event interface {
	Kind() string
	isEvent()
}

// Outbound couples an event with its fan-out target. ExcludeConn keeps
// an echo away from the originating connection, ExcludeUser keeps a
// notice away from every connection of one user.
type Outbound struct {
	Room        domain.RoomID
	Event       Event
	ExcludeConn string
	ExcludeUser string
}

// MessagePayload is the wire form of a persisted message, with the
// sender display attributes already resolved.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderAvatar   string    `json:"senderAvatar,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
}

// ConversationSummary is the wire form of a conversation list entry.
type ConversationSummary struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

// SearchHit is one scored match in a search_results payload.
type SearchHit struct {
	MessageID string  `json:"messageId"`
	SenderID  string  `json:"senderId"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

type Authenticated struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token,omitempty"`
}

func (Authenticated) Kind() string { return "authenticated" }
func (Authenticated) isEvent()     {}

type AuthenticationError struct {
	Message string `json:"message"`
}

func (AuthenticationError) Kind() string { return "authentication_error" }
func (AuthenticationError) isEvent()     {}

type JoinedConversation struct {
	ConversationID string `json:"conversationId"`
}

func (JoinedConversation) Kind() string { return "joined_conversation" }
func (JoinedConversation) isEvent()     {}

type NewMessage struct {
	ConversationID string         `json:"conversationId"`
	Message        MessagePayload `json:"message"`
}

func (NewMessage) Kind() string { return "new_message" }
func (NewMessage) isEvent()     {}

type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (UserTyping) Kind() string { return "user_typing" }
func (UserTyping) isEvent()     {}

type MessagesRead struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReadBy         string   `json:"readBy"`
}

func (MessagesRead) Kind() string { return "messages_read" }
func (MessagesRead) isEvent()     {}

type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (UserStatus) Kind() string { return "user_status" }
func (UserStatus) isEvent()     {}

type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
}

func (ConversationList) Kind() string { return "conversation_list" }
func (ConversationList) isEvent()     {}

type MessageHistory struct {
	ConversationID string           `json:"conversationId"`
	Messages       []MessagePayload `json:"messages"`
	NextCursor     string           `json:"nextCursor,omitempty"`
}

func (MessageHistory) Kind() string { return "message_history" }
func (MessageHistory) isEvent()     {}

type SearchResults struct {
	ConversationID string      `json:"conversationId"`
	Query          string      `json:"query"`
	Hits           []SearchHit `json:"hits"`
}

func (SearchResults) Kind() string { return "search_results" }
func (SearchResults) isEvent()     {}

// Error is the generic failure notice for authenticated actions.
type Error struct {
	Message string `json:"message"`
}

func (Error) Kind() string { return "error" }
func (Error) isEvent()     {}
