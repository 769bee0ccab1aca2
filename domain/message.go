package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MessageType discriminates how Content is rendered. Image and file
// messages carry a data URI in Content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// previewLength bounds the content excerpt carried by summaries and
// offline notifications.
const previewLength = 120

// Message represents an immutable chat event. Read is the only mutable
// flag: one marker per message, not one per participant.
type Message struct {
	ID             uuid.UUID
	ConversationID string
	SenderID       string
	Content        string
	Type           MessageType
	CreatedAt      time.Time
	Read           bool
}

// Preview returns the truncated excerpt used by conversation summaries
// and offline notifications. Non-text messages collapse to a marker so
// data URIs never leak into notification payloads.
func (m Message) Preview() string {
	switch m.Type {
	case MessageTypeImage:
		return "[image]"
	case MessageTypeFile:
		return "[file]"
	}
	if utf8.RuneCountInString(m.Content) <= previewLength {
		return m.Content
	}
	runes := []rune(m.Content)
	return string(runes[:previewLength]) + "…"
}
