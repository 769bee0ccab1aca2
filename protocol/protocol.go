// Package protocol defines the JSON envelopes exchanged over the
// websocket: client actions inbound, server events outbound. Every
// frame is {"type": "<kind>", "payload": {...}}.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"chat-relay/domain/event"
	"chat-relay/errors"
)

var validate = validator.New()

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Action is one client to server request. Only types in this package
// satisfy it.
type Action interface {
	ActionName() string
	isAction()
}

const (
	ActionAuthenticate      = "authenticate"
	ActionJoinConversation  = "join_conversation"
	ActionSendMessage       = "send_message"
	ActionTypingStart       = "typing_start"
	ActionTypingStop        = "typing_stop"
	ActionMarkRead          = "mark_read"
	ActionStatusUpdate      = "status_update"
	ActionListConversations = "list_conversations"
	ActionGetMessages       = "get_messages"
	ActionSearchMessages    = "search_messages"
)

type Authenticate struct {
	IdentityClaim string `json:"identityClaim" validate:"required,max=512"`
}

func (Authenticate) ActionName() string { return ActionAuthenticate }
func (Authenticate) isAction()          {}

type JoinConversation struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
}

func (JoinConversation) ActionName() string { return ActionJoinConversation }
func (JoinConversation) isAction()          {}

type SendMessage struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	Content        string `json:"content" validate:"required"`
	// Type defaults to text when omitted.
	Type string `json:"type" validate:"omitempty,oneof=text image file"`
}

func (SendMessage) ActionName() string { return ActionSendMessage }
func (SendMessage) isAction()          {}

// Typing covers both typing_start and typing_stop. IsTyping is derived
// from the envelope type, not from the payload.
type Typing struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	IsTyping       bool   `json:"-"`
}

func (t Typing) ActionName() string {
	if t.IsTyping {
		return ActionTypingStart
	}
	return ActionTypingStop
}
func (Typing) isAction() {}

type MarkRead struct {
	ConversationID string   `json:"conversationId" validate:"required,max=128"`
	MessageIDs     []string `json:"messageIds" validate:"required,min=1,max=100,dive,uuid4"`
}

func (MarkRead) ActionName() string { return ActionMarkRead }
func (MarkRead) isAction()          {}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

func (StatusUpdate) ActionName() string { return ActionStatusUpdate }
func (StatusUpdate) isAction()          {}

type ListConversations struct{}

func (ListConversations) ActionName() string { return ActionListConversations }
func (ListConversations) isAction()          {}

type GetMessages struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	Cursor         string `json:"cursor,omitempty" validate:"max=256"`
}

func (GetMessages) ActionName() string { return ActionGetMessages }
func (GetMessages) isAction()          {}

type SearchMessages struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	Query          string `json:"query" validate:"required,max=256"`
	Limit          int    `json:"limit" validate:"omitempty,min=1,max=50"`
}

func (SearchMessages) ActionName() string { return ActionSearchMessages }
func (SearchMessages) isAction()          {}

// Decode parses one inbound frame into its action, including payload
// validation. Every failure comes back as a validation error.
func Decode(raw []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Validation("malformed envelope", err)
	}

	var action Action
	switch env.Type {
	case ActionAuthenticate:
		action = &Authenticate{}
	case ActionJoinConversation:
		action = &JoinConversation{}
	case ActionSendMessage:
		action = &SendMessage{}
	case ActionTypingStart:
		action = &Typing{IsTyping: true}
	case ActionTypingStop:
		action = &Typing{}
	case ActionMarkRead:
		action = &MarkRead{}
	case ActionStatusUpdate:
		action = &StatusUpdate{}
	case ActionListConversations:
		action = &ListConversations{}
	case ActionGetMessages:
		action = &GetMessages{}
	case ActionSearchMessages:
		action = &SearchMessages{}
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown action %q", env.Type), nil)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, action); err != nil {
			return nil, errors.Validation("malformed payload", err)
		}
	}
	if err := validate.Struct(action); err != nil {
		return nil, errors.Validation("invalid payload", err)
	}
	return action, nil
}

// Encode wraps an action for the wire. Used by clients.
func Encode(a Action) ([]byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: a.ActionName(), Payload: payload})
}

// EncodeEvent wraps a server event for the wire.
func EncodeEvent(e event.Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.Kind(), Payload: payload})
}

// DecodeEvent parses one outbound frame back into its event. Used by
// clients and end to end tests.
func DecodeEvent(raw []byte) (event.Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Validation("malformed envelope", err)
	}

	switch env.Type {
	case "authenticated":
		return decodeAs[event.Authenticated](env.Payload)
	case "authentication_error":
		return decodeAs[event.AuthenticationError](env.Payload)
	case "joined_conversation":
		return decodeAs[event.JoinedConversation](env.Payload)
	case "new_message":
		return decodeAs[event.NewMessage](env.Payload)
	case "user_typing":
		return decodeAs[event.UserTyping](env.Payload)
	case "messages_read":
		return decodeAs[event.MessagesRead](env.Payload)
	case "user_status":
		return decodeAs[event.UserStatus](env.Payload)
	case "conversation_list":
		return decodeAs[event.ConversationList](env.Payload)
	case "message_history":
		return decodeAs[event.MessageHistory](env.Payload)
	case "search_results":
		return decodeAs[event.SearchResults](env.Payload)
	case "error":
		return decodeAs[event.Error](env.Payload)
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown event %q", env.Type), nil)
	}
}

func decodeAs[E event.Event](payload json.RawMessage) (event.Event, error) {
	var e E
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Validation("malformed event payload", err)
		}
	}
	return e, nil
}
