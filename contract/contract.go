//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/domain/search"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IPresence tracks which users currently hold at least one live
// connection. Implementations must be safe for concurrent use and are
// always injected, never global.
type IPresence interface {
	Register(userID, connID string)
	// Deregister reports whether this was the user's last connection.
	Deregister(userID, connID string) (wentOffline bool)
	IsOnline(userID string) bool
	// OnlineSet returns a point-in-time copy of the online user ids.
	OnlineSet() map[string]struct{}
	Stats() (users, connections int)
}

// RoomMember is one connection subscribed to a room.
type RoomMember struct {
	ConnID string
	UserID string
	Sink   EventSink
}

// IRooms is the in-memory subscription table mapping rooms to the
// connections that joined them.
type IRooms interface {
	Join(roomID domain.RoomID, member RoomMember)
	Leave(roomID domain.RoomID, connID string)
	// LeaveAll drops the connection from every room and returns the
	// rooms it was in.
	LeaveAll(connID string) []domain.RoomID
	Members(roomID domain.RoomID) []RoomMember
	InRoom(roomID domain.RoomID, connID string) bool
	Stats() (rooms, subscriptions int)
}

// IdentityStore resolves authentication claims against the user
// accounts owned by the surrounding platform.
type IdentityStore interface {
	// FindUserByIdentity tries the claim verbatim first, then a
	// case-insensitive fallback. Unknown claims yield ErrUserNotFound.
	FindUserByIdentity(ctx context.Context, claim string) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	// ListConversationsForUser returns conversations ordered by recency.
	ListConversationsForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	// UpdateSummary refreshes the denormalized last message fields.
	UpdateSummary(ctx context.Context, id, lastMessage string, at time.Time) error
	CreateConversation(ctx context.Context, conv domain.Conversation) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID, senderID, content string, msgType domain.MessageType) (domain.Message, error)
	// MarkRead flips the read flag on the given messages, skipping the
	// ones authored by excludingSender, and returns the ids actually
	// marked.
	MarkRead(ctx context.Context, conversationID string, ids []uuid.UUID, excludingSender string) ([]uuid.UUID, error)
	// GetMessages pages backwards from cursor (empty means newest) and
	// returns one page newest first plus the cursor for the next page.
	GetMessages(ctx context.Context, conversationID, cursor string) ([]domain.Message, string, error)
}

// MessageIndex is the full-text side channel fed by the fan-out
// pipeline. Indexing lag is acceptable, losing the store is not.
type MessageIndex interface {
	Index(ctx context.Context, msg domain.Message) error
	Search(ctx context.Context, q *search.Query) ([]search.Hit, error)
}

// Notifier delivers out-of-band notifications to users with zero live
// connections. Implementations own their timeouts and retries.
type Notifier interface {
	Notify(ctx context.Context, userID string, summary domain.NotificationSummary) error
}

// RelayStats is a point-in-time snapshot of hub load, exposed by the
// stats endpoint and the telemetry worker.
type RelayStats struct {
	OnlineUsers   int `json:"onlineUsers"`
	Connections   int `json:"connections"`
	Rooms         int `json:"rooms"`
	Subscriptions int `json:"subscriptions"`
	QueueDepth    int `json:"queueDepth"`
	QueueCapacity int `json:"queueCapacity"`
}
