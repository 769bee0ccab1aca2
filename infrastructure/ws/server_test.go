package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/notify"
	"chat-relay/presence"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
)

// newTestRelay wires a full relay on throwaway storage and returns the
// websocket URL. Alice and Bob share one seeded conversation.
func newTestRelay(t *testing.T) string {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	index := repositories.NewSearchIndex(writer, log)

	seedCtx := context.Background()
	req.NoError(users.CreateUser(seedCtx, domain.User{
		ID: "alice", Username: "alice", DisplayName: "Alice", Identity: "alice@example.com",
	}))
	req.NoError(users.CreateUser(seedCtx, domain.User{
		ID: "bob", Username: "bob", DisplayName: "Bob", Identity: "bob@example.com",
	}))
	req.NoError(conversations.CreateConversation(seedCtx, domain.Conversation{
		ID: "c1", Participants: []string{"alice", "bob"},
	}))

	hub := runtime.NewHub(log, workers.NewSupervisor(log, 0),
		presence.NewRegistry(), runtime.NewRooms(),
		conversations, messages, index, notify.NewLogNotifier(log),
		moderation.Moderator{},
		64, time.Second, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Start(ctx) }()
	t.Cleanup(cancel)

	authService := services.NewAuthService(users, auth.NewTokens("test-secret", time.Hour))
	server := NewServer(log, hub, authService, 16, Timing{
		WriteTimeout: time.Second,
		PongTimeout:  5 * time.Second,
		PingInterval: time.Second,
	})

	httpServer := httptest.NewServer(server.Routes())
	t.Cleanup(httpServer.Close)

	return "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, action protocol.Action) {
	t.Helper()
	raw, err := protocol.Encode(action)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// receive decodes the next event, skipping nothing: tests assert exact
// delivery order per connection.
func receive(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	evt, err := protocol.DecodeEvent(raw)
	require.NoError(t, err)
	return evt
}

func TestServer_AuthenticateThenExchangeMessage(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	alice := dial(t, url)
	bob := dial(t, url)

	// When both users authenticate
	send(t, alice, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	authed, ok := receive(t, alice).(event.Authenticated)
	req.True(ok)
	req.Equal("alice", authed.UserID)
	req.Equal("Alice", authed.DisplayName)
	req.NotEmpty(authed.Token)

	send(t, bob, &protocol.Authenticate{IdentityClaim: "bob@example.com"})
	_, ok = receive(t, bob).(event.Authenticated)
	req.True(ok)

	// When Alice posts into the shared conversation
	send(t, alice, &protocol.SendMessage{ConversationID: "c1", Content: "hello bob"})

	// Then both room members receive the broadcast, sender included
	for _, conn := range []*websocket.Conn{alice, bob} {
		evt, ok := receive(t, conn).(event.NewMessage)
		req.True(ok)
		req.Equal("c1", evt.ConversationID)
		req.Equal("hello bob", evt.Message.Content)
		req.Equal("alice", evt.Message.SenderID)
		req.Equal("Alice", evt.Message.SenderName)
	}
}

func TestServer_RejectsActionsBeforeAuthentication(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	conn := dial(t, url)

	// When an unauthenticated connection tries to post
	send(t, conn, &protocol.SendMessage{ConversationID: "c1", Content: "sneaky"})

	// Then it gets an authentication error and nothing else happens
	evt, ok := receive(t, conn).(event.AuthenticationError)
	req.True(ok)
	req.Contains(evt.Message, "not authenticated")
}

func TestServer_AuthenticationFailureIsRetryable(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	conn := dial(t, url)

	// When the first claim resolves to nobody
	send(t, conn, &protocol.Authenticate{IdentityClaim: "stranger@example.com"})
	_, ok := receive(t, conn).(event.AuthenticationError)
	req.True(ok)

	// Then a valid claim on the same transport still succeeds
	send(t, conn, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	authed, ok := receive(t, conn).(event.Authenticated)
	req.True(ok)
	req.Equal("alice", authed.UserID)
}

func TestServer_TokenRoundTripSurvivesReconnect(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	first := dial(t, url)
	send(t, first, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	authed, ok := receive(t, first).(event.Authenticated)
	req.True(ok)
	_ = first.Close()

	// When the issued token is replayed on a fresh transport
	second := dial(t, url)
	send(t, second, &protocol.Authenticate{IdentityClaim: authed.Token})

	// Then the session resumes under the same user
	again, ok := receive(t, second).(event.Authenticated)
	req.True(ok)
	req.Equal("alice", again.UserID)
}

func TestServer_MalformedFrameYieldsError(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	conn := dial(t, url)
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout","payload":{}}`)))

	evt, ok := receive(t, conn).(event.Error)
	req.True(ok)
	req.Contains(evt.Message, "unknown action")
}

func TestServer_NonParticipantJoinIsRejected(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	conn := dial(t, url)
	send(t, conn, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	_, ok := receive(t, conn).(event.Authenticated)
	req.True(ok)

	// When Alice joins a conversation she does not belong to
	send(t, conn, &protocol.JoinConversation{ConversationID: "c-private"})

	// Then she gets an authorization error, never a joined_conversation
	evt, ok := receive(t, conn).(event.Error)
	req.True(ok)
	req.Contains(evt.Message, "not a participant")
}

func TestServer_DisconnectBroadcastsOffline(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	alice := dial(t, url)
	bob := dial(t, url)

	send(t, alice, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	_, ok := receive(t, alice).(event.Authenticated)
	req.True(ok)
	send(t, bob, &protocol.Authenticate{IdentityClaim: "bob@example.com"})
	_, ok = receive(t, bob).(event.Authenticated)
	req.True(ok)

	// When Alice's only connection goes away
	_ = alice.Close()

	// Then Bob sees exactly one offline transition
	evt, ok := receive(t, bob).(event.UserStatus)
	req.True(ok)
	req.Equal("alice", evt.UserID)
	req.Equal(string(domain.StatusOffline), evt.Status)
}

func TestServer_StatszSnapshot(t *testing.T) {
	req := require.New(t)
	url := newTestRelay(t)

	conn := dial(t, url)
	send(t, conn, &protocol.Authenticate{IdentityClaim: "alice@example.com"})
	_, ok := receive(t, conn).(event.Authenticated)
	req.True(ok)

	statsURL := "http" + strings.TrimPrefix(strings.TrimSuffix(url, "/ws"), "ws") + "/statsz"
	resp, err := http.Get(statsURL)
	req.NoError(err)
	defer resp.Body.Close()

	var stats contract.RelayStats
	req.NoError(json.NewDecoder(resp.Body).Decode(&stats))
	req.Equal(1, stats.OnlineUsers)
	req.Equal(1, stats.Connections)
	req.GreaterOrEqual(stats.QueueCapacity, 1)
}
