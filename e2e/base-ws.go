package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/ws"
	"chat-relay/moderation"
	"chat-relay/notify"
	"chat-relay/presence"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
)

const eventTimeout = 3 * time.Second

type BaseWsSuite struct {
	suite.Suite
	Config   Config
	shutdown func()
}

// SetupSuite loads the environment configuration before running tests.
// Without an external RELAY_URL it boots a relay of its own.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.RelayURL == "" {
		s.Config.RelayURL = s.startRelay()
	}
}

func (s *BaseWsSuite) TearDownSuite() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// startRelay wires the full relay stack on throwaway storage and
// returns its websocket URL. Alice, Bob and Carol are seeded with two
// conversations: general holds all three, duo holds alice and bob.
func (s *BaseWsSuite) startRelay() string {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(s.T().TempDir()))
	s.Require().NoError(err)

	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	index := repositories.NewSearchIndex(writer, log)

	danaHash, err := auth.HashPassword("hunter2")
	s.Require().NoError(err)

	seedCtx := context.Background()
	for _, u := range []domain.User{
		{ID: "alice", Username: "alice", DisplayName: "Alice", Identity: "alice@example.com"},
		{ID: "bob", Username: "bob", DisplayName: "Bob", Identity: "bob@example.com"},
		{ID: "carol", Username: "carol", DisplayName: "Carol", Identity: "carol@example.com"},
		// Dana carries a password and belongs to no conversation
		{ID: "dana", Username: "dana", DisplayName: "Dana", Identity: "dana@example.com", PasswordHash: danaHash},
	} {
		s.Require().NoError(users.CreateUser(seedCtx, u))
	}
	s.Require().NoError(conversations.CreateConversation(seedCtx, domain.Conversation{
		ID: "general", Participants: []string{"alice", "bob", "carol"},
	}))
	s.Require().NoError(conversations.CreateConversation(seedCtx, domain.Conversation{
		ID: "duo", Participants: []string{"alice", "bob"},
	}))

	moderator, err := moderation.NewModerator([]string{"classified"}, '*', log)
	s.Require().NoError(err)

	hub := runtime.NewHub(log, workers.NewSupervisor(log, 0),
		presence.NewRegistry(), runtime.NewRooms(),
		conversations, messages, index, notify.NewLogNotifier(log),
		moderator,
		64, time.Second, 4096)

	// A short flush interval keeps the search polling step quick.
	indexSink := sink.NewIndexSink(index, log, 8, 50*time.Millisecond)
	hub.Add(indexSink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Start(ctx) }()

	authService := services.NewAuthService(users, auth.NewTokens("e2e-secret", time.Hour))
	server := ws.NewServer(log, hub, authService, 16, ws.Timing{
		WriteTimeout: time.Second,
		PongTimeout:  10 * time.Second,
		PingInterval: 3 * time.Second,
	})

	httpServer := httptest.NewServer(server.Routes())

	s.shutdown = func() {
		httpServer.Close()
		cancel()
		indexSink.Close()
		_ = writer.Close()
		_ = db.Close()
	}
	return "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
}

// Dial opens a websocket connection with logging, colors, and JSON
// debugging, and hands back a scenario-side client for it.
func (s *BaseWsSuite) Dial(t *testing.T, name string) *wsClient {
	// 1. Print a colorized header for the connection step in logs
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	// 2. Dial the relay endpoint
	conn, _, err := websocket.DefaultDialer.Dial(s.Config.RelayURL, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayURL)

	return &wsClient{t: t, name: name, conn: conn, debugJSON: s.Config.DebugJSON}
}

// StatszURL derives the HTTP stats endpoint from the websocket URL.
func (s *BaseWsSuite) StatszURL() string {
	base := strings.TrimSuffix(s.Config.RelayURL, "/ws")
	return "http" + strings.TrimPrefix(base, "ws") + "/statsz"
}

// FetchStats reads the relay's live counters.
func (s *BaseWsSuite) FetchStats() (contract.RelayStats, error) {
	resp, err := http.Get(s.StatszURL())
	if err != nil {
		return contract.RelayStats{}, err
	}
	defer resp.Body.Close()

	var stats contract.RelayStats
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

// wsClient drives one relay connection inside a scenario.
type wsClient struct {
	t         *testing.T
	name      string
	conn      *websocket.Conn
	debugJSON bool
}

func (c *wsClient) Close() {
	_ = c.conn.Close()
}

// Send encodes one action and writes it as a single text frame.
func (c *wsClient) Send(a protocol.Action) {
	raw, err := protocol.Encode(a)
	require.NoError(c.t, err)
	if c.debugJSON {
		c.t.Logf("WS %s >> %s", c.name, raw)
	}
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

// Expect reads the next frame and requires it to carry the given event
// kind. The strictness is the point: a stray broadcast becomes a test
// failure here instead of a silent skip.
func (c *wsClient) Expect(kind string) event.Event {
	start := time.Now()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(eventTimeout)))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err, "%s: no frame within %v while expecting %s", c.name, eventTimeout, kind)
	if c.debugJSON {
		c.t.Logf("WS %s << %s in %v", c.name, raw, time.Since(start))
	}

	e, err := protocol.DecodeEvent(raw)
	require.NoError(c.t, err)
	require.Equal(c.t, kind, e.Kind(), "%s: received %s while expecting %s", c.name, e.Kind(), kind)
	return e
}

// Authenticate sends the identity claim and returns the confirmation.
func (c *wsClient) Authenticate(claim string) event.Authenticated {
	c.Send(&protocol.Authenticate{IdentityClaim: claim})
	return c.Expect("authenticated").(event.Authenticated)
}

// ExpectNothingPending proves the connection's event queue is empty:
// it requests a conversation list and requires the reply to be the
// very next frame. A read deadline cannot do this job, a timed-out
// read poisons the websocket for every later read. Any stray event
// queued before the marker surfaces first and fails the kind check.
func (c *wsClient) ExpectNothingPending() {
	c.Send(&protocol.ListConversations{})
	c.Expect("conversation_list")
}
