package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/domain/event"
	"chat-relay/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayURL       string `env:"RELAY_URL,default=ws://localhost:8080/ws"`
	IdentityClaim  string `env:"IDENTITY_CLAIM,required=true"`
	ConversationID string `env:"CONVERSATION_ID"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}

// Terminal styles, one per event family.
var (
	styleBanner  = color.New(color.BgBlack, color.FgGreen)
	styleMessage = color.New(color.FgGreen)
	styleNotice  = color.New(color.FgGray)
	styleInfo    = color.New(color.FgCyan)
	styleHit     = color.New(color.FgYellow)
	styleError   = color.New(color.FgRed)
)

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle, configuration loading, and
// the two loops: relay events in, terminal commands out.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Dial the relay websocket endpoint.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.RelayURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not reach relay at %s: %w", config.RelayURL, err)
	}
	// Defer ensures the connection is closed even if a loop fails later.
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	sess := &session{
		log:          log,
		conn:         conn,
		conversation: config.ConversationID,
		timelines:    make(map[string]*timeline),
	}

	// 4. Authenticate first; the relay rejects every other action until
	// the identity claim is accepted. The relay handles frames in order,
	// so the optional auto-join can follow immediately.
	if err := sess.send(&protocol.Authenticate{IdentityClaim: config.IdentityClaim}); err != nil {
		return exitRuntime, fmt.Errorf("failed to send identity claim: %w", err)
	}
	if config.ConversationID != "" {
		if err := sess.send(&protocol.JoinConversation{ConversationID: config.ConversationID}); err != nil {
			return exitRuntime, fmt.Errorf("failed to join %s: %w", config.ConversationID, err)
		}
	}

	printHelp()

	// 5. Reception loop: renders every event pushed by the relay.
	readerDone := make(chan error, 1)
	go func() {
		readerDone <- sess.readLoop()
	}()

	// 6. Command loop: turns terminal input into protocol actions.
	inputDone := make(chan error, 1)
	go func() {
		inputDone <- sess.inputLoop()
	}()

	// 7. Wait for a signal, a closed relay connection, or /quit.
	select {
	case <-ctx.Done():
		log.Info("Stopping client...")
	case err := <-readerDone:
		if err != nil {
			return exitRuntime, fmt.Errorf("relay connection lost: %w", err)
		}
	case err := <-inputDone:
		if err != nil {
			return exitRuntime, err
		}
	}

	// 8. Announce the departure so the relay releases presence right away.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline)
	return exitOK, nil
}

// session couples the websocket connection with the terminal state.
type session struct {
	log  *slog.Logger
	conn *websocket.Conn
	// conversation is the target of plain text input, set by /join.
	conversation string
	// timelines dedup what already reached the terminal, one per
	// conversation. Both loops touch them: the reader on every
	// delivery, the input loop on /replay.
	mu        sync.Mutex
	timelines map[string]*timeline
}

// observe feeds one message into the conversation timeline and reports
// whether the terminal should print it.
func (s *session) observe(conversationID string, msg event.MessagePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.timelines[conversationID]
	if !ok {
		tl = newTimeline()
		s.timelines[conversationID] = tl
	}
	return tl.Observe(msg)
}

// replay re-prints everything remembered about one conversation, live
// deliveries and history pages merged in timestamp order.
func (s *session) replay(conversationID string) {
	s.mu.Lock()
	var msgs []event.MessagePayload
	if tl, ok := s.timelines[conversationID]; ok {
		msgs = append(msgs, tl.messages...)
	}
	s.mu.Unlock()

	styleInfo.Printf("replay of %s (%d message(s)):\n", conversationID, len(msgs))
	for _, msg := range msgs {
		styleMessage.Printf("  [%s] %s: %s\n", msg.CreatedAt.Format(time.TimeOnly), msg.SenderName, msg.Content)
	}
}

// send encodes one action and writes it as a single text frame. The
// input loop is the only data writer, so no locking is needed.
func (s *session) send(a protocol.Action) error {
	raw, err := protocol.Encode(a)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// readLoop renders relay events until the connection closes.
func (s *session) readLoop() error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		e, err := protocol.DecodeEvent(raw)
		if err != nil {
			styleError.Printf("unreadable frame: %v\n", err)
			continue
		}
		s.render(e)
	}
}

// inputLoop reads terminal lines until EOF or /quit. Lines starting
// with a slash are commands, everything else is sent as a message to
// the current conversation.
func (s *session) inputLoop() error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if s.conversation == "" {
				styleError.Println("no conversation joined, use /join <id> first")
				continue
			}
			if err := s.send(&protocol.SendMessage{ConversationID: s.conversation, Content: line}); err != nil {
				return err
			}
			continue
		}

		fields := strings.Fields(line)
		if err := s.command(fields[0], fields[1:]); err != nil {
			return err
		}
		if fields[0] == "/quit" {
			return nil
		}
	}
	return scanner.Err()
}

// command dispatches one slash command. Usage mistakes are printed, not
// returned: only transport failures abort the loop.
func (s *session) command(name string, args []string) error {
	switch name {
	case "/join":
		if len(args) != 1 {
			styleError.Println("usage: /join <conversationId>")
			return nil
		}
		s.conversation = args[0]
		return s.send(&protocol.JoinConversation{ConversationID: args[0]})

	case "/list":
		return s.send(&protocol.ListConversations{})

	case "/history":
		if s.conversation == "" {
			styleError.Println("no conversation joined, use /join <id> first")
			return nil
		}
		cursor := ""
		if len(args) > 0 {
			cursor = args[0]
		}
		return s.send(&protocol.GetMessages{ConversationID: s.conversation, Cursor: cursor})

	case "/search":
		if s.conversation == "" || len(args) == 0 {
			styleError.Println("usage: /search <words> (after /join)")
			return nil
		}
		return s.send(&protocol.SearchMessages{ConversationID: s.conversation, Query: strings.Join(args, " ")})

	case "/read":
		if s.conversation == "" || len(args) == 0 {
			styleError.Println("usage: /read <messageId> [messageId...] (after /join)")
			return nil
		}
		return s.send(&protocol.MarkRead{ConversationID: s.conversation, MessageIDs: args})

	case "/status":
		if len(args) != 1 {
			styleError.Println("usage: /status <online|away|busy|offline>")
			return nil
		}
		return s.send(&protocol.StatusUpdate{Status: args[0]})

	case "/typing":
		if s.conversation == "" || len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			styleError.Println("usage: /typing <on|off> (after /join)")
			return nil
		}
		return s.send(&protocol.Typing{ConversationID: s.conversation, IsTyping: args[0] == "on"})

	case "/replay":
		if s.conversation == "" {
			styleError.Println("no conversation joined, use /join <id> first")
			return nil
		}
		s.replay(s.conversation)
		return nil

	case "/help":
		printHelp()
		return nil

	case "/quit":
		return nil

	default:
		styleError.Printf("unknown command %s, try /help\n", name)
		return nil
	}
}

// render prints one relay event, matching on the decoded type.
func (s *session) render(e event.Event) {
	switch evt := e.(type) {
	case event.Authenticated:
		banner := fmt.Sprintf("  ====== connected as %s (%s) ======", evt.DisplayName, evt.UserID)
		fmt.Println(styleBanner.Render(banner))
		if evt.Token != "" {
			styleNotice.Println("session token received, export IDENTITY_CLAIM to reconnect without credentials")
		}

	case event.AuthenticationError:
		styleError.Printf("authentication failed: %s\n", evt.Message)

	case event.JoinedConversation:
		styleInfo.Printf("joined %s\n", evt.ConversationID)

	case event.NewMessage:
		msg := evt.Message
		if !s.observe(evt.ConversationID, msg) {
			return
		}
		styleMessage.Printf("[%s] %s: %s\n", msg.CreatedAt.Format(time.TimeOnly), msg.SenderName, msg.Content)

	case event.UserTyping:
		if evt.IsTyping {
			styleNotice.Printf("... %s is typing in %s\n", evt.UserID, evt.ConversationID)
		} else {
			styleNotice.Printf("... %s stopped typing\n", evt.UserID)
		}

	case event.MessagesRead:
		styleNotice.Printf("%s read %d message(s) in %s\n", evt.ReadBy, len(evt.MessageIDs), evt.ConversationID)

	case event.UserStatus:
		styleNotice.Printf("* %s is now %s\n", evt.UserID, evt.Status)

	case event.ConversationList:
		styleInfo.Printf("%d conversation(s):\n", len(evt.Conversations))
		for _, conv := range evt.Conversations {
			line := fmt.Sprintf("  %s  [%s]", conv.ID, strings.Join(conv.Participants, ", "))
			if conv.LastMessage != "" {
				line += fmt.Sprintf("  %q at %s", conv.LastMessage, conv.LastMessageAt.Format(time.TimeOnly))
			}
			styleInfo.Println(line)
		}

	case event.MessageHistory:
		styleInfo.Printf("history of %s (%d message(s)):\n", evt.ConversationID, len(evt.Messages))
		shown := 0
		for _, msg := range evt.Messages {
			if !s.observe(evt.ConversationID, msg) {
				continue
			}
			shown++
			styleMessage.Printf("  [%s] %s: %s\n", msg.CreatedAt.Format(time.TimeOnly), msg.SenderName, msg.Content)
		}
		if skipped := len(evt.Messages) - shown; skipped > 0 {
			styleNotice.Printf("%d message(s) already shown, /replay prints the merged view\n", skipped)
		}
		if evt.NextCursor != "" {
			styleNotice.Printf("more available: /history %s\n", evt.NextCursor)
		}

	case event.SearchResults:
		styleHit.Printf("%d hit(s) for %q in %s:\n", len(evt.Hits), evt.Query, evt.ConversationID)
		for _, hit := range evt.Hits {
			styleHit.Printf("  %.2f  %s: %s\n", hit.Score, hit.SenderID, hit.Content)
		}

	case event.Error:
		styleError.Printf("relay refused the action: %s\n", evt.Message)

	default:
		styleNotice.Printf("unhandled event %s\n", e.Kind())
	}
}

func printHelp() {
	styleInfo.Println(strings.Join([]string{
		"commands:",
		"  /join <id>              join a conversation and make it current",
		"  /list                   list your conversations",
		"  /history [cursor]       page through the current conversation",
		"  /search <words>         full text search in the current conversation",
		"  /read <msgId...>        mark messages as read",
		"  /status <state>         online, away, busy or offline",
		"  /typing <on|off>        broadcast a typing signal",
		"  /replay                 re-print the current conversation in order",
		"  /quit                   leave",
		"anything else is sent as a message to the current conversation",
	}, "\n"))
}
