package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/runtime"
	"chat-relay/services"
)

// connState tracks the lifecycle of one websocket session.
type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateTerminated
)

const maxFrameBytes = 1 << 20

// Conn drives one websocket session through its state machine:
// Unauthenticated until a successful authenticate action, then
// Authenticated with rooms joined, Terminated once the peer is gone.
//
// The reader goroutine decodes and handles actions sequentially, so a
// stalled store call stalls only this sender. Every outbound event,
// direct replies included, goes through the sink and its single writer
// goroutine.
type Conn struct {
	id    string
	log   *slog.Logger
	ws    *websocket.Conn
	hub   *runtime.Hub
	auth  services.IAuthService
	sink  *Sink
	state connState
	user  domain.User

	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingInterval time.Duration

	done chan struct{}
}

func newConn(log *slog.Logger, ws *websocket.Conn, hub *runtime.Hub, auth services.IAuthService,
	bufferSize int, writeTimeout, pongTimeout, pingInterval time.Duration) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		log:          log.With(slog.String("conn_id", id)),
		ws:           ws,
		hub:          hub,
		auth:         auth,
		sink:         NewSink(log, id, bufferSize),
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
}

// serve blocks until the session ends. Cleanup runs on a fresh context
// so an already persisted side effect still completes after the peer
// vanished.
func (c *Conn) serve(ctx context.Context) {
	go c.writePump()

	c.readLoop(ctx)
	c.terminate(context.Background())
}

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Connection closed unexpectedly", slog.Any("error", err))
			}
			return
		}
		c.dispatch(ctx, raw)
	}
}

func (c *Conn) dispatch(ctx context.Context, raw []byte) {
	action, err := protocol.Decode(raw)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	if a, ok := action.(*protocol.Authenticate); ok {
		c.handleAuthenticate(ctx, a)
		return
	}

	if c.state != stateAuthenticated {
		c.fail(ctx, errors.ErrNotAuthenticated)
		return
	}

	c.handle(ctx, action)
}

// handleAuthenticate resolves the claim and registers the connection.
// Failure keeps the state Unauthenticated, the client may resubmit a
// claim on the same transport.
func (c *Conn) handleAuthenticate(ctx context.Context, a *protocol.Authenticate) {
	if c.state == stateAuthenticated {
		c.reply(ctx, event.Error{Message: "connection is already authenticated"})
		return
	}

	user, token, err := c.auth.Authenticate(ctx, a.IdentityClaim)
	if err != nil {
		c.log.Info("Authentication failed", slog.Any("error", err))
		c.reply(ctx, event.AuthenticationError{Message: errors.UserMessage(err)})
		return
	}

	if err := c.hub.Connect(ctx, user, c.member(user)); err != nil {
		c.log.Error("Failed to register connection", slog.Any("error", err))
		c.reply(ctx, event.AuthenticationError{Message: errors.UserMessage(err)})
		return
	}

	c.state = stateAuthenticated
	c.user = user
	c.log = c.log.With(slog.String("user_id", user.ID))
	c.log.Info("Connection authenticated")

	c.reply(ctx, event.Authenticated{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Token:       token,
	})
}

func (c *Conn) handle(ctx context.Context, action protocol.Action) {
	switch a := action.(type) {
	case *protocol.JoinConversation:
		if err := c.hub.JoinConversation(ctx, c.user, a.ConversationID, c.member(c.user)); err != nil {
			c.fail(ctx, err)
			return
		}
		c.reply(ctx, event.JoinedConversation{ConversationID: a.ConversationID})

	case *protocol.SendMessage:
		// The sender receives its own message through the room
		// broadcast like everyone else, keeping a single source of
		// truth for delivery order.
		if err := c.hub.SendMessage(ctx, c.user, a.ConversationID, a.Content, a.Type); err != nil {
			c.fail(ctx, err)
		}

	case *protocol.Typing:
		if err := c.hub.Typing(c.id, c.user, a.ConversationID, a.IsTyping); err != nil {
			c.log.Debug("Typing signal dropped", slog.Any("error", err))
		}

	case *protocol.MarkRead:
		if err := c.hub.MarkRead(ctx, c.id, c.user, a.ConversationID, parseIDs(a.MessageIDs)); err != nil {
			c.fail(ctx, err)
		}

	case *protocol.StatusUpdate:
		if err := c.hub.UpdateStatus(ctx, c.user, domain.Status(a.Status)); err != nil {
			c.log.Debug("Status update dropped", slog.Any("error", err))
		}

	case *protocol.ListConversations:
		list, err := c.hub.ListConversations(ctx, c.user.ID)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		c.reply(ctx, list)

	case *protocol.GetMessages:
		history, err := c.hub.MessageHistory(ctx, c.id, c.user, a.ConversationID, a.Cursor)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		c.reply(ctx, history)

	case *protocol.SearchMessages:
		results, err := c.hub.SearchMessages(ctx, c.id, c.user, a.ConversationID, a.Query, a.Limit)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		c.reply(ctx, results)

	default:
		c.fail(ctx, errors.Validation(fmt.Sprintf("unhandled action %q", action.ActionName()), nil))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-c.sink.Events:
			raw, err := protocol.EncodeEvent(evt)
			if err != nil {
				c.log.Error("Failed to encode event",
					slog.String("kind", evt.Kind()),
					slog.Any("error", err))
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				_ = c.ws.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// terminate runs once the reader returned. Rooms and presence are
// released before the writer stops, so the offline broadcast never
// targets this connection.
func (c *Conn) terminate(ctx context.Context) {
	if c.state == stateAuthenticated {
		c.hub.Disconnect(ctx, c.user, c.id)
	}
	c.state = stateTerminated
	close(c.done)
	_ = c.ws.Close()
	c.log.Info("Connection terminated")
}

// fail answers the initiator with the failure event its error kind
// maps to. Nothing is ever broadcast from here.
func (c *Conn) fail(ctx context.Context, err error) {
	msg := errors.UserMessage(err)
	if errors.KindOf(err) == errors.KindAuthentication {
		c.reply(ctx, event.AuthenticationError{Message: msg})
		return
	}
	c.reply(ctx, event.Error{Message: msg})
}

func (c *Conn) reply(ctx context.Context, evt event.Event) {
	if err := c.sink.Consume(ctx, evt); err != nil {
		c.log.Warn("Failed to queue reply",
			slog.String("kind", evt.Kind()),
			slog.Any("error", err))
	}
}

func (c *Conn) member(user domain.User) contract.RoomMember {
	return contract.RoomMember{ConnID: c.id, UserID: user.ID, Sink: c.sink}
}

func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		if id, err := uuid.Parse(r); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
