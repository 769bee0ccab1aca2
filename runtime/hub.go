// Package runtime connects authenticated connections to rooms,
// presence and the delivery pipeline. It orchestrates the system
// without containing wire or storage concerns.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/domain/mimetypes"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/notify"
	"chat-relay/runtime/workers"
)

type Hub struct {
	mu               sync.Mutex
	log              *slog.Logger
	supervisor       contract.ISupervisor
	presence         contract.IPresence
	rooms            contract.IRooms
	conversations    contract.ConversationStore
	messages         contract.MessageStore
	index            contract.MessageIndex
	notifier         contract.Notifier
	moderator        moderation.Moderator
	permanentSinks   []contract.EventSink
	broadcasts       chan event.Outbound
	sinkTimeout      time.Duration
	maxContentLength int
}

func NewHub(log *slog.Logger, supervisor contract.ISupervisor,
	presence contract.IPresence, rooms contract.IRooms,
	conversations contract.ConversationStore, messages contract.MessageStore,
	index contract.MessageIndex, notifier contract.Notifier,
	moderator moderation.Moderator,
	bufferSize int, sinkTimeout time.Duration, maxContentLength int) *Hub {
	return &Hub{
		log:              log,
		supervisor:       supervisor,
		presence:         presence,
		rooms:            rooms,
		conversations:    conversations,
		messages:         messages,
		index:            index,
		notifier:         notifier,
		moderator:        moderator,
		broadcasts:       make(chan event.Outbound, bufferSize),
		sinkTimeout:      sinkTimeout,
		maxContentLength: maxContentLength,
	}
}

// Add registers permanent sinks that observe every published event,
// alongside the per-connection room delivery.
func (h *Hub) Add(sinks ...contract.EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permanentSinks = append(h.permanentSinks, sinks...)
}

// Start builds the delivery pipeline and runs all supervised workers.
// It blocks until the context is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	fanout := workers.NewEventFanout(h.log, h.permanentSinks, h.rooms, h.broadcasts, h.sinkTimeout)
	h.supervisor.Add(fanout)
	h.mu.Unlock()

	h.log.Info("Starting hub and all supervised workers")
	h.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown of the delivery pipeline.
func (h *Hub) Stop() {
	h.log.Info("Requesting hub shutdown")
	h.supervisor.Stop()
}

// Connect registers an authenticated connection: presence, the
// personal room, and every conversation room the user belongs to per
// persisted membership. Nothing is registered if the membership list
// cannot be read, so a half-connected socket never lingers.
func (h *Hub) Connect(ctx context.Context, user domain.User, member contract.RoomMember) error {
	convs, err := h.conversations.ListConversationsForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	h.presence.Register(user.ID, member.ConnID)
	h.rooms.Join(domain.PersonalRoom(user.ID), member)
	for _, conv := range convs {
		h.rooms.Join(conv.Room(), member)
	}

	h.log.Info("connection registered",
		slog.String("user_id", user.ID),
		slog.String("conn_id", member.ConnID),
		slog.Int("conversations", len(convs)))
	return nil
}

// Disconnect tears down one connection. Only the teardown that takes
// the user's last connection emits the offline broadcast, however many
// devices disconnect at once.
func (h *Hub) Disconnect(ctx context.Context, user domain.User, connID string) {
	h.rooms.LeaveAll(connID)

	if !h.presence.Deregister(user.ID, connID) {
		return
	}

	convs, err := h.conversations.ListConversationsForUser(ctx, user.ID)
	if err != nil {
		h.log.Warn("listing conversations for offline broadcast",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	h.broadcastStatus(user.ID, domain.StatusOffline, convs)

	h.log.Info("user went offline", slog.String("user_id", user.ID))
}

// JoinConversation re-validates membership against the persisted
// participant list before subscribing the connection. An unknown
// conversation is indistinguishable from one the user is not part of.
func (h *Hub) JoinConversation(ctx context.Context, user domain.User, conversationID string, member contract.RoomMember) error {
	conv, err := h.memberGate(ctx, user.ID, conversationID)
	if err != nil {
		return err
	}
	h.rooms.Join(conv.Room(), member)
	return nil
}

// SendMessage runs the message ingress pipeline: membership gate,
// content validation, moderation, persistence, summary refresh,
// broadcast, offline notification. A message that was not persisted is
// never broadcast, and the persisted content is the censored one.
func (h *Hub) SendMessage(ctx context.Context, sender domain.User, conversationID, content, msgType string) error {
	conv, err := h.memberGate(ctx, sender.ID, conversationID)
	if err != nil {
		return err
	}

	mt, err := h.validateContent(content, msgType)
	if err != nil {
		return err
	}
	if mt == domain.MessageTypeText {
		content = h.censor(sender, conversationID, content)
	}

	msg, err := h.messages.CreateMessage(ctx, conversationID, sender.ID, content, mt)
	if err != nil {
		return err
	}

	// Summary refresh is deliberately non-atomic with persistence: on
	// failure the message stands, delivery continues, only the list
	// ordering may lag.
	if err := h.conversations.UpdateSummary(ctx, conversationID, msg.Preview(), msg.CreatedAt); err != nil {
		h.log.Warn("conversation summary update failed",
			slog.String("conversation_id", conversationID), slog.Any("error", err))
	}

	h.publish(event.Outbound{
		Room: conv.Room(),
		Event: event.NewMessage{
			ConversationID: conversationID,
			Message:        senderPayload(msg, sender),
		},
	})

	h.notifyOffline(ctx, conv, sender, msg)
	return nil
}

// Typing relays a typing indicator to everyone else in the room. It is
// ephemeral: no persistence, no dedup, repeats pass through verbatim.
func (h *Hub) Typing(connID string, user domain.User, conversationID string, isTyping bool) error {
	room := domain.ConversationRoom(conversationID)
	if !h.rooms.InRoom(room, connID) {
		return errors.ErrNotInRoom
	}
	h.publish(event.Outbound{
		Room:        room,
		Event:       event.UserTyping{ConversationID: conversationID, UserID: user.ID, IsTyping: isTyping},
		ExcludeConn: connID,
	})
	return nil
}

// MarkRead flips read flags and broadcasts a read notice to the room,
// excluding every connection of the marker. Marking nothing (all ids
// already read, foreign, or authored by the marker) emits nothing.
func (h *Hub) MarkRead(ctx context.Context, connID string, user domain.User, conversationID string, ids []uuid.UUID) error {
	room := domain.ConversationRoom(conversationID)
	if !h.rooms.InRoom(room, connID) {
		return errors.ErrNotInRoom
	}

	marked, err := h.messages.MarkRead(ctx, conversationID, ids, user.ID)
	if err != nil {
		return err
	}
	if len(marked) == 0 {
		return nil
	}

	h.publish(event.Outbound{
		Room: room,
		Event: event.MessagesRead{
			ConversationID: conversationID,
			MessageIDs: lo.Map(marked, func(id uuid.UUID, _ int) string {
				return id.String()
			}),
			ReadBy: user.ID,
		},
		ExcludeUser: user.ID,
	})
	return nil
}

// UpdateStatus fans a chosen availability out to every conversation
// the user belongs to, derived from persisted membership.
func (h *Hub) UpdateStatus(ctx context.Context, user domain.User, status domain.Status) error {
	if !status.Valid() {
		return errors.Validation(fmt.Sprintf("unknown status %q", status), nil)
	}
	convs, err := h.conversations.ListConversationsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	h.broadcastStatus(user.ID, status, convs)
	return nil
}

func (h *Hub) ListConversations(ctx context.Context, userID string) (event.ConversationList, error) {
	convs, err := h.conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return event.ConversationList{}, err
	}
	return event.ConversationList{
		Conversations: lo.Map(convs, func(c domain.Conversation, _ int) event.ConversationSummary {
			return event.ConversationSummary{
				ID:            c.ID,
				Participants:  c.Participants,
				LastMessage:   c.LastMessage,
				LastMessageAt: c.LastMessageAt,
			}
		}),
	}, nil
}

// MessageHistory returns one page of a joined conversation, oldest
// first, plus the cursor for the next older page.
func (h *Hub) MessageHistory(ctx context.Context, connID string, user domain.User, conversationID, cursor string) (event.MessageHistory, error) {
	room := domain.ConversationRoom(conversationID)
	if !h.rooms.InRoom(room, connID) {
		return event.MessageHistory{}, errors.ErrNotInRoom
	}

	messages, next, err := h.messages.GetMessages(ctx, conversationID, cursor)
	if err != nil {
		return event.MessageHistory{}, err
	}

	// The store hands back newest first; clients render oldest first
	payloads := make([]event.MessagePayload, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		payloads = append(payloads, messagePayload(messages[i]))
	}
	return event.MessageHistory{
		ConversationID: conversationID,
		Messages:       payloads,
		NextCursor:     next,
	}, nil
}

// SearchMessages queries the full text index, scoped to a joined
// conversation.
func (h *Hub) SearchMessages(ctx context.Context, connID string, user domain.User, conversationID, query string, limit int) (event.SearchResults, error) {
	room := domain.ConversationRoom(conversationID)
	if !h.rooms.InRoom(room, connID) {
		return event.SearchResults{}, errors.ErrNotInRoom
	}

	q := &search.Query{RawInput: query, Terms: query, ConversationID: conversationID, Limit: limit}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	hits, err := h.index.Search(ctx, q)
	if err != nil {
		return event.SearchResults{}, err
	}

	return event.SearchResults{
		ConversationID: conversationID,
		Query:          query,
		Hits: lo.Map(hits, func(hit search.Hit, _ int) event.SearchHit {
			return event.SearchHit{
				MessageID: hit.MessageID,
				SenderID:  hit.SenderID,
				Content:   hit.Content,
				Score:     hit.Score,
			}
		}),
	}, nil
}

func (h *Hub) Stats() contract.RelayStats {
	users, conns := h.presence.Stats()
	rooms, subs := h.rooms.Stats()
	return contract.RelayStats{
		OnlineUsers:   users,
		Connections:   conns,
		Rooms:         rooms,
		Subscriptions: subs,
		QueueDepth:    len(h.broadcasts),
		QueueCapacity: cap(h.broadcasts),
	}
}

// memberGate loads the conversation and checks the persisted
// participant list. Unknown conversations come back as the same
// authorization error, existence is not revealed.
func (h *Hub) memberGate(ctx context.Context, userID, conversationID string) (domain.Conversation, error) {
	conv, err := h.conversations.GetConversation(ctx, conversationID)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrConversationNotFound):
		return domain.Conversation{}, errors.ErrNotParticipant
	default:
		return domain.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conv, nil
}

func (h *Hub) validateContent(content, msgType string) (domain.MessageType, error) {
	mt := domain.MessageType(msgType)
	if msgType == "" {
		mt = domain.MessageTypeText
	}
	if !mt.Valid() {
		return "", errors.Validation(fmt.Sprintf("unsupported message type %q", msgType), nil)
	}
	if h.maxContentLength > 0 && len(content) > h.maxContentLength {
		return "", errors.Validation("message content too large", nil)
	}

	switch mt {
	case domain.MessageTypeImage:
		detected, ok := mimetypes.DetectDataURI(content)
		if !ok || !mimetypes.IsImage(detected) {
			return "", errors.Validation("image message must carry an image data URI", nil)
		}
	case domain.MessageTypeFile:
		if _, ok := mimetypes.DetectDataURI(content); !ok {
			return "", errors.Validation("file message must carry a data URI", nil)
		}
	}
	return mt, nil
}

// censor rewrites blocklisted terms before the message reaches the
// store. Language detection runs on the raw content so the log keeps
// the original wording context without echoing it.
func (h *Hub) censor(sender domain.User, conversationID, content string) string {
	sanitized, censored := h.moderator.Censor(content)
	if len(censored) == 0 {
		return content
	}

	info := whatlanggo.Detect(content)
	h.log.Warn("Censored blocklisted terms",
		slog.String("sender_id", sender.ID),
		slog.String("conversation_id", conversationID),
		slog.String("lang", info.Lang.Iso6391()),
		slog.Int("terms", len(censored)))
	return sanitized
}

// notifyOffline invokes the notification hook for every participant
// with zero live connections, except the sender. Failures are logged
// and swallowed: the hook can never fail a send that already happened.
func (h *Hub) notifyOffline(ctx context.Context, conv domain.Conversation, sender domain.User, msg domain.Message) {
	offline := notify.OfflineParticipants(conv, h.presence.OnlineSet())
	summary := domain.NotificationSummary{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Preview:        msg.Preview(),
	}
	for _, userID := range offline {
		if userID == sender.ID {
			continue
		}
		if err := h.notifier.Notify(ctx, userID, summary); err != nil {
			h.log.Warn("offline notification failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}
}

func (h *Hub) broadcastStatus(userID string, status domain.Status, convs []domain.Conversation) {
	evt := event.UserStatus{UserID: userID, Status: string(status)}
	for _, conv := range convs {
		h.publish(event.Outbound{Room: conv.Room(), Event: evt})
	}
}

// publish hands an event to the fan-out worker without blocking. When
// the channel is full the event is dropped and logged.
func (h *Hub) publish(out event.Outbound) {
	select {
	case h.broadcasts <- out:
	default:
		h.log.Warn(fmt.Sprintf("Broadcast channel full, dropping %s for room %s", out.Event.Kind(), out.Room))
	}
}

func messagePayload(msg domain.Message) event.MessagePayload {
	return event.MessagePayload{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		CreatedAt:      msg.CreatedAt,
		Read:           msg.Read,
	}
}

// senderPayload resolves the display attributes from the already
// authenticated sender, saving a store round trip on the hot path.
func senderPayload(msg domain.Message, sender domain.User) event.MessagePayload {
	payload := messagePayload(msg)
	payload.SenderName = sender.DisplayName
	payload.SenderAvatar = sender.AvatarURL
	return payload
}
