// Package sink hosts the permanent consumers attached to the fan-out
// pipeline, next to the per-connection sinks owned by the transport.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

const (
	defaultMaxBatch      = 32
	defaultFlushInterval = 500 * time.Millisecond
)

// IndexSink buffers new_message events and feeds the search index in
// batches. A flush is triggered either by a size threshold (maxBatch)
// or a time based deadline (flushInterval), so a quiet conversation
// still becomes searchable quickly.
//
// Only text messages are indexed. Image and file payloads carry data
// URIs with nothing worth matching.
type IndexSink struct {
	mu            sync.Mutex
	timer         *time.Timer
	index         contract.MessageIndex
	log           *slog.Logger
	pending       []domain.Message
	maxBatch      int
	flushInterval time.Duration
}

func NewIndexSink(index contract.MessageIndex, log *slog.Logger, maxBatch int, flushInterval time.Duration) *IndexSink {
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &IndexSink{
		index:         index,
		log:           log,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
	}
}

var _ contract.EventSink = (*IndexSink)(nil)

// Consume aggregates indexable messages. The flush happens inline when
// the batch is full, otherwise a background timer picks it up.
func (s *IndexSink) Consume(ctx context.Context, e event.Event) error {
	evt, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}

	msg, ok := s.toMessage(evt)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.pending = append(s.pending, msg)

	// First event of a new batch: arm a timer so data is not stuck
	// when the throughput is low. The timer outlives the Consume
	// context, so the deferred flush runs on its own.
	if len(s.pending) == 1 && s.timer == nil {
		s.timer = time.AfterFunc(s.flushInterval, func() {
			s.flush(context.Background())
		})
	}

	isFull := len(s.pending) >= s.maxBatch
	s.mu.Unlock()

	if isFull {
		s.flush(ctx)
	}

	return nil
}

// Close flushes whatever is still buffered. Called on shutdown, after
// the fan-out worker stopped.
func (s *IndexSink) Close() {
	s.flush(context.Background())
}

// flush swaps the buffer out under the lock and indexes the batch
// without it, so the next batch starts filling immediately.
func (s *IndexSink) flush(ctx context.Context) {
	s.mu.Lock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	batch := s.pending
	s.pending = make([]domain.Message, 0, s.maxBatch)

	s.mu.Unlock()

	for _, msg := range batch {
		if err := s.index.Index(ctx, msg); err != nil {
			s.log.Error("Failed to index message",
				slog.String("message_id", msg.ID.String()),
				slog.Any("error", err))
		}
	}
}

func (s *IndexSink) toMessage(evt event.NewMessage) (domain.Message, bool) {
	if evt.Message.Type != string(domain.MessageTypeText) {
		return domain.Message{}, false
	}

	id, err := uuid.Parse(evt.Message.ID)
	if err != nil {
		s.log.Warn("Dropping message with malformed id",
			slog.String("message_id", evt.Message.ID))
		return domain.Message{}, false
	}

	return domain.Message{
		ID:             id,
		ConversationID: evt.ConversationID,
		SenderID:       evt.Message.SenderID,
		Content:        evt.Message.Content,
		Type:           domain.MessageTypeText,
		CreatedAt:      evt.Message.CreatedAt,
	}, true
}
