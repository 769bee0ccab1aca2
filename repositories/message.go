package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

const messageIDPrefix = "msgid:"

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize *int
}

var _ contract.MessageStore = (*MessageRepository)(nil)

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, pageSize: pageSize}
}

type diskMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	At             int64  `json:"at"`
	Read           bool   `json:"read"`
}

// messageKey builds "msg:{conversation_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if
//     two messages arrive at the same nanosecond.
func messageKey(conversationID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func messagePrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// CreateMessage assigns id and timestamp and persists the message plus
// the id index used by read marking. The caller only ever sees the
// message after it durably exists.
func (m *MessageRepository) CreateMessage(ctx context.Context, conversationID, senderID, content string, msgType domain.MessageType) (domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      time.Now().UTC(),
	}
	key := messageKey(conversationID, msg.CreatedAt, msg.ID)
	data, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, errors.Persistence("marshal message", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(messageIDPrefix+msg.ID.String()), key)
	})
	if err != nil {
		return domain.Message{}, errors.Persistence("store message", err)
	}
	return msg, nil
}

// GetMessages retrieves one page of a conversation using a reverse
// prefix scan, newest first. Thanks to the padded timestamp in the key
// the iteration order is the chronological order. The returned cursor
// resumes the scan on the next older page; empty input means start
// from the newest message.
func (m *MessageRepository) GetMessages(ctx context.Context, conversationID, cursor string) ([]domain.Message, string, error) {
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case "":
			// Seek past every real timestamp, then walk backwards
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(cursor)...)
		}

		it.Seek(seekKey)

		// The cursor names the last message of the previous page
		if cursor != "" && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageSize != nil && len(messages) == *m.pageSize {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.pageSize))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[len(prefix):])
			var dm diskMessage
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			msg, err := toMessage(dm)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, "", errors.Persistence("get messages", err)
	}
	return messages, lastKey, nil
}

// MarkRead flips the read flag on the given messages and returns the
// ids actually marked. Messages authored by excludingSender, already
// read messages, unknown ids and ids belonging to another conversation
// are skipped, so re-marking is idempotent and emits nothing.
func (m *MessageRepository) MarkRead(ctx context.Context, conversationID string, ids []uuid.UUID, excludingSender string) ([]uuid.UUID, error) {
	var marked []uuid.UUID
	err := m.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			idxItem, err := txn.Get([]byte(messageIDPrefix + id.String()))
			if errors.Is(err, badger.ErrKeyNotFound) {
				m.log.Debug("mark read skipped unknown message", slog.String("message_id", id.String()))
				continue
			}
			if err != nil {
				return err
			}
			key, err := idxItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var dm diskMessage
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			}); err != nil {
				return err
			}

			if dm.ConversationID != conversationID || dm.SenderID == excludingSender || dm.Read {
				continue
			}
			dm.Read = true
			data, err := json.Marshal(dm)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			marked = append(marked, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Persistence("mark messages read", err)
	}
	return marked, nil
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		At:             msg.CreatedAt.UnixNano(),
		Read:           msg.Read,
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: dm.ConversationID,
		SenderID:       dm.SenderID,
		Content:        dm.Content,
		Type:           domain.MessageType(dm.Type),
		CreatedAt:      time.Unix(0, dm.At).UTC(),
		Read:           dm.Read,
	}, nil
}
