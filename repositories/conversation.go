package repositories

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

const (
	conversationKeyPrefix = "conv:"
	memberKeyPrefix       = "member:"
)

// ConversationRepository persists conversations and the per-user
// membership index used to resolve a user's conversation list without
// a full scan. The participant list itself stays inside the
// conversation value and is the single source of truth for
// authorization checks.
type ConversationRepository struct {
	db *badger.DB
}

var _ contract.ConversationStore = (*ConversationRepository)(nil)

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type diskConversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"lastMessage,omitempty"`
	LastMessageAt int64    `json:"lastMessageAt,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
}

func memberKey(userID, conversationID string) []byte {
	return []byte(memberKeyPrefix + userID + ":" + conversationID)
}

func (c *ConversationRepository) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(fromConversation(conv))
	if err != nil {
		return errors.Persistence("marshal conversation", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(conversationKeyPrefix+conv.ID), data); err != nil {
			return err
		}
		for _, userID := range conv.Participants {
			if err := txn.Set(memberKey(userID, conv.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Persistence("create conversation", err)
	}
	return nil
}

func (c *ConversationRepository) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var dc diskConversation
	err := c.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, conversationKeyPrefix+id, &dc)
	})
	switch {
	case err == nil:
		return toConversation(dc), nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.Conversation{}, errors.ErrConversationNotFound
	default:
		return domain.Conversation{}, errors.Persistence("get conversation", err)
	}
}

// ListConversationsForUser walks the membership index of one user and
// resolves each conversation, most recent activity first.
func (c *ConversationRepository) ListConversationsForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(memberKeyPrefix + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			conversationID := string(it.Item().Key()[len(prefix):])
			var dc diskConversation
			if err := readJSON(txn, conversationKeyPrefix+conversationID, &dc); err != nil {
				// A dangling index entry must not break the whole list
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			convs = append(convs, toConversation(dc))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Persistence("list conversations", err)
	}

	slices.SortFunc(convs, func(a, b domain.Conversation) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
	return convs, nil
}

// UpdateSummary refreshes the denormalized last message fields in a
// single read-modify-write transaction.
func (c *ConversationRepository) UpdateSummary(ctx context.Context, id, lastMessage string, at time.Time) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		var dc diskConversation
		if err := readJSON(txn, conversationKeyPrefix+id, &dc); err != nil {
			return err
		}
		dc.LastMessage = lastMessage
		dc.LastMessageAt = at.UnixNano()
		data, err := json.Marshal(dc)
		if err != nil {
			return err
		}
		return txn.Set([]byte(conversationKeyPrefix+id), data)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrConversationNotFound
	default:
		return errors.Persistence("update conversation summary", err)
	}
}

func fromConversation(conv domain.Conversation) diskConversation {
	dc := diskConversation{
		ID:           conv.ID,
		Participants: conv.Participants,
		LastMessage:  conv.LastMessage,
		CreatedAt:    conv.CreatedAt.Unix(),
	}
	if !conv.LastMessageAt.IsZero() {
		dc.LastMessageAt = conv.LastMessageAt.UnixNano()
	}
	return dc
}

func toConversation(dc diskConversation) domain.Conversation {
	conv := domain.Conversation{
		ID:           dc.ID,
		Participants: dc.Participants,
		LastMessage:  dc.LastMessage,
		CreatedAt:    time.Unix(dc.CreatedAt, 0).UTC(),
	}
	if dc.LastMessageAt != 0 {
		conv.LastMessageAt = time.Unix(0, dc.LastMessageAt).UTC()
	}
	return conv
}
