package repositories

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
)

// SearchIndex is the Bluge-backed full text index over message
// content. It is fed asynchronously by the fan-out pipeline, so a
// freshly sent message may trail its own searchability by a moment.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

var _ contract.MessageIndex = (*SearchIndex)(nil)

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(ctx context.Context, msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String())
	doc.AddField(bluge.NewKeywordField("conversation_id", msg.ConversationID))
	doc.AddField(bluge.NewKeywordField("sender_id", msg.SenderID).StoreValue())
	doc.AddField(bluge.NewTextField("content", msg.Content).StoreValue())
	doc.AddField(bluge.NewDateTimeField("created_at", msg.CreatedAt))

	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return errors.Persistence("index message", err)
	}
	return nil
}

// Search matches q.Terms against message content, hard-scoped to one
// conversation so results can never leak across participant
// boundaries.
func (s *SearchIndex) Search(ctx context.Context, q *search.Query) ([]search.Hit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, errors.Persistence("open index reader", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("closing index reader", slog.Any("error", err))
		}
	}()

	match := bluge.NewMatchQuery(q.Terms)
	match.SetField("content")
	scope := bluge.NewTermQuery(q.ConversationID)
	scope.SetField("conversation_id")
	query := bluge.NewBooleanQuery()
	query.AddMust(match, scope)

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(q.Limit, query))
	if err != nil {
		return nil, errors.Persistence("search messages", err)
	}

	var hits []search.Hit
	next, err := iterator.Next()
	for err == nil && next != nil {
		hit := search.Hit{Score: next.Score}
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "sender_id":
				hit.SenderID = string(value)
			case "content":
				hit.Content = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, errors.Persistence("read search hit", visitErr)
		}
		hits = append(hits, hit)
		next, err = iterator.Next()
	}
	if err != nil {
		return nil, errors.Persistence("iterate search results", err)
	}
	return hits, nil
}
