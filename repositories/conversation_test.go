package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
)

func TestConversationRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	conv := domain.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
	}
	req.NoError(repo.CreateConversation(ctx, conv))

	fetched, err := repo.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, fetched.Participants)
	req.False(fetched.CreatedAt.IsZero())

	_, err = repo.GetConversation(ctx, "missing")
	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func TestConversationRepository_List_Is_Scoped_To_User(t *testing.T) {
	req := require.New(t)
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "c1", Participants: []string{"alice", "bob"}}))
	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "c2", Participants: []string{"alice", "carol"}}))
	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "c3", Participants: []string{"bob", "carol"}}))

	convs, err := repo.ListConversationsForUser(ctx, "alice")
	req.NoError(err)
	req.Len(convs, 2)
	for _, conv := range convs {
		req.True(conv.HasParticipant("alice"))
	}

	// A user id sharing a prefix with another must see nothing
	convs, err = repo.ListConversationsForUser(ctx, "ali")
	req.NoError(err)
	req.Empty(convs)
}

func TestConversationRepository_List_Orders_By_Recency(t *testing.T) {
	req := require.New(t)
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "old", Participants: []string{"alice"}}))
	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "fresh", Participants: []string{"alice"}}))

	now := time.Now().UTC()
	req.NoError(repo.UpdateSummary(ctx, "old", "hello", now.Add(-time.Hour)))
	req.NoError(repo.UpdateSummary(ctx, "fresh", "latest news", now))

	convs, err := repo.ListConversationsForUser(ctx, "alice")
	req.NoError(err)
	req.Len(convs, 2)
	req.Equal("fresh", convs[0].ID)
	req.Equal("old", convs[1].ID)
}

func TestConversationRepository_UpdateSummary(t *testing.T) {
	req := require.New(t)
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	req.NoError(repo.CreateConversation(ctx, domain.Conversation{ID: "c1", Participants: []string{"alice", "bob"}}))

	at := time.Now().UTC()
	req.NoError(repo.UpdateSummary(ctx, "c1", "last words", at))

	conv, err := repo.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal("last words", conv.LastMessage)
	req.Equal(at.UnixNano(), conv.LastMessageAt.UnixNano())

	// The participant list survives summary rewrites
	req.Equal([]string{"alice", "bob"}, conv.Participants)

	req.ErrorIs(repo.UpdateSummary(ctx, "missing", "x", at), errors.ErrConversationNotFound)
}
