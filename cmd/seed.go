package main

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

// seedDemo provisions a few accounts and conversations so a fresh data
// directory is usable from the terminal client right away. Existing
// records are left untouched, the seed is idempotent. Dana carries a
// password ("hunter2") to demo the identity:password claim form.
func seedDemo(ctx context.Context, log *slog.Logger,
	users contract.IdentityStore, conversations contract.ConversationStore) error {
	now := time.Now().UTC()

	danaHash, err := auth.HashPassword("hunter2")
	if err != nil {
		return err
	}

	demoUsers := []domain.User{
		{ID: "alice", Username: "alice", DisplayName: "Alice Martin", Identity: "alice@example.com", CreatedAt: now},
		{ID: "bob", Username: "bob", DisplayName: "Bob Dupont", Identity: "bob@example.com", CreatedAt: now},
		{ID: "carol", Username: "carol", DisplayName: "Carol Chen", Identity: "carol@example.com", CreatedAt: now},
		{ID: "dana", Username: "dana", DisplayName: "Dana Moreau", Identity: "dana@example.com", PasswordHash: danaHash, CreatedAt: now},
	}
	for _, u := range demoUsers {
		if err := users.CreateUser(ctx, u); err != nil {
			if errors.Is(err, errors.ErrUserAlreadyExists) {
				continue
			}
			return err
		}
		log.Info("Seeded user",
			slog.String("user_id", u.ID),
			slog.String("identity", u.Identity))
	}

	demoConversations := []domain.Conversation{
		{ID: "general", Participants: []string{"alice", "bob", "carol", "dana"}, CreatedAt: now},
		{ID: "duo", Participants: []string{"alice", "bob"}, CreatedAt: now},
	}
	for _, c := range demoConversations {
		if _, err := conversations.GetConversation(ctx, c.ID); err == nil {
			continue
		} else if !errors.Is(err, errors.ErrConversationNotFound) {
			return err
		}
		if err := conversations.CreateConversation(ctx, c); err != nil {
			return err
		}
		log.Info("Seeded conversation", slog.String("conversation_id", c.ID))
	}

	return nil
}
