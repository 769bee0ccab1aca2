// Package notify is the hand-off point to the platform's push
// channel. The relay only computes who is unreachable; delivery is
// somebody else's job.
package notify

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
)

// OfflineParticipants returns the participants with zero live
// connections, given a presence snapshot taken at send time. Pure
// membership versus presence: the caller decides who else to skip.
func OfflineParticipants(conv domain.Conversation, online map[string]struct{}) []string {
	var offline []string
	for _, userID := range conv.Participants {
		if _, ok := online[userID]; !ok {
			offline = append(offline, userID)
		}
	}
	return offline
}

// LogNotifier is the default hook implementation: it records the
// notification and succeeds. Operators bridge it to a real push
// provider by swapping the Notifier given to the hub.
type LogNotifier struct {
	log *slog.Logger
}

var _ contract.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, userID string, summary domain.NotificationSummary) error {
	n.log.Info("offline notification",
		slog.String("user_id", userID),
		slog.String("conversation_id", summary.ConversationID),
		slog.String("sender_id", summary.SenderID),
		slog.String("preview", summary.Preview),
	)
	return nil
}
