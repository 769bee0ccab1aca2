package domain

// NotificationSummary is the payload handed to the offline
// notification hook. Preview is already truncated.
type NotificationSummary struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Preview        string
}
