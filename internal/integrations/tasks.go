package integrations

import (
	"context"
	"time"
)

// Notification is a pending task in the user's inbox.
type Notification struct {
	ID           int64      `json:"id"`
	ChatID       string     `json:"chatId"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	MessageID    string     `json:"messageId,omitempty"`
	RemindAt     *time.Time `json:"remindAt,omitempty"`
	SnoozedUntil *time.Time `json:"snoozedUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Relationship links a chat to a CRM entity.
type Relationship struct {
	IntegrationID int64      `json:"integrationId"`
	Provider      string     `json:"provider"`
	EntityType    EntityType `json:"entityType"`
	EntityID      string     `json:"entityId"`
}

// Tasks is the task inbox (notifications) contract.
type Tasks interface {
	// PendingChatIDs returns chats with pending tasks, most urgent first.
	PendingChatIDs(ctx context.Context) ([]string, error)
	PendingForChat(ctx context.Context, chatID string) ([]Notification, error)
	Relationship(ctx context.Context, chatID string) (*Relationship, error)
	Dismiss(ctx context.Context, id int64) error
	Snooze(ctx context.Context, id int64, minutes int) error
	// Notify records a new pending task.
	Notify(ctx context.Context, n Notification) (*Notification, error)
}
