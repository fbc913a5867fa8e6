package integrations

import (
	"context"
	"time"
)

// Reminder is a scheduled nudge attached to a chat.
type Reminder struct {
	ID          int64     `json:"id"`
	ChatID      string    `json:"chatId"`
	MessageID   string    `json:"messageId,omitempty"`
	Description string    `json:"description"`
	RemindAt    time.Time `json:"remindAt"`
	Completed   bool      `json:"completed"`
	Notified    bool      `json:"notified"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReminderUpdate carries the optional fields of an update.
type ReminderUpdate struct {
	Description *string
	RemindAt    *time.Time
}

// Reminders is the reminders store.
type Reminders interface {
	ListReminders(ctx context.Context, chatID string) ([]Reminder, error)
	CreateReminder(ctx context.Context, r Reminder) (*Reminder, error)
	CompleteReminder(ctx context.Context, id int64) (*Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error
	UpdateReminder(ctx context.Context, id int64, upd ReminderUpdate) (*Reminder, error)
	// DueReminders returns incomplete, not yet notified reminders due at or before now.
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkNotified(ctx context.Context, id int64) error
}
