package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/telebiz/agentcore/internal/integrations"
)

// The local reminders store and task inbox back the reminders bundle and
// the reminder sweeper when no remote service is wired.

var (
	_ integrations.Reminders = (*Storage)(nil)
	_ integrations.Tasks     = (*Storage)(nil)
)

const (
	TaskPending   = "pending"
	TaskDismissed = "dismissed"
)

const reminderColumns = `id, chat_id, message_id, description, remind_at, completed, notified, created_at`

func scanReminder(row scanner) (*integrations.Reminder, error) {
	var r integrations.Reminder
	if err := row.Scan(&r.ID, &r.ChatID, &r.MessageID, &r.Description, &r.RemindAt, &r.Completed, &r.Notified, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) queryReminders(ctx context.Context, query string, args ...any) ([]integrations.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []integrations.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Storage) reminder(ctx context.Context, id int64) (*integrations.Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, integrations.NewNotFoundError("reminder", strconv.FormatInt(id, 10))
	}
	return r, err
}

// ListReminders lists a chat's reminders, or all of them for "".
func (s *Storage) ListReminders(ctx context.Context, chatID string) ([]integrations.Reminder, error) {
	if chatID == "" {
		return s.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY remind_at ASC, id ASC`)
	}
	return s.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE chat_id = ? ORDER BY remind_at ASC, id ASC`, chatID)
}

func (s *Storage) CreateReminder(ctx context.Context, r integrations.Reminder) (*integrations.Reminder, error) {
	r.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (chat_id, message_id, description, remind_at, completed, notified, created_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)
	`, r.ChatID, r.MessageID, r.Description, r.RemindAt.UTC(), r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return &r, nil
}

// updateReminder runs a statement on one reminder and returns it afterwards.
func (s *Storage) updateReminder(ctx context.Context, id int64, query string, args ...any) (*integrations.Reminder, error) {
	res, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, integrations.NewNotFoundError("reminder", strconv.FormatInt(id, 10))
	}
	return s.reminder(ctx, id)
}

func (s *Storage) CompleteReminder(ctx context.Context, id int64) (*integrations.Reminder, error) {
	return s.updateReminder(ctx, id, `UPDATE reminders SET completed = 1 WHERE id = ?`)
}

func (s *Storage) DeleteReminder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return integrations.NewNotFoundError("reminder", strconv.FormatInt(id, 10))
	}
	return nil
}

// UpdateReminder changes the description and/or time. Moving the time
// re-arms the reminder for the sweeper.
func (s *Storage) UpdateReminder(ctx context.Context, id int64, upd integrations.ReminderUpdate) (*integrations.Reminder, error) {
	cur, err := s.reminder(ctx, id)
	if err != nil {
		return nil, err
	}
	desc, at, notified := cur.Description, cur.RemindAt, cur.Notified
	if upd.Description != nil {
		desc = *upd.Description
	}
	if upd.RemindAt != nil {
		at = *upd.RemindAt
		notified = false
	}
	return s.updateReminder(ctx, id, `UPDATE reminders SET description = ?, remind_at = ?, notified = ? WHERE id = ?`,
		desc, at.UTC(), notified)
}

func (s *Storage) DueReminders(ctx context.Context, now time.Time) ([]integrations.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE completed = 0 AND notified = 0 AND remind_at <= ?
		ORDER BY remind_at ASC, id ASC
	`, now.UTC())
}

func (s *Storage) MarkNotified(ctx context.Context, id int64) error {
	_, err := s.updateReminder(ctx, id, `UPDATE reminders SET notified = 1 WHERE id = ?`)
	return err
}

// Task inbox

const taskColumns = `id, chat_id, type, title, message, status, message_id, remind_at, snoozed_until, created_at`

// PendingChatIDs orders chats by their oldest visible pending task.
func (s *Storage) PendingChatIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM tasks
		WHERE status = ? AND (snoozed_until IS NULL OR snoozed_until <= ?)
		GROUP BY chat_id
		ORDER BY MIN(created_at) ASC
	`, TaskPending, s.now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Storage) PendingForChat(ctx context.Context, chatID string) ([]integrations.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE chat_id = ? AND status = ? AND (snoozed_until IS NULL OR snoozed_until <= ?)
		ORDER BY created_at ASC, id ASC
	`, chatID, TaskPending, s.now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []integrations.Notification
	for rows.Next() {
		var n integrations.Notification
		var remindAt, snoozed sql.NullTime
		if err := rows.Scan(&n.ID, &n.ChatID, &n.Type, &n.Title, &n.Message, &n.Status, &n.MessageID, &remindAt, &snoozed, &n.CreatedAt); err != nil {
			return nil, err
		}
		if remindAt.Valid {
			n.RemindAt = &remindAt.Time
		}
		if snoozed.Valid {
			n.SnoozedUntil = &snoozed.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Storage) Relationship(ctx context.Context, chatID string) (*integrations.Relationship, error) {
	var rel integrations.Relationship
	var entityType string
	err := s.db.QueryRowContext(ctx, `
		SELECT integration_id, provider, entity_type, entity_id FROM relationships WHERE chat_id = ?
	`, chatID).Scan(&rel.IntegrationID, &rel.Provider, &entityType, &rel.EntityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, integrations.NewNotFoundError("relationship", chatID)
	}
	if err != nil {
		return nil, err
	}
	rel.EntityType = integrations.EntityType(entityType)
	return &rel, nil
}

// LinkChat records which CRM entity a chat belongs to.
func (s *Storage) LinkChat(ctx context.Context, chatID string, rel integrations.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (chat_id, integration_id, provider, entity_type, entity_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			integration_id = excluded.integration_id,
			provider = excluded.provider,
			entity_type = excluded.entity_type,
			entity_id = excluded.entity_id
	`, chatID, rel.IntegrationID, rel.Provider, string(rel.EntityType), rel.EntityID)
	return err
}

func (s *Storage) updateTask(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return integrations.NewNotFoundError("task", strconv.FormatInt(id, 10))
	}
	return nil
}

func (s *Storage) Dismiss(ctx context.Context, id int64) error {
	return s.updateTask(ctx, id, `UPDATE tasks SET status = ? WHERE id = ?`, TaskDismissed)
}

func (s *Storage) Snooze(ctx context.Context, id int64, minutes int) error {
	until := s.now().UTC().Add(time.Duration(minutes) * time.Minute)
	return s.updateTask(ctx, id, `UPDATE tasks SET snoozed_until = ? WHERE id = ?`, until)
}

func (s *Storage) Notify(ctx context.Context, n integrations.Notification) (*integrations.Notification, error) {
	if n.Status == "" {
		n.Status = TaskPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	var remindAt, snoozed any
	if n.RemindAt != nil {
		remindAt = n.RemindAt.UTC()
	}
	if n.SnoozedUntil != nil {
		snoozed = n.SnoozedUntil.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (chat_id, type, title, message, status, message_id, remind_at, snoozed_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ChatID, n.Type, n.Title, n.Message, n.Status, n.MessageID, remindAt, snoozed, n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return &n, nil
}
