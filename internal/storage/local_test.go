package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/integrations"
)

// --- Reminder Tests ---

func TestReminders(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	s.now = func() time.Time { return base }

	r1, err := s.CreateReminder(ctx, integrations.Reminder{ChatID: "42", Description: "send invoice", RemindAt: base.Add(-time.Minute)})
	require.NoError(t, err)
	r2, err := s.CreateReminder(ctx, integrations.Reminder{ChatID: "43", Description: "call back", RemindAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)
	assert.True(t, base.Equal(r1.CreatedAt))

	all, err := s.ListReminders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.ListReminders(ctx, "42")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "send invoice", mine[0].Description)

	due, err := s.DueReminders(ctx, base)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, r1.ID, due[0].ID)

	require.NoError(t, s.MarkNotified(ctx, r1.ID))
	due, err = s.DueReminders(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, due)

	// moving a notified reminder re-arms it
	later := base.Add(2 * time.Hour)
	desc := "send final invoice"
	upd, err := s.UpdateReminder(ctx, r1.ID, integrations.ReminderUpdate{Description: &desc, RemindAt: &later})
	require.NoError(t, err)
	assert.Equal(t, desc, upd.Description)
	assert.False(t, upd.Notified)
	due, err = s.DueReminders(ctx, later)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	done, err := s.CompleteReminder(ctx, r2.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	require.NoError(t, s.DeleteReminder(ctx, r2.ID))
	assert.True(t, integrations.IsNotFound(s.DeleteReminder(ctx, r2.ID)))
	_, err = s.CompleteReminder(ctx, 999)
	assert.True(t, integrations.IsNotFound(err))
	assert.True(t, integrations.IsNotFound(s.MarkNotified(ctx, 999)))
}

// --- Task Tests ---

func TestTaskInbox(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	now := base
	s.now = func() time.Time { return now }

	first, err := s.Notify(ctx, integrations.Notification{ChatID: "b", Type: "reminder", Title: "Reminder", Message: "one", CreatedAt: base.Add(-2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, TaskPending, first.Status)
	_, err = s.Notify(ctx, integrations.Notification{ChatID: "a", Type: "reminder", Title: "Reminder", Message: "two", CreatedAt: base.Add(-time.Minute)})
	require.NoError(t, err)

	ids, err := s.PendingChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids, "oldest task first")

	pending, err := s.PendingForChat(ctx, "b")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "one", pending[0].Message)
	assert.Nil(t, pending[0].SnoozedUntil)

	require.NoError(t, s.Snooze(ctx, first.ID, 30))
	ids, err = s.PendingChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids, "snoozed task is hidden")

	now = base.Add(31 * time.Minute)
	pending, err = s.PendingForChat(ctx, "b")
	require.NoError(t, err)
	require.Len(t, pending, 1, "snooze expired")
	require.NotNil(t, pending[0].SnoozedUntil)

	require.NoError(t, s.Dismiss(ctx, first.ID))
	pending, err = s.PendingForChat(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.True(t, integrations.IsNotFound(s.Dismiss(ctx, 999)))
	assert.True(t, integrations.IsNotFound(s.Snooze(ctx, 999, 5)))
}

func TestRelationships(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Relationship(ctx, "42")
	assert.True(t, integrations.IsNotFound(err))

	rel := integrations.Relationship{IntegrationID: 7, Provider: "hubspot", EntityType: integrations.EntityDeal, EntityID: "d-1"}
	require.NoError(t, s.LinkChat(ctx, "42", rel))
	rel.EntityID = "d-2"
	require.NoError(t, s.LinkChat(ctx, "42", rel))

	got, err := s.Relationship(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, rel, *got)
}
