package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/store"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Open Tests ---

func TestNewCreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := New(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(dir, FileName), s.Path())
	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "current", "c1"))
	require.NoError(t, s.Close())

	s, err = New(dir)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "c1", v)
}

// --- KV Tests ---

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Get(ctx, "missing")
	assert.True(t, store.IsNotFound(err))

	require.NoError(t, s.Put(ctx, "k", "v1"))
	require.NoError(t, s.Put(ctx, "k", "v2"))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is a no-op")
	_, err = s.Get(ctx, "k")
	assert.True(t, store.IsNotFound(err))
}

// --- Conversation Tests ---

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	c := &domain.AgentConversation{
		ID:        "c1",
		Title:     "Archive old chats",
		Provider:  domain.ProviderClaude,
		CreatedAt: base,
		UpdatedAt: base,
		Messages: []domain.AgentMessage{
			{ID: "m1", Role: domain.RoleUser, Content: "archive chat 42", CreatedAt: base},
			{
				ID:        "m2",
				Role:      domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "archiveChat", Arguments: `{"chatId":"42"}`}},
				Reasoning: "need to archive",
				CreatedAt: base,
			},
			{
				ID:         "m3",
				Role:       domain.RoleTool,
				ToolCallID: "call_1",
				ToolResult: &domain.ToolResult{Success: true, AffectedChatIDs: []string{"42"}},
				CreatedAt:  base,
			},
		},
	}
	require.NoError(t, s.SaveConversation(ctx, c))

	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Archive old chats", got.Title)
	assert.Equal(t, domain.ProviderClaude, got.Provider)
	assert.True(t, base.Equal(got.CreatedAt))
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "archiveChat", got.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, "need to archive", got.Messages[1].Reasoning)
	require.NotNil(t, got.Messages[2].ToolResult)
	assert.Equal(t, []string{"42"}, got.Messages[2].ToolResult.AffectedChatIDs)

	// saving again replaces the message list
	c.Messages = c.Messages[:1]
	c.Title = "Renamed"
	require.NoError(t, s.SaveConversation(ctx, c))
	got, err = s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestConversationInvalidAndMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	assert.ErrorIs(t, s.SaveConversation(ctx, nil), store.ErrInvalidID)
	assert.ErrorIs(t, s.SaveConversation(ctx, &domain.AgentConversation{}), store.ErrInvalidID)

	_, err := s.GetConversation(ctx, "nope")
	assert.True(t, store.IsNotFound(err))
	assert.True(t, store.IsNotFound(s.DeleteConversation(ctx, "nope")))
}

func TestListConversationsOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveConversation(ctx, &domain.AgentConversation{
			ID:        id,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// tie on updated_at with "c" resolves by id
	require.NoError(t, s.SaveConversation(ctx, &domain.AgentConversation{
		ID: "d", CreatedAt: base, UpdatedAt: base.Add(2 * time.Minute),
	}))

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"all", store.Filter{}, []string{"d", "c", "b", "a"}},
		{"limit", store.Filter{Limit: 2}, []string{"d", "c"}},
		{"offset", store.Filter{Offset: 3}, []string{"a"}},
		{"page", store.Filter{Limit: 2, Offset: 1}, []string{"c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListConversations(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, c := range list {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveConversation(ctx, &domain.AgentConversation{
		ID: "c1", CreatedAt: base, UpdatedAt: base,
		Messages: []domain.AgentMessage{{ID: "m1", Role: domain.RoleUser, Content: "hi"}},
	}))
	require.NoError(t, s.DeleteConversation(ctx, "c1"))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Zero(t, n)
}

// --- Skill Tests ---

func TestSkills(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	crm := &domain.Skill{ID: "s1", Name: "CRM", Context: "deals", Content: "Use pipelines", Type: domain.SkillTool, IsActive: true, CreatedAt: base, UpdatedAt: base}
	tone := &domain.Skill{ID: "s2", Name: "tone", Content: "Be brief", Type: domain.SkillKnowledge, CreatedAt: base.Add(time.Minute), UpdatedAt: base}
	require.NoError(t, s.SaveSkill(ctx, tone))
	require.NoError(t, s.SaveSkill(ctx, crm))

	list, err := s.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID, "ordered by creation time")
	assert.Equal(t, domain.SkillTool, list[0].Type)
	assert.True(t, list[0].IsActive)
	assert.False(t, list[1].IsActive)

	dup := &domain.Skill{ID: "s3", Name: "crm", CreatedAt: base, UpdatedAt: base}
	err = s.SaveSkill(ctx, dup)
	var de *store.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "crm", de.Key)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	// updating under the same id keeps the name
	crm.Content = "Use stages"
	require.NoError(t, s.SaveSkill(ctx, crm))
	got, err := s.GetSkill(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Use stages", got.Content)

	assert.ErrorIs(t, s.SaveSkill(ctx, &domain.Skill{Name: "x"}), store.ErrInvalidID)

	require.NoError(t, s.DeleteSkill(ctx, "s1"))
	assert.True(t, store.IsNotFound(s.DeleteSkill(ctx, "s1")))
	_, err = s.GetSkill(ctx, "s1")
	assert.True(t, store.IsNotFound(err))
}

// --- Execution Tests ---

func TestExecutions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	mk := func(id, conv string, offset time.Duration) *domain.AgentExecution {
		return &domain.AgentExecution{
			ID:              id,
			ConversationID:  conv,
			Request:         "archive " + id,
			Status:          domain.ExecutionCompleted,
			AffectedChatIDs: []string{"42"},
			CanUndo:         true,
			StartedAt:       base.Add(offset),
			FinishedAt:      base.Add(offset + time.Second),
		}
	}
	require.NoError(t, s.SaveExecution(ctx, mk("e1", "c1", 0)))
	require.NoError(t, s.SaveExecution(ctx, mk("e2", "c2", time.Minute)))
	require.NoError(t, s.SaveExecution(ctx, mk("e3", "c1", 2*time.Minute)))

	all, err := s.ListExecutions(ctx, "", store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID)

	c1, err := s.ListExecutions(ctx, "c1", store.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "e3", c1[0].ID)

	// undo updates the stored copy
	e1 := mk("e1", "c1", 0)
	e1.Undone = true
	require.NoError(t, s.SaveExecution(ctx, e1))
	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Undone)
	assert.Equal(t, []string{"42"}, got.AffectedChatIDs)

	_, err = s.GetExecution(ctx, "missing")
	assert.True(t, store.IsNotFound(err))
	assert.ErrorIs(t, s.SaveExecution(ctx, &domain.AgentExecution{}), store.ErrInvalidID)
}
