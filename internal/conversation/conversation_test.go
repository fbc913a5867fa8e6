package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/store"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	n := 0
	s, err := New(context.Background(), backend,
		WithClock(func() time.Time { return epoch }),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	require.NoError(t, err)
	return s
}

func user(text string) domain.AgentMessage {
	return domain.AgentMessage{Role: domain.RoleUser, Content: text}
}

func assistantCalls(ids ...string) domain.AgentMessage {
	m := domain.AgentMessage{Role: domain.RoleAssistant}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, domain.ToolCall{ID: id, Name: "listChats", Arguments: "{}"})
	}
	return m
}

func toolMsg(id string) domain.AgentMessage {
	return domain.AgentMessage{Role: domain.RoleTool, ToolCallID: id, Content: "{}"}
}

// --- Store Tests ---

func TestCreateSwitchDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, store.NewMemory())

	a, err := s.Create(ctx, domain.ProviderClaude)
	require.NoError(t, err)
	b, err := s.Create(ctx, domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, b.ID, s.CurrentID())
	assert.Equal(t, DefaultTitle, a.Title)

	require.NoError(t, s.Switch(ctx, a.ID))
	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderClaude, cur.Provider)

	assert.True(t, store.IsNotFound(s.Switch(ctx, "nope")))

	require.NoError(t, s.Delete(ctx, b.ID))
	assert.Equal(t, a.ID, s.CurrentID(), "deleting another conversation keeps the current one")

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.Empty(t, s.CurrentID())
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, ErrNoCurrent)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCurrentSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	s := newStore(t, backend)
	c, err := s.Create(ctx, domain.ProviderOpenRouter)
	require.NoError(t, err)

	again := newStore(t, backend)
	assert.Equal(t, c.ID, again.CurrentID())
}

func TestLazyTitle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, store.NewMemory())
	c, err := s.Create(ctx, domain.ProviderClaude)
	require.NoError(t, err)

	long := strings.Repeat("x", 60)
	_, err = s.Append(ctx, c.ID, user(long))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, user("second message"))
	require.NoError(t, err)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 50)+"...", got.Title)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "id-2", got.Messages[0].ID)
	assert.Equal(t, epoch, got.Messages[0].CreatedAt)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultTitle},
		{"Archive old chats", "Archive old chats"},
		{strings.Repeat("é", 50), strings.Repeat("é", 50)},
		{strings.Repeat("é", 51), strings.Repeat("é", 50) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Title(tt.in))
	}
}

func TestAppendEnforcesToolAdjacency(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, store.NewMemory())
	c, err := s.Create(ctx, domain.ProviderClaude)
	require.NoError(t, err)

	_, err = s.Append(ctx, c.ID, toolMsg("t1"))
	assert.ErrorIs(t, err, ErrOrphanToolResult)

	_, err = s.Append(ctx, c.ID, user("hi"))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, assistantCalls("t1", "t2"))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, toolMsg("t1"))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, toolMsg("t1"))
	assert.ErrorIs(t, err, ErrOrphanToolResult, "already answered")
	_, err = s.Append(ctx, c.ID, toolMsg("t2"))
	require.NoError(t, err)

	_, err = s.Append(ctx, c.ID, user("next"))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, toolMsg("t2"))
	assert.ErrorIs(t, err, ErrOrphanToolResult, "a user message breaks adjacency")
}

func TestAttachToolResult(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, store.NewMemory())
	c, err := s.Create(ctx, domain.ProviderClaude)
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, assistantCalls("t1"))
	require.NoError(t, err)
	_, err = s.Append(ctx, c.ID, domain.AgentMessage{Role: domain.RoleTool, ToolCallID: "t1"})
	require.NoError(t, err)

	require.NoError(t, s.AttachToolResult(ctx, c.ID, "t1", domain.OK(map[string]any{"n": 1})))
	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Messages[1].ToolResult)
	assert.True(t, got.Messages[1].ToolResult.Success)
	assert.Contains(t, got.Messages[1].Content, `"n":1`)

	err = s.AttachToolResult(ctx, c.ID, "missing", domain.OK(nil))
	assert.ErrorIs(t, err, ErrToolCallNotFound)
}

// --- ValidateHistory Tests ---

func TestValidateHistory(t *testing.T) {
	answered := assistantCalls("a")
	partly := assistantCalls("b", "c")
	withText := assistantCalls("d")
	withText.Content = "Let me check."

	tests := []struct {
		name string
		in   []domain.AgentMessage
		want []domain.AgentMessage
	}{
		{
			name: "valid history unchanged",
			in:   []domain.AgentMessage{user("hi"), answered, toolMsg("a")},
			want: []domain.AgentMessage{user("hi"), answered, toolMsg("a")},
		},
		{
			name: "unanswered call stripped",
			in:   []domain.AgentMessage{user("hi"), partly, toolMsg("c")},
			want: []domain.AgentMessage{user("hi"), {Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{partly.ToolCalls[1]}}, toolMsg("c")},
		},
		{
			name: "assistant with no answered calls dropped",
			in:   []domain.AgentMessage{user("hi"), assistantCalls("x"), user("again")},
			want: []domain.AgentMessage{user("hi"), user("again")},
		},
		{
			name: "content kept when calls are stripped",
			in:   []domain.AgentMessage{withText},
			want: []domain.AgentMessage{{Role: domain.RoleAssistant, Content: "Let me check."}},
		},
		{
			name: "orphan tool messages dropped",
			in:   []domain.AgentMessage{toolMsg("z"), user("hi"), toolMsg("a")},
			want: []domain.AgentMessage{user("hi")},
		},
		{
			name: "result for an unknown call dropped",
			in:   []domain.AgentMessage{answered, toolMsg("a"), toolMsg("q")},
			want: []domain.AgentMessage{answered, toolMsg("a")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateHistory(tt.in))
		})
	}
}
