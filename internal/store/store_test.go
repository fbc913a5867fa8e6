package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
)

func TestFilter_WithMethods(t *testing.T) {
	f := DefaultFilter()
	assert.Equal(t, 100, f.Limit)

	f2 := f.WithLimit(50).WithOffset(10)
	assert.Equal(t, 50, f2.Limit)
	assert.Equal(t, 10, f2.Offset)
	assert.Equal(t, 100, f.Limit, "original filter was mutated")
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{2, 3}, page(items, Filter{Offset: 1, Limit: 2}))
	assert.Equal(t, []int{4, 5}, page(items, Filter{Offset: 3}))
	assert.Nil(t, page(items, Filter{Offset: 9}))
}

func TestErrors(t *testing.T) {
	err := NewNotFoundError("conversation", "abc123")
	assert.True(t, IsNotFound(err))

	var nfe *NotFoundError
	require.True(t, errors.As(err, &nfe))
	assert.Equal(t, "conversation", nfe.Entity)
	assert.Equal(t, "abc123", nfe.ID)

	dup := &DuplicateError{Entity: "skill", Key: "crm"}
	assert.True(t, errors.Is(dup, ErrAlreadyExists))
}

func TestMemoryConversations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	older := &domain.AgentConversation{ID: "a", UpdatedAt: now.Add(-time.Hour)}
	newer := &domain.AgentConversation{ID: "b", UpdatedAt: now}
	require.NoError(t, m.SaveConversation(ctx, older))
	require.NoError(t, m.SaveConversation(ctx, newer))

	list, err := m.ListConversations(ctx, DefaultFilter())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	got, err := m.GetConversation(ctx, "a")
	require.NoError(t, err)
	got.Messages = append(got.Messages, domain.AgentMessage{ID: "m"})
	again, _ := m.GetConversation(ctx, "a")
	assert.Empty(t, again.Messages, "stored copy must not change")

	require.NoError(t, m.DeleteConversation(ctx, "a"))
	_, err = m.GetConversation(ctx, "a")
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(m.DeleteConversation(ctx, "a")))
}

func TestMemorySkillsUniqueName(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveSkill(ctx, &domain.Skill{ID: "1", Name: "deals"}))
	err := m.SaveSkill(ctx, &domain.Skill{ID: "2", Name: "Deals"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	require.NoError(t, m.SaveSkill(ctx, &domain.Skill{ID: "1", Name: "deals", Content: "updated"}))
	s, err := m.GetSkill(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "updated", s.Content)
}

func TestMemoryExecutions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	require.NoError(t, m.SaveExecution(ctx, &domain.AgentExecution{ID: "e1", ConversationID: "c1", StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, m.SaveExecution(ctx, &domain.AgentExecution{ID: "e2", ConversationID: "c1", StartedAt: now}))
	require.NoError(t, m.SaveExecution(ctx, &domain.AgentExecution{ID: "e3", ConversationID: "c2", StartedAt: now}))

	list, err := m.ListExecutions(ctx, "c1", DefaultFilter())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].ID)

	all, err := m.ListExecutions(ctx, "", DefaultFilter())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "current")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Put(ctx, "current", "c1"))
	v, err := m.Get(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "c1", v)

	require.NoError(t, m.Delete(ctx, "current"))
	_, err = m.Get(ctx, "current")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
}
