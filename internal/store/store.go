// Package store declares the persistence contracts of the agent engine and
// ships an in-memory implementation. The sqlite backend lives in
// internal/storage.
package store

import (
	"context"

	"github.com/telebiz/agentcore/internal/domain"
)

// Store is the minimal interface all stores must implement.
type Store interface {
	// Ping verifies the backend is usable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Filter defines paging for list operations.
type Filter struct {
	Limit  int // Maximum results (0 = no limit)
	Offset int // Skip first N results
}

// DefaultFilter returns a filter with sensible defaults.
func DefaultFilter() Filter {
	return Filter{Limit: 100}
}

// WithLimit returns a copy of the filter with a new limit.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithOffset returns a copy of the filter with a new offset.
func (f Filter) WithOffset(n int) Filter {
	f.Offset = n
	return f
}

// page applies the filter to an already ordered slice.
func page[T any](items []T, f Filter) []T {
	if f.Offset >= len(items) {
		return nil
	}
	items = items[f.Offset:]
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}

// KV is a flat key-value space for small session state such as the
// current conversation pointer.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ConversationStore persists conversations keyed by id.
type ConversationStore interface {
	SaveConversation(ctx context.Context, c *domain.AgentConversation) error
	GetConversation(ctx context.Context, id string) (*domain.AgentConversation, error)
	// ListConversations returns conversations, most recently updated first.
	ListConversations(ctx context.Context, f Filter) ([]*domain.AgentConversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// SkillStore persists user skills. Names are unique, case-insensitively.
type SkillStore interface {
	ListSkills(ctx context.Context) ([]domain.Skill, error)
	GetSkill(ctx context.Context, id string) (*domain.Skill, error)
	SaveSkill(ctx context.Context, s *domain.Skill) error
	DeleteSkill(ctx context.Context, id string) error
}

// ExecutionStore persists finished executions.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, e *domain.AgentExecution) error
	GetExecution(ctx context.Context, id string) (*domain.AgentExecution, error)
	// ListExecutions returns a conversation's executions, newest first.
	// An empty conversationID lists all.
	ListExecutions(ctx context.Context, conversationID string, f Filter) ([]*domain.AgentExecution, error)
}

// Backend bundles every contract, as implemented by Memory and the sqlite store.
type Backend interface {
	Store
	KV
	ConversationStore
	SkillStore
	ExecutionStore
}
