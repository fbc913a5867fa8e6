package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/telebiz/agentcore/internal/domain"
)

// Memory implements Backend with maps. Values are copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu            sync.RWMutex
	kv            map[string]string
	conversations map[string]*domain.AgentConversation
	skills        map[string]domain.Skill
	executions    map[string][]byte
	closed        bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		kv:            make(map[string]string),
		conversations: make(map[string]*domain.AgentConversation),
		skills:        make(map[string]domain.Skill),
		executions:    make(map[string][]byte),
	}
}

var _ Backend = (*Memory)(nil)

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// --- KV ---

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return "", NewNotFoundError("key", key)
	}
	return v, nil
}

func (m *Memory) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// --- Conversations ---

func (m *Memory) SaveConversation(ctx context.Context, c *domain.AgentConversation) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c.Clone()
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (*domain.AgentConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, NewNotFoundError("conversation", id)
	}
	return c.Clone(), nil
}

func (m *Memory) ListConversations(ctx context.Context, f Filter) ([]*domain.AgentConversation, error) {
	m.mu.RLock()
	out := make([]*domain.AgentConversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return page(out, f), nil
}

func (m *Memory) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return NewNotFoundError("conversation", id)
	}
	delete(m.conversations, id)
	return nil
}

// --- Skills ---

func (m *Memory) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	m.mu.RLock()
	out := make([]domain.Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID) })
	return out, nil
}

func (m *Memory) GetSkill(ctx context.Context, id string) (*domain.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[id]
	if !ok {
		return nil, NewNotFoundError("skill", id)
	}
	return &s, nil
}

func (m *Memory) SaveSkill(ctx context.Context, s *domain.Skill) error {
	if s == nil || s.ID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.skills {
		if id != s.ID && strings.EqualFold(existing.Name, s.Name) {
			return &DuplicateError{Entity: "skill", Key: s.Name}
		}
	}
	m.skills[s.ID] = *s
	return nil
}

func (m *Memory) DeleteSkill(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.skills[id]; !ok {
		return NewNotFoundError("skill", id)
	}
	delete(m.skills, id)
	return nil
}

// --- Executions ---

// Executions are kept serialized so nested slices are never shared.
func (m *Memory) SaveExecution(ctx context.Context, e *domain.AgentExecution) error {
	if e == nil || e.ID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = data
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id string) (*domain.AgentExecution, error) {
	m.mu.RLock()
	data, ok := m.executions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, NewNotFoundError("execution", id)
	}
	var e domain.AgentExecution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Memory) ListExecutions(ctx context.Context, conversationID string, f Filter) ([]*domain.AgentExecution, error) {
	m.mu.RLock()
	var out []*domain.AgentExecution
	for _, data := range m.executions {
		var e domain.AgentExecution
		if err := json.Unmarshal(data, &e); err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		if conversationID == "" || e.ConversationID == conversationID {
			out = append(out, &e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, f), nil
}
