// Package conversation manages the user's independent message histories
// and which one is current.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/store"
)

// currentKey holds the current conversation id in the KV space.
const currentKey = "conversation.current"

const (
	titleLen     = 50
	DefaultTitle = "New conversation"
)

var (
	ErrNoCurrent        = errors.New("no conversation selected")
	ErrOrphanToolResult = errors.New("tool result does not answer the preceding assistant message")
	ErrToolCallNotFound = errors.New("tool call not found")
)

// Backend is the persistence a Store needs.
type Backend interface {
	store.ConversationStore
	store.KV
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	backend Backend
	current string
	now     func() time.Time
	newID   func() string
	log     *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides ULID generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a Store and restores the current pointer from backend.
func New(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		newID:   func() string { return ulid.Make().String() },
		log:     logging.New("conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	id, err := backend.Get(ctx, currentKey)
	switch {
	case store.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("load current conversation: %w", err)
	default:
		if _, err := backend.GetConversation(ctx, id); err == nil {
			s.current = id
		}
	}
	return s, nil
}

func (s *Store) setCurrent(ctx context.Context, id string) error {
	s.current = id
	if id == "" {
		if err := s.backend.Delete(ctx, currentKey); err != nil && !store.IsNotFound(err) {
			return err
		}
		return nil
	}
	return s.backend.Put(ctx, currentKey, id)
}

// Create starts an empty conversation and makes it current.
func (s *Store) Create(ctx context.Context, provider domain.ProviderID) (*domain.AgentConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := &domain.AgentConversation{
		ID:        s.newID(),
		Title:     DefaultTitle,
		Messages:  []domain.AgentMessage{},
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.backend.SaveConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	if err := s.setCurrent(ctx, c.ID); err != nil {
		return nil, err
	}
	s.log.Info("conversation_created", map[string]any{"conversation_id": c.ID, "provider": string(provider)})
	return c.Clone(), nil
}

// Switch makes id current.
func (s *Store) Switch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.backend.GetConversation(ctx, id); err != nil {
		return err
	}
	return s.setCurrent(ctx, id)
}

// Delete removes a conversation. Deleting the current one leaves none
// selected.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if s.current == id {
		return s.setCurrent(ctx, "")
	}
	return nil
}

// CurrentID returns the current conversation id or "".
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current returns the current conversation or ErrNoCurrent.
func (s *Store) Current(ctx context.Context) (*domain.AgentConversation, error) {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	if id == "" {
		return nil, ErrNoCurrent
	}
	return s.backend.GetConversation(ctx, id)
}

// Get returns a copy of one conversation.
func (s *Store) Get(ctx context.Context, id string) (*domain.AgentConversation, error) {
	return s.backend.GetConversation(ctx, id)
}

// List returns every conversation, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*domain.AgentConversation, error) {
	return s.backend.ListConversations(ctx, store.Filter{})
}

// Append adds msg to conversation id and returns it with its id and
// timestamp filled in. A tool message must answer a call of the assistant
// message it follows, with only other tool messages in between.
func (s *Store) Append(ctx context.Context, id string, msg domain.AgentMessage) (domain.AgentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return domain.AgentMessage{}, err
	}
	if msg.Role == domain.RoleTool && !answersPending(c.Messages, msg.ToolCallID) {
		return domain.AgentMessage{}, fmt.Errorf("%w: %s", ErrOrphanToolResult, msg.ToolCallID)
	}

	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	c.Messages = append(c.Messages, msg)
	if msg.Role == domain.RoleUser && c.Title == DefaultTitle {
		c.Title = Title(msg.Content)
	}
	c.UpdatedAt = s.now()

	if err := s.backend.SaveConversation(ctx, c); err != nil {
		return domain.AgentMessage{}, fmt.Errorf("save conversation: %w", err)
	}
	return msg, nil
}

// AttachToolResult sets the result of the tool message answering
// toolCallID. It is the only mutation allowed on a stored message.
func (s *Store) AttachToolResult(ctx context.Context, id, toolCallID string, result domain.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := &c.Messages[i]
		if m.Role == domain.RoleTool && m.ToolCallID == toolCallID {
			r := result
			m.ToolResult = &r
			m.Content = result.JSON()
			c.UpdatedAt = s.now()
			return s.backend.SaveConversation(ctx, c)
		}
	}
	return fmt.Errorf("%w: %s", ErrToolCallNotFound, toolCallID)
}

// answersPending reports whether callID belongs to the last assistant
// message and has not been answered yet.
func answersPending(msgs []domain.AgentMessage, callID string) bool {
	answered := map[string]bool{}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		switch m.Role {
		case domain.RoleTool:
			answered[m.ToolCallID] = true
		case domain.RoleAssistant:
			if answered[callID] {
				return false
			}
			for _, tc := range m.ToolCalls {
				if tc.ID == callID {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// Title derives a conversation title from the first user message.
func Title(content string) string {
	if content == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(content) <= titleLen {
		return content
	}
	return string([]rune(content)[:titleLen]) + "..."
}
