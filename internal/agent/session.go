// Package agent runs conversation turns: it streams model output, turns
// tool calls into plans, waits for confirmation when a plan needs it,
// executes them and feeds the results back to the model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/telebiz/agentcore/internal/conversation"
	"github.com/telebiz/agentcore/internal/dispatch"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/execution"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/provider"
	"github.com/telebiz/agentcore/internal/store"
)

// MaxIterations bounds the model calls of one turn.
const MaxIterations = 100

var (
	// ErrBusy is returned by Send while another turn is running.
	ErrBusy = errors.New("agent is busy with another request")

	// ErrNothingToUndo is returned by UndoLast when no execution is recorded.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// ExecutionSink receives every finished execution, for audit and metrics.
type ExecutionSink interface {
	RecordExecution(ctx context.Context, e *domain.AgentExecution) error
}

// Config holds the per-session settings.
type Config struct {
	UserID        string
	Mode          domain.Mode
	Model         string
	SystemPrompt  string // replaces the built-in base prompt when set
	CustomPrompt  string
	AllOrNothing  bool
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Deps are the components a session drives. Skills, Executions and Sinks
// are optional.
type Deps struct {
	Provider      provider.Provider
	Conversations *conversation.Store
	Plans         *plan.Engine
	Executor      *execution.Engine
	Tools         *dispatch.Dispatcher
	Skills        store.SkillStore
	Executions    store.ExecutionStore
	Sinks         []ExecutionSink
}

// Session owns the agent state of one user: mode, loaded bundles per
// conversation and the execution history used for undo.
type Session struct {
	cfg    Config
	deps   Deps
	prompt *PromptBuilder
	log    *logging.Logger

	mu       sync.Mutex
	mode     domain.Mode
	provider provider.Provider
	loaded   map[string]map[extratool.Name]bool
	history  []*domain.AgentExecution
	busy     bool
}

// New creates a session.
func New(cfg Config, deps Deps) (*Session, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("agent: provider is required")
	case deps.Conversations == nil:
		return nil, errors.New("agent: conversation store is required")
	case deps.Plans == nil || deps.Executor == nil:
		return nil, errors.New("agent: plan and execution engines are required")
	case deps.Tools == nil:
		return nil, errors.New("agent: tool dispatcher is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeAgent
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("agent: invalid mode %q", cfg.Mode)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = MaxIterations
	}
	prompt := NewPromptBuilder(cfg.SystemPrompt)
	prompt.SetCustomPrompt(cfg.CustomPrompt)
	return &Session{
		cfg:      cfg,
		deps:     deps,
		prompt:   prompt,
		log:      logging.New("agent"),
		mode:     cfg.Mode,
		provider: deps.Provider,
		loaded:   make(map[string]map[extratool.Name]bool),
	}, nil
}

// Mode returns the current mode.
func (s *Session) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the mode used by the next turn.
func (s *Session) SetMode(m domain.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid mode %q", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

// Provider returns the model provider.
func (s *Session) Provider() provider.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SetProvider switches the model provider used by the next turn.
func (s *Session) SetProvider(p provider.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

// Conversations exposes the conversation store.
func (s *Session) Conversations() *conversation.Store { return s.deps.Conversations }

// Plans exposes the plan engine.
func (s *Session) Plans() *plan.Engine { return s.deps.Plans }

// Busy reports whether a turn is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Confirm releases a plan awaiting confirmation.
func (s *Session) Confirm(planID string) error {
	return s.deps.Plans.Confirm(planID)
}

// Cancel cancels a plan. A plan that is already executing stops after the
// step in flight.
func (s *Session) Cancel(planID string) error {
	p, err := s.deps.Plans.Get(planID)
	if err != nil {
		return err
	}
	if p.Status == domain.PlanExecuting {
		s.deps.Executor.Cancel()
		return nil
	}
	return s.deps.Plans.Cancel(planID)
}

// Load makes a bundle's tools visible in a conversation.
func (s *Session) Load(conversationID string, name extratool.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.loaded[conversationID]
	if !ok {
		set = make(map[extratool.Name]bool)
		s.loaded[conversationID] = set
	}
	if !set[name] {
		set[name] = true
		s.log.Info("bundle_loaded", map[string]any{"conversation_id": conversationID, "bundle": string(name)})
	}
}

// LoadedBundles returns the bundles loaded in a conversation, in display
// order.
func (s *Session) LoadedBundles(conversationID string) []extratool.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []extratool.Name
	for _, n := range extratool.Names {
		if s.loaded[conversationID][n] {
			out = append(out, n)
		}
	}
	return out
}

// Tools returns the definitions exposed to the model in a conversation:
// the core tools for the mode plus every loaded bundle's tools for the mode.
func (s *Session) Tools(conversationID string) []domain.ToolDefinition {
	mode := s.Mode()
	defs := s.deps.Tools.CoreDefinitions(mode)
	if extras := s.deps.Tools.Extras(); extras != nil {
		for _, n := range s.LoadedBundles(conversationID) {
			defs = append(defs, extras.ToolsForMode(n, mode)...)
		}
	}
	return defs
}

// Bundles lists every extra tool bundle, loaded or not.
func (s *Session) Bundles() []extratool.ExtraTool {
	if extras := s.deps.Tools.Extras(); extras != nil {
		return extras.ListBundles()
	}
	return nil
}

func (s *Session) bundles(conversationID string) []extratool.ExtraTool {
	extras := s.deps.Tools.Extras()
	if extras == nil {
		return nil
	}
	var out []extratool.ExtraTool
	for _, n := range s.LoadedBundles(conversationID) {
		if b, ok := extras.GetBundle(n); ok {
			out = append(out, b)
		}
	}
	return out
}

// Forget drops the per-conversation state of a deleted conversation.
func (s *Session) Forget(conversationID string) {
	s.mu.Lock()
	delete(s.loaded, conversationID)
	s.mu.Unlock()
	s.deps.Plans.Forget(conversationID)
}

// DeleteConversation deletes a conversation and its session state.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if err := s.deps.Conversations.Delete(ctx, id); err != nil {
		return err
	}
	s.Forget(id)
	return nil
}

// Executions returns the executions of this session, oldest first.
func (s *Session) Executions() []*domain.AgentExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.AgentExecution(nil), s.history...)
}

// LastExecution returns the most recent execution, or nil.
func (s *Session) LastExecution() *domain.AgentExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// record keeps a finished execution and hands it to storage and sinks.
func (s *Session) record(ctx context.Context, exec *domain.AgentExecution) {
	s.mu.Lock()
	s.history = append(s.history, exec)
	s.mu.Unlock()
	s.persist(ctx, exec)
}

// persist saves exec and hands it to the sinks. Storage failures are
// logged; the in-memory history stays authoritative.
func (s *Session) persist(ctx context.Context, exec *domain.AgentExecution) {
	ctx = context.WithoutCancel(ctx)
	if s.deps.Executions != nil {
		if err := s.deps.Executions.SaveExecution(ctx, exec); err != nil {
			s.log.Error("execution_save_failed", map[string]any{"execution_id": exec.ID}, err)
		}
	}
	for _, sink := range s.deps.Sinks {
		if err := sink.RecordExecution(ctx, exec); err != nil {
			s.log.Warn("execution_sink_failed", map[string]any{"execution_id": exec.ID}, err)
		}
	}
}

// UndoLast reverts the most recent execution and appends an "Undone"
// message to its conversation.
func (s *Session) UndoLast(ctx context.Context) (*domain.AgentMessage, []execution.UndoResult, error) {
	exec := s.LastExecution()
	if exec == nil {
		return nil, nil, ErrNothingToUndo
	}
	results, undoErr := s.deps.Executor.Undo(ctx, exec)
	if errors.Is(undoErr, execution.ErrNotUndoable) || errors.Is(undoErr, execution.ErrAlreadyUndone) {
		return nil, nil, undoErr
	}
	s.persist(ctx, exec)

	msg, err := s.deps.Conversations.Append(ctx, exec.ConversationID, domain.AgentMessage{
		Role:    domain.RoleAssistant,
		Content: "Undone: " + exec.Request,
	})
	if err != nil {
		return nil, results, fmt.Errorf("append undo message: %w", err)
	}
	return &msg, results, undoErr
}
