// Package plan turns a batch of proposed tool calls into an AgentPlan and
// owns its lifecycle: confirmation, cancellation and the per-step status
// updates made while it executes.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/tool"
)

var (
	// ErrPlanInProgress is returned by Propose while the conversation's
	// current plan has not reached a terminal state.
	ErrPlanInProgress = errors.New("a plan is already in progress")

	// ErrReadOnlyMode is returned when ask mode proposes a write.
	ErrReadOnlyMode = errors.New("read-only mode: write tools are not allowed")

	// ErrCreateAfterNotFound blocks CRM creation after a failed link until
	// the user says otherwise.
	ErrCreateAfterNotFound = errors.New("entity creation is blocked after a failed link; ask the user first")

	ErrPlanNotFound      = errors.New("plan not found")
	ErrStepNotFound      = errors.New("step not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// linkTool is the tool whose NotFound result arms the create guard.
const linkTool = "linkEntityToChat"

// Classifier answers the questions the engine asks about a tool.
type Classifier interface {
	IsReadOnly(toolName string) bool
	AffectedChats(toolName string, args tool.Args) []string
}

type entry struct {
	plan     *domain.AgentPlan
	decided  chan struct{}
	isClosed bool
}

func (e *entry) decide() {
	if !e.isClosed {
		close(e.decided)
		e.isClosed = true
	}
}

// Engine holds the current plan of each conversation, keyed by id. A
// finished plan stays readable until the next proposal replaces it.
type Engine struct {
	mu           sync.Mutex
	classifier   Classifier
	plans        map[string]*entry
	current      map[string]string
	createLocked map[string]bool
	now          func() time.Time
	newID        func() string
	log          *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides ULID generation.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an engine over classifier.
func NewEngine(classifier Classifier, opts ...Option) *Engine {
	e := &Engine{
		classifier:   classifier,
		plans:        make(map[string]*entry),
		current:      make(map[string]string),
		createLocked: make(map[string]bool),
		now:          time.Now,
		newID:        func() string { return ulid.Make().String() },
		log:          logging.New("plan"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Propose builds a plan from calls. A plan goes straight to executing only
// in agent mode and only when no step is destructive; otherwise it waits
// for confirmation. In ask mode a destructive step is rejected outright.
func (e *Engine) Propose(conversationID, description string, calls []domain.ToolCall, mode domain.Mode) (*domain.AgentPlan, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	return e.propose(conversationID, description, calls, mode, false)
}

// Immediate builds a plan of read-only lookups that runs without
// confirmation in any mode. It fails with ErrReadOnlyMode if a call is a
// write.
func (e *Engine) Immediate(conversationID string, calls []domain.ToolCall, mode domain.Mode) (*domain.AgentPlan, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	return e.propose(conversationID, "Looking up information", calls, mode, true)
}

// AllReadOnly reports whether every call is a read-only tool.
func (e *Engine) AllReadOnly(calls []domain.ToolCall) bool {
	for _, c := range calls {
		if !e.classifier.IsReadOnly(c.Name) {
			return false
		}
	}
	return true
}

func (e *Engine) propose(conversationID, description string, calls []domain.ToolCall, mode domain.Mode, readOnlyOnly bool) (*domain.AgentPlan, error) {
	if len(calls) == 0 {
		return nil, errors.New("plan has no steps")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.current[conversationID]; ok {
		if cur := e.plans[id]; cur != nil && !cur.plan.Status.IsTerminal() {
			return nil, ErrPlanInProgress
		}
	}

	now := e.now()
	steps := make([]domain.PlanStep, 0, len(calls))
	for _, c := range calls {
		args, err := c.ParseArgs()
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", c.ID, err)
		}
		destructive := !e.classifier.IsReadOnly(c.Name)
		if destructive && (mode == domain.ModeAsk || readOnlyOnly) {
			return nil, fmt.Errorf("%w (%s)", ErrReadOnlyMode, c.Name)
		}
		if e.createLocked[conversationID] && extratool.IsCreateTool(c.Name) {
			return nil, fmt.Errorf("%w (%s)", ErrCreateAfterNotFound, c.Name)
		}
		steps = append(steps, domain.PlanStep{
			ID:          e.newID(),
			ToolCallID:  c.ID,
			ToolName:    c.Name,
			Description: "Execute " + c.Name,
			Args:        args,
			Status:      domain.StepPending,
			Destructive: destructive,
		})
	}

	if description == "" {
		description = "Executing requested actions"
	}
	p := &domain.AgentPlan{
		ID:             e.newID(),
		ConversationID: conversationID,
		Description:    description,
		Mode:           mode,
		Steps:          steps,
		Status:         domain.PlanPlanning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	next := domain.PlanAwaitingConfirmation
	if readOnlyOnly || (mode == domain.ModeAgent && !p.IsDestructive()) {
		next = domain.PlanExecuting
	}
	p.Status = next

	ent := &entry{plan: p, decided: make(chan struct{})}
	if next == domain.PlanExecuting {
		ent.decide()
	}
	// the plan being replaced is terminal; only the current one is kept
	if prev, ok := e.current[conversationID]; ok {
		delete(e.plans, prev)
	}
	e.plans[p.ID] = ent
	e.current[conversationID] = p.ID

	e.log.Info("plan_proposed", map[string]any{
		"plan_id":         p.ID,
		"conversation_id": conversationID,
		"mode":            string(mode),
		"steps":           len(steps),
		"status":          string(p.Status),
	})
	return p.Clone(), nil
}

func (e *Engine) lookup(planID string) (*entry, error) {
	ent, ok := e.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return ent, nil
}

func (e *Engine) transition(ent *entry, next domain.PlanStatus) error {
	cur := ent.plan.Status
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	ent.plan.Status = next
	ent.plan.UpdatedAt = e.now()
	return nil
}

// Confirm releases a plan awaiting confirmation for execution.
func (e *Engine) Confirm(planID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return err
	}
	if ent.plan.Status != domain.PlanAwaitingConfirmation {
		return fmt.Errorf("%w: plan is %s", ErrInvalidTransition, ent.plan.Status)
	}
	if err := e.transition(ent, domain.PlanExecuting); err != nil {
		return err
	}
	ent.decide()
	e.log.Info("plan_confirmed", map[string]any{"plan_id": planID})
	return nil
}

// Cancel cancels a plan that has not started executing. No step runs and
// every step is marked skipped. A running plan is cancelled through the
// execution engine instead.
func (e *Engine) Cancel(planID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return err
	}
	switch ent.plan.Status {
	case domain.PlanPlanning, domain.PlanAwaitingConfirmation:
	default:
		return fmt.Errorf("%w: plan is %s", ErrInvalidTransition, ent.plan.Status)
	}
	if err := e.transition(ent, domain.PlanCancelled); err != nil {
		return err
	}
	for i := range ent.plan.Steps {
		ent.plan.Steps[i].Status = domain.StepSkipped
	}
	ent.decide()
	e.log.Info("plan_cancelled", map[string]any{"plan_id": planID})
	return nil
}

// Await blocks until the plan is confirmed or cancelled and returns the
// resulting status. There is no timeout; only ctx ends the wait early.
func (e *Engine) Await(ctx context.Context, planID string) (domain.PlanStatus, error) {
	e.mu.Lock()
	ent, err := e.lookup(planID)
	e.mu.Unlock()
	if err != nil {
		return "", err
	}
	select {
	case <-ent.decided:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return ent.plan.Status, nil
}

// Get returns a copy of the plan.
func (e *Engine) Get(planID string) (*domain.AgentPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return nil, err
	}
	return ent.plan.Clone(), nil
}

// Current returns the conversation's latest plan, or nil.
func (e *Engine) Current(conversationID string) *domain.AgentPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.current[conversationID]; ok {
		return e.plans[id].plan.Clone()
	}
	return nil
}

// Pending returns every plan awaiting confirmation.
func (e *Engine) Pending() []*domain.AgentPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.AgentPlan
	for _, id := range e.current {
		if p := e.plans[id].plan; p.Status == domain.PlanAwaitingConfirmation {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Forget drops every plan of a conversation. A plan still awaiting
// confirmation is cancelled so its waiter wakes up.
func (e *Engine) Forget(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ent := range e.plans {
		if ent.plan.ConversationID == conversationID {
			if ent.plan.Status == domain.PlanAwaitingConfirmation {
				ent.plan.Status = domain.PlanCancelled
			}
			ent.decide()
			delete(e.plans, id)
		}
	}
	delete(e.current, conversationID)
	delete(e.createLocked, conversationID)
}
