// Package execution runs the steps of a released plan one at a time, each
// behind the rate limiter, and keeps the record needed to undo it.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/ratelimit"
	"github.com/telebiz/agentcore/internal/tool"
)

// Dispatcher runs and describes tools.
type Dispatcher interface {
	Execute(ctx context.Context, name string, args tool.Args) domain.ToolResult
	Inverse(name string, args tool.Args, result domain.ToolResult) (domain.UndoAction, bool)
	IsReadOnly(name string) bool
	IsHeavy(name string) bool
}

// ErrBusy is returned when Run is called while another run is active.
var ErrBusy = errors.New("an execution is already running")

// Options describe one run.
type Options struct {
	UserID       string
	Request      string
	AllOrNothing bool
}

// Engine executes plans sequentially. One run is active at a time.
type Engine struct {
	plans   *plan.Engine
	tools   Dispatcher
	limiter *ratelimit.Limiter
	now     func() time.Time
	newID   func() string
	log     *logging.Logger

	mu        sync.Mutex
	running   bool
	cancelled bool
	last      *domain.AgentExecution
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides execution id generation.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an engine. A nil limiter means the process-wide one.
func New(plans *plan.Engine, tools Dispatcher, limiter *ratelimit.Limiter, opts ...Option) *Engine {
	if limiter == nil {
		limiter = ratelimit.Global()
	}
	e := &Engine{
		plans:   plans,
		tools:   tools,
		limiter: limiter,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     logging.New("execution"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes an executing plan in the background. Every status change of
// a step is sent on the returned channel, which is closed when the run is
// over; Result then returns the finished execution.
func (e *Engine) Run(ctx context.Context, p *domain.AgentPlan, opts Options) (<-chan domain.ExecutionStep, error) {
	if p == nil {
		return nil, errors.New("nil plan")
	}
	if p.Status != domain.PlanExecuting {
		return nil, fmt.Errorf("%w: plan is %s", plan.ErrInvalidTransition, p.Status)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.running = true
	e.cancelled = false
	e.mu.Unlock()

	if opts.AllOrNothing {
		if err := e.plans.SetAllOrNothing(p.ID, true); err != nil {
			e.finishRun(nil)
			return nil, err
		}
	}

	out := make(chan domain.ExecutionStep, len(p.Steps)*2)
	go func() {
		defer close(out)
		var exec *domain.AgentExecution
		recovery := logging.NewRecoveryHandler("execution")
		recovery.Wrap(func() {
			exec = e.run(ctx, p, opts, out)
		})
		e.finishRun(exec)
	}()
	return out, nil
}

func (e *Engine) finishRun(exec *domain.AgentExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	if exec != nil {
		e.last = exec
	}
}

// Cancel asks the active run to stop after its in-flight step.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.cancelled = true
	}
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Result returns the most recent finished execution, or nil.
func (e *Engine) Result() *domain.AgentExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) run(ctx context.Context, p *domain.AgentPlan, opts Options, out chan<- domain.ExecutionStep) *domain.AgentExecution {
	start := e.now()
	log := e.log.WithConversation(p.ConversationID)
	scope := e.limiter.BeginExecution()

	exec := &domain.AgentExecution{
		ID:             e.newID(),
		UserID:         opts.UserID,
		ConversationID: p.ConversationID,
		Request:        opts.Request,
		StartedAt:      start,
	}
	steps := make([]domain.ExecutionStep, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = domain.ExecutionStep{PlanStep: s, PlanID: p.ID}
	}

	emit := func(i int) {
		if cur, err := e.plans.Get(p.ID); err == nil {
			steps[i].PlanStep = cur.Steps[i]
		}
		out <- steps[i]
	}
	skipRest := func(from int) {
		for j := from; j < len(steps); j++ {
			if err := e.plans.SkipStep(p.ID, steps[j].ID); err != nil {
				log.Warn("skip_failed", map[string]any{"step_id": steps[j].ID}, err)
			}
			emit(j)
		}
	}

	cancelled := false
	for i := range steps {
		s := &steps[i]
		if e.isCancelled() || ctx.Err() != nil {
			cancelled = true
			skipRest(i)
			break
		}

		if err := e.plans.CheckStep(p.ID, s.ID); err != nil {
			e.fail(p.ID, s, domain.Fail(domain.ErrorKindPolicy, err.Error()))
			emit(i)
			if opts.AllOrNothing {
				skipRest(i + 1)
				break
			}
			continue
		}

		heavy := ratelimit.IsHeavy(s.ToolName) || e.tools.IsHeavy(s.ToolName)
		if err := scope.Wait(ctx, s.ToolName, heavy); err != nil {
			var rejected *ratelimit.RejectedError
			if !errors.As(err, &rejected) {
				// ctx ended during the delay: nothing was dispatched
				cancelled = true
				skipRest(i)
				break
			}
			log.Warn("rate_limited", map[string]any{"tool": s.ToolName, "reason": string(rejected.Reason)}, err)
			e.fail(p.ID, s, domain.Fail(domain.ErrorKindRateLimit, err.Error()))
			emit(i)
			if opts.AllOrNothing {
				skipRest(i + 1)
				break
			}
			continue
		}

		if err := e.plans.StartStep(p.ID, s.ID); err != nil {
			log.Error("start_step_failed", map[string]any{"step_id": s.ID}, err)
			cancelled = true
			skipRest(i)
			break
		}
		emit(i)

		// a dispatched call always runs to completion
		args := tool.Args(s.Args)
		result := e.tools.Execute(context.WithoutCancel(ctx), s.ToolName, args)
		if err := e.plans.FinishStep(p.ID, s.ID, result); err != nil {
			log.Error("finish_step_failed", map[string]any{"step_id": s.ID}, err)
		}
		if result.Success {
			e.recordUndo(s, args, result)
			exec.AffectedChatIDs = domain.MergeChatIDs(exec.AffectedChatIDs, result.AffectedChatIDs)
		}
		emit(i)

		if !result.Success && opts.AllOrNothing {
			skipRest(i + 1)
			break
		}
	}

	exec.Steps = steps
	exec.Status = FinalStatus(steps, cancelled)
	exec.CanUndo = CanUndo(steps)
	exec.FinishedAt = e.now()
	if exec.AffectedChatIDs == nil {
		exec.AffectedChatIDs = []string{}
	}

	if err := e.plans.MarkFinished(p.ID, planStatus(exec.Status)); err != nil {
		log.Warn("mark_finished_failed", map[string]any{"plan_id": p.ID}, err)
	}
	if final, err := e.plans.Get(p.ID); err == nil {
		exec.Plan = final
	}

	log.TimedEvent("execution_finished", start, map[string]any{
		"execution_id": exec.ID,
		"status":       string(exec.Status),
		"steps":        len(steps),
		"completed":    exec.CompletedCount(),
		"can_undo":     exec.CanUndo,
	})
	return exec
}

func (e *Engine) fail(planID string, s *domain.ExecutionStep, result domain.ToolResult) {
	if err := e.plans.FailStep(planID, s.ID, result); err != nil {
		e.log.Warn("fail_step_failed", map[string]any{"step_id": s.ID}, err)
	}
}

// recordUndo marks a successful write as a side effect and attaches its
// inverse when the tool has one.
func (e *Engine) recordUndo(s *domain.ExecutionStep, args tool.Args, result domain.ToolResult) {
	if e.tools.IsReadOnly(s.ToolName) {
		return
	}
	s.SideEffect = true
	undo, ok := e.tools.Inverse(s.ToolName, args, result)
	if !ok {
		return
	}
	if undo.ToolName == "" {
		s.SideEffect = false
		return
	}
	s.UndoAction = &undo
}

// FinalStatus derives the execution status from step outcomes.
func FinalStatus(steps []domain.ExecutionStep, cancelled bool) domain.ExecutionStatus {
	if cancelled {
		return domain.ExecutionCancelled
	}
	if len(steps) > 0 && steps[0].Status == domain.StepFailed {
		return domain.ExecutionFailed
	}
	for _, s := range steps {
		if s.Status != domain.StepCompleted {
			return domain.ExecutionPartial
		}
	}
	return domain.ExecutionCompleted
}

// CanUndo is true when every step with a side effect has an undo action.
func CanUndo(steps []domain.ExecutionStep) bool {
	for _, s := range steps {
		if s.SideEffect && (s.UndoAction == nil || s.UndoAction.ToolName == "") {
			return false
		}
	}
	return true
}

func planStatus(s domain.ExecutionStatus) domain.PlanStatus {
	switch s {
	case domain.ExecutionCompleted:
		return domain.PlanCompleted
	case domain.ExecutionCancelled:
		return domain.PlanCancelled
	}
	return domain.PlanFailed
}
