package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telebiz/agentcore/internal/chattool"
	"github.com/telebiz/agentcore/internal/conversation"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/execution"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/metrics"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/provider"
	"github.com/telebiz/agentcore/internal/skills"
	"github.com/telebiz/agentcore/internal/stream"
	"github.com/telebiz/agentcore/internal/thinking"
)

// Send runs one turn in the current conversation, creating a conversation
// when none is selected.
func (s *Session) Send(ctx context.Context, text string) (<-chan Event, error) {
	id := s.deps.Conversations.CurrentID()
	if id == "" {
		conv, err := s.deps.Conversations.Create(ctx, s.Provider().ID())
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		id = conv.ID
	}
	return s.SendTo(ctx, id, text)
}

// SendTo runs one turn in a conversation. The returned channel carries the
// turn's events and is closed after EventDone.
//
// The turn outlives ctx: once the caller is gone its events are dropped,
// but a plan awaiting confirmation stays pending until Confirm, Cancel or
// Forget, and an executing plan runs to the end.
func (s *Session) SendTo(ctx context.Context, conversationID, text string) (<-chan Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("message is empty")
	}
	if _, err := s.deps.Conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()

	out := make(chan Event, 64)
	t := &turn{
		s:       s,
		ctx:     context.WithoutCancel(ctx),
		caller:  ctx,
		convID:  conversationID,
		request: text,
		mode:    s.Mode(),
		prov:    s.Provider(),
		out:     out,
		log:     s.log.WithConversation(conversationID),
	}
	t.tracker = thinking.New(func(snap thinking.Snapshot) {
		t.emit(Event{Type: EventThinking, Thinking: &snap})
	})

	go func() {
		start := time.Now()
		defer func() {
			metrics.Global().RecordTurn(!t.failed, time.Since(start))
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
			close(out)
		}()
		recovery := logging.NewRecoveryHandler("agent")
		recovery.Wrap(t.run)
		t.emit(Event{Type: EventDone})
	}()
	return out, nil
}

// turn is the state of one Send.
type turn struct {
	s       *Session
	ctx     context.Context
	caller  context.Context // only gates event delivery
	convID  string
	request string
	mode    domain.Mode
	prov    provider.Provider
	out     chan<- Event
	tracker *thinking.Tracker
	log     *logging.Logger

	allSkills []domain.Skill
	invoked   []domain.Skill
	failed    bool
}

func (t *turn) emit(e Event) {
	e.ConversationID = t.convID
	select {
	case t.out <- e:
	case <-t.caller.Done():
	}
}

func (t *turn) fail(err error) {
	t.failed = true
	t.log.Warn("turn_failed", nil, err)
	t.emit(Event{Type: EventError, Error: err.Error()})
}

func (t *turn) appendMessage(msg domain.AgentMessage) bool {
	stored, err := t.s.deps.Conversations.Append(t.ctx, t.convID, msg)
	if err != nil {
		t.fail(fmt.Errorf("store message: %w", err))
		return false
	}
	t.emit(Event{Type: EventMessage, Message: &stored})
	return true
}

func (t *turn) run() {
	defer t.tracker.Stop()

	t.s.deps.Plans.NoteUserMessage(t.convID)
	t.loadSkills()

	// skill tags select skills; the model sees the message without them
	names, cleaned := skills.ParseSkillTags(t.request)
	if len(names) > 0 {
		var missing []string
		t.invoked, missing = skills.Invoked(t.allSkills, names)
		t.log.Info("skill_tags", map[string]any{"found": len(t.invoked), "missing": missing})
	}
	content := cleaned
	if content == "" {
		content = t.request
	}
	if !t.appendMessage(domain.AgentMessage{Role: domain.RoleUser, Content: content}) {
		return
	}

	for i := 0; i < t.s.cfg.MaxIterations; i++ {
		t.tracker.NewTurn()
		t.tracker.Start("")

		res, ok := t.callModel()
		if !ok {
			return
		}
		if len(res.Malformed) > 0 {
			t.log.Warn("malformed_tool_calls", map[string]any{"calls": res.Malformed}, nil)
		}
		if res.Content == "" && len(res.ToolCalls) == 0 {
			return
		}
		if !t.appendMessage(domain.AgentMessage{
			Role:             domain.RoleAssistant,
			Content:          res.Content,
			ToolCalls:        res.ToolCalls,
			Reasoning:        res.Reasoning,
			ReasoningDetails: res.ReasoningDetails,
		}) {
			return
		}
		if len(res.ToolCalls) == 0 {
			return
		}
		if !t.handleToolCalls(res.ToolCalls) {
			return
		}
	}
	t.fail(fmt.Errorf("stopped after %d iterations", t.s.cfg.MaxIterations))
}

func (t *turn) loadSkills() {
	if t.s.deps.Skills == nil {
		return
	}
	all, err := t.s.deps.Skills.ListSkills(t.ctx)
	if err != nil {
		t.log.Warn("skills_load_failed", nil, err)
		return
	}
	t.allSkills = all
	if len(skills.Tools(all)) > 0 {
		t.s.Load(t.convID, extratool.Skills)
	}
}

// callModel streams one completion. ok is false when the turn must end.
func (t *turn) callModel() (stream.Result, bool) {
	conv, err := t.s.deps.Conversations.Get(t.ctx, t.convID)
	if err != nil {
		t.fail(err)
		return stream.Result{}, false
	}
	req := &provider.Request{
		Model:       t.s.cfg.Model,
		System:      t.s.prompt.Build(t.mode, t.s.bundles(t.convID), t.allSkills, t.invoked),
		Messages:    conversation.ValidateHistory(conv.Messages),
		Tools:       t.s.Tools(t.convID),
		MaxTokens:   t.s.cfg.MaxTokens,
		Temperature: t.s.cfg.Temperature,
	}
	deltas, err := t.prov.StreamCompletion(t.ctx, req)
	if err != nil {
		t.fail(err)
		return stream.Result{}, false
	}

	fwd := make(chan domain.StreamDelta, 64)
	type outcome struct {
		res stream.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := stream.Pipe(t.ctx, deltas, fwd)
		close(fwd)
		done <- outcome{res, err}
	}()
	for d := range fwd {
		t.tracker.Observe(d)
		switch d.Type {
		case domain.DeltaDone:
		case domain.DeltaError:
			t.emit(Event{Type: EventError, Error: d.Error})
		default:
			t.emit(Event{Type: EventDelta, Delta: &d})
		}
	}
	o := <-done
	if o.err != nil {
		return o.res, false
	}
	if o.res.Err != "" {
		// keep whatever text arrived so the history shows it
		if o.res.Content != "" {
			t.appendMessage(domain.AgentMessage{Role: domain.RoleAssistant, Content: o.res.Content})
		}
		t.log.Warn("provider_stream_failed", map[string]any{"provider": string(t.prov.ID())}, errors.New(o.res.Err))
		return o.res, false
	}
	return o.res, true
}

// handleToolCalls turns calls into a plan and runs it. It returns false
// when the turn ends here.
func (t *turn) handleToolCalls(calls []domain.ToolCall) bool {
	plans := t.s.deps.Plans
	var p *domain.AgentPlan
	var err error
	if t.mode != domain.ModeAgent && plans.AllReadOnly(calls) {
		p, err = plans.Immediate(t.convID, calls, t.mode)
	} else {
		p, err = plans.Propose(t.convID, describe(calls), calls, t.mode)
	}
	if err != nil {
		t.log.Info("plan_rejected", map[string]any{"calls": len(calls)})
		return t.answerAll(calls, domain.Fail(errorKind(err), err.Error()))
	}

	confirmed := p.Status == domain.PlanAwaitingConfirmation
	if confirmed {
		req, err := plans.ConfirmationRequest(p.ID)
		if err != nil {
			t.fail(err)
			return false
		}
		t.tracker.Pause()
		t.emit(Event{Type: EventConfirmation, Confirmation: req, Plan: p})

		status, err := plans.Await(t.ctx, p.ID)
		var decided *domain.AgentPlan
		if err == nil {
			decided, err = plans.Get(p.ID)
		}
		if err != nil {
			// forgotten along with its conversation
			t.log.Info("plan_forgotten", map[string]any{"plan_id": p.ID})
			return false
		}
		p = decided
		t.emit(Event{Type: EventPlan, Plan: p})
		metrics.Global().RecordDecision(status != domain.PlanCancelled)
		if status == domain.PlanCancelled {
			t.answerAll(calls, domain.Fail(domain.ErrorKindPolicy, "Cancelled by user"))
			t.appendMessage(domain.AgentMessage{Role: domain.RoleAssistant, Content: "Plan cancelled."})
			return false
		}
	}

	exec, ok := t.execute(p)
	if !ok {
		return t.answerAll(calls, domain.Fail(domain.ErrorKindBusiness, "Execution could not start"))
	}
	t.answerSteps(exec)

	if confirmed {
		// a confirmed plan ends the turn with a summary instead of another model call
		t.appendMessage(domain.AgentMessage{Role: domain.RoleAssistant, Content: Summary(exec)})
		return false
	}
	return exec.Status != domain.ExecutionCancelled
}

func (t *turn) execute(p *domain.AgentPlan) (*domain.AgentExecution, bool) {
	t.tracker.Step(thinking.ExecutingTools)
	steps, err := t.s.deps.Executor.Run(t.ctx, p, execution.Options{
		UserID:       t.s.cfg.UserID,
		Request:      t.request,
		AllOrNothing: t.s.cfg.AllOrNothing,
	})
	if err != nil {
		t.log.Error("execution_start_failed", map[string]any{"plan_id": p.ID}, err)
		return nil, false
	}
	for st := range steps {
		if st.Status == domain.StepRunning {
			t.tracker.Step(thinking.Executing(st.ToolName))
		}
		t.emit(Event{Type: EventStep, Step: &st})
	}

	exec := t.s.deps.Executor.Result()
	if exec == nil || exec.Plan == nil || exec.Plan.ID != p.ID {
		t.log.Error("execution_missing", map[string]any{"plan_id": p.ID}, nil)
		return nil, false
	}
	if p.IsDestructive() {
		t.s.record(t.ctx, exec)
	}
	t.emit(Event{Type: EventExecution, Execution: exec})
	return exec, true
}

// answerSteps stores one tool message per step and loads any bundle a
// successful useExtraTool asked for.
func (t *turn) answerSteps(exec *domain.AgentExecution) {
	for _, st := range exec.Steps {
		result := stepResult(st, exec.Status)
		if st.ToolName == chattool.UseExtraTool {
			if name, ok := chattool.LoadedBundle(result); ok {
				t.s.Load(t.convID, name)
			}
		}
		t.appendMessage(toolMessage(st.ToolCallID, result))
	}
}

// answerAll gives every call the same result so the history stays valid.
func (t *turn) answerAll(calls []domain.ToolCall, result domain.ToolResult) bool {
	for _, c := range calls {
		if !t.appendMessage(toolMessage(c.ID, result)) {
			return false
		}
	}
	return true
}

func toolMessage(callID string, result domain.ToolResult) domain.AgentMessage {
	r := result
	return domain.AgentMessage{
		Role:       domain.RoleTool,
		ToolCallID: callID,
		Content:    result.JSON(),
		ToolResult: &r,
	}
}

func stepResult(st domain.ExecutionStep, status domain.ExecutionStatus) domain.ToolResult {
	if st.Result != nil {
		return *st.Result
	}
	if status == domain.ExecutionCancelled {
		return domain.Fail(domain.ErrorKindPolicy, "Cancelled by user")
	}
	return domain.Fail(domain.ErrorKindBusiness, "Skipped after an earlier step failed")
}

func errorKind(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, plan.ErrReadOnlyMode), errors.Is(err, plan.ErrCreateAfterNotFound):
		return domain.ErrorKindPolicy
	case errors.Is(err, plan.ErrPlanInProgress):
		return domain.ErrorKindBusiness
	}
	return domain.ErrorKindValidation
}

func describe(calls []domain.ToolCall) string {
	if len(calls) == 1 {
		return "Execute " + calls[0].Name
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return fmt.Sprintf("Execute %d actions: %s", len(calls), strings.Join(names, ", "))
}

// Summary is the closing message of a confirmed execution.
func Summary(exec *domain.AgentExecution) string {
	msg := fmt.Sprintf("Completed %d/%d actions.", exec.CompletedCount(), len(exec.Steps))
	if n := len(exec.AffectedChatIDs); n > 0 {
		msg += fmt.Sprintf(" Affected %d chat(s).", n)
	}
	return msg
}
