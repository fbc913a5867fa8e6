package plan

import (
	"fmt"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/tool"
)

// staticChatKeys are argument names that name a chat.
var staticChatKeys = []string{"chatId", "chatIds", "recipientId", "peerId"}

// ChatsFromArgs is the best-effort static analysis of a call's arguments.
func ChatsFromArgs(args map[string]any) []string {
	a := tool.Args(args)
	var out []string
	for _, key := range staticChatKeys {
		out = append(out, a.Strings(key)...)
	}
	return domain.MergeChatIDs(out)
}

// messageCount estimates how many messages a step sends.
func messageCount(s domain.PlanStep) int {
	switch s.ToolName {
	case "sendMessage":
		return 1
	case "batchSendMessage":
		return len(tool.Args(s.Args).Strings("chatIds"))
	}
	return 0
}

// Impact summarizes what a plan will touch.
func (e *Engine) Impact(p *domain.AgentPlan) domain.EstimatedImpact {
	var chats []string
	messages := 0
	for _, s := range p.Steps {
		chats = domain.MergeChatIDs(chats,
			e.classifier.AffectedChats(s.ToolName, tool.Args(s.Args)),
			ChatsFromArgs(s.Args))
		messages += messageCount(s)
	}
	if chats == nil {
		chats = []string{}
	}
	return domain.EstimatedImpact{
		ChatsAffected:    chats,
		MessagesAffected: messages,
		IsDestructive:    p.IsDestructive(),
	}
}

// ConfirmationRequest is the view of a plan shown to the user. It exists
// only while the plan awaits confirmation.
func (e *Engine) ConfirmationRequest(planID string) (*domain.ConfirmationRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return nil, err
	}
	p := ent.plan
	if p.Status != domain.PlanAwaitingConfirmation {
		return nil, fmt.Errorf("%w: plan is %s", ErrInvalidTransition, p.Status)
	}
	return &domain.ConfirmationRequest{
		PlanID:          p.ID,
		Description:     p.Description,
		Steps:           p.Clone().Steps,
		EstimatedImpact: e.Impact(p),
	}, nil
}

// SetAllOrNothing marks a plan so a failed step skips every later step.
func (e *Engine) SetAllOrNothing(planID string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return err
	}
	ent.plan.AllOrNothing = on
	return nil
}

func (e *Engine) step(planID, stepID string) (*entry, *domain.PlanStep, error) {
	ent, err := e.lookup(planID)
	if err != nil {
		return nil, nil, err
	}
	for i := range ent.plan.Steps {
		if ent.plan.Steps[i].ID == stepID {
			return ent, &ent.plan.Steps[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
}

func (e *Engine) moveStep(s *domain.PlanStep, next domain.StepStatus) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%w: step %s %s -> %s", ErrInvalidTransition, s.ID, s.Status, next)
	}
	s.Status = next
	s.Timestamp = e.now()
	return nil
}

// CheckStep reports whether a step may run now. It fails with
// ErrCreateAfterNotFound when a link in this conversation came back
// NotFound and the user has not spoken since.
func (e *Engine) CheckStep(planID, stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, s, err := e.step(planID, stepID)
	if err != nil {
		return err
	}
	if e.createLocked[ent.plan.ConversationID] && extratool.IsCreateTool(s.ToolName) {
		return fmt.Errorf("%w (%s)", ErrCreateAfterNotFound, s.ToolName)
	}
	return nil
}

// StartStep moves a pending step to running.
func (e *Engine) StartStep(planID, stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, s, err := e.step(planID, stepID)
	if err != nil {
		return err
	}
	if ent.plan.Status != domain.PlanExecuting {
		return fmt.Errorf("%w: plan is %s", ErrInvalidTransition, ent.plan.Status)
	}
	return e.moveStep(s, domain.StepRunning)
}

// FinishStep records a running step's result.
func (e *Engine) FinishStep(planID, stepID string, result domain.ToolResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, s, err := e.step(planID, stepID)
	if err != nil {
		return err
	}
	next := domain.StepCompleted
	if !result.Success {
		next = domain.StepFailed
	}
	if err := e.moveStep(s, next); err != nil {
		return err
	}
	r := result
	s.Result = &r

	if s.ToolName == linkTool && !result.Success && result.ErrorKind == domain.ErrorKindNotFound {
		e.createLocked[ent.plan.ConversationID] = true
		e.log.Warn("create_locked", map[string]any{
			"plan_id":         planID,
			"conversation_id": ent.plan.ConversationID,
		}, nil)
	}
	return nil
}

// FailStep fails a pending step that was never dispatched, such as one
// the rate limiter refused.
func (e *Engine) FailStep(planID, stepID string, result domain.ToolResult) error {
	e.mu.Lock()
	_, s, err := e.step(planID, stepID)
	if err == nil && s.Status == domain.StepPending {
		err = e.moveStep(s, domain.StepRunning)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.FinishStep(planID, stepID, result)
}

// SkipStep marks a pending step skipped.
func (e *Engine) SkipStep(planID, stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, s, err := e.step(planID, stepID)
	if err != nil {
		return err
	}
	return e.moveStep(s, domain.StepSkipped)
}

// MarkFinished moves an executing plan to its terminal status.
func (e *Engine) MarkFinished(planID string, status domain.PlanStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookup(planID)
	if err != nil {
		return err
	}
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	return e.transition(ent, status)
}

// NoteUserMessage records that the user spoke in the conversation, which
// lifts the create-after-NotFound block.
func (e *Engine) NoteUserMessage(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.createLocked, conversationID)
}

// CreateLocked reports whether CRM creation is blocked in the conversation.
func (e *Engine) CreateLocked(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createLocked[conversationID]
}
