package domain

import "time"

// UndoAction is a tool call able to reverse a completed step.
type UndoAction struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
}

// ExecutionStep is a PlanStep as recorded by the execution engine.
type ExecutionStep struct {
	PlanStep
	PlanID     string      `json:"planId"`
	SideEffect bool        `json:"sideEffect"`
	UndoAction *UndoAction `json:"undoAction,omitempty"`
}

// ExecutionStatus is the terminal outcome of an AgentExecution.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// AgentExecution is the record of one finished plan run.
type AgentExecution struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	ConversationID  string          `json:"conversationId"`
	Request         string          `json:"request"`
	Plan            *AgentPlan      `json:"plan"`
	Steps           []ExecutionStep `json:"steps"`
	AffectedChatIDs []string        `json:"affectedChatIds"`
	Status          ExecutionStatus `json:"status"`
	CanUndo         bool            `json:"canUndo"`
	Undone          bool            `json:"undone"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      time.Time       `json:"finishedAt"`
}

// CompletedCount returns the number of completed steps.
func (e *AgentExecution) CompletedCount() int {
	n := 0
	for _, s := range e.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}
