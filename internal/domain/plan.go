package domain

import (
	"time"
)

// Mode is the autonomy level the user selected for the agent.
type Mode string

const (
	ModeAsk   Mode = "ask"   // read-only tools only
	ModePlan  Mode = "plan"  // every plan is confirmed
	ModeAgent Mode = "agent" // destructive plans are confirmed
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAsk, ModePlan, ModeAgent:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of a plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// stepTransitions lists the allowed forward moves. Nothing returns to pending.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepRunning, StepSkipped},
	StepRunning: {StepCompleted, StepFailed},
}

// CanTransition reports whether a step may move from s to next.
func (s StepStatus) CanTransition(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the step will not change again.
func (s StepStatus) IsTerminal() bool {
	return len(stepTransitions[s]) == 0
}

// PlanStatus is the lifecycle state of an AgentPlan.
type PlanStatus string

const (
	PlanPlanning             PlanStatus = "planning"
	PlanAwaitingConfirmation PlanStatus = "awaiting_confirmation"
	PlanExecuting            PlanStatus = "executing"
	PlanCompleted            PlanStatus = "completed"
	PlanFailed               PlanStatus = "failed"
	PlanCancelled            PlanStatus = "cancelled"
)

var planTransitions = map[PlanStatus][]PlanStatus{
	PlanPlanning:             {PlanAwaitingConfirmation, PlanExecuting, PlanCancelled},
	PlanAwaitingConfirmation: {PlanExecuting, PlanCancelled},
	PlanExecuting:            {PlanCompleted, PlanFailed, PlanCancelled},
}

// CanTransition reports whether a plan may move from s to next.
func (s PlanStatus) CanTransition(next PlanStatus) bool {
	for _, allowed := range planTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the plan is completed, failed or cancelled.
func (s PlanStatus) IsTerminal() bool {
	return len(planTransitions[s]) == 0
}

// PlanStep is one proposed tool invocation.
type PlanStep struct {
	ID          string         `json:"id"`
	ToolCallID  string         `json:"toolCallId,omitempty"`
	ToolName    string         `json:"toolName"`
	Description string         `json:"description"`
	Args        map[string]any `json:"args"`
	Status      StepStatus     `json:"status"`
	Destructive bool           `json:"destructive"`
	Result      *ToolResult    `json:"result,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitzero"`
}

// AgentPlan is an ordered list of steps awaiting or undergoing execution.
type AgentPlan struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Description    string     `json:"description"`
	Mode           Mode       `json:"mode"`
	Steps          []PlanStep `json:"steps"`
	Status         PlanStatus `json:"status"`
	AllOrNothing   bool       `json:"allOrNothing"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsDestructive reports whether any step is destructive.
func (p *AgentPlan) IsDestructive() bool {
	for _, s := range p.Steps {
		if s.Destructive {
			return true
		}
	}
	return false
}

// Clone returns a deep enough copy for handing to observers.
func (p *AgentPlan) Clone() *AgentPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = make([]PlanStep, len(p.Steps))
	copy(cp.Steps, p.Steps)
	return &cp
}

// EstimatedImpact summarizes what a plan will touch.
type EstimatedImpact struct {
	ChatsAffected    []string `json:"chatsAffected"`
	MessagesAffected int      `json:"messagesAffected"`
	IsDestructive    bool     `json:"isDestructive"`
}

// ConfirmationRequest is the view shown to the user while a plan waits.
type ConfirmationRequest struct {
	PlanID          string          `json:"planId"`
	Description     string          `json:"description"`
	Steps           []PlanStep      `json:"steps"`
	EstimatedImpact EstimatedImpact `json:"estimatedImpact"`
}
