package agent

import (
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/thinking"
)

// EventType tags an Event.
type EventType string

const (
	EventDelta        EventType = "delta"        // streamed model output
	EventThinking     EventType = "thinking"     // progress indicator changed
	EventMessage      EventType = "message"      // message stored in the conversation
	EventConfirmation EventType = "confirmation" // plan waits for Confirm or Cancel
	EventPlan         EventType = "plan"         // plan reached a new status
	EventStep         EventType = "step"         // execution step changed
	EventExecution    EventType = "execution"    // execution finished
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// Event is one item of a turn's output stream. The stream always ends with
// exactly one EventDone.
type Event struct {
	Type           EventType                   `json:"type"`
	ConversationID string                      `json:"conversationId"`
	Delta          *domain.StreamDelta         `json:"delta,omitempty"`
	Thinking       *thinking.Snapshot          `json:"thinking,omitempty"`
	Message        *domain.AgentMessage        `json:"message,omitempty"`
	Confirmation   *domain.ConfirmationRequest `json:"confirmation,omitempty"`
	Plan           *domain.AgentPlan           `json:"plan,omitempty"`
	Step           *domain.ExecutionStep       `json:"step,omitempty"`
	Execution      *domain.AgentExecution      `json:"execution,omitempty"`
	Error          string                      `json:"error,omitempty"`
}
