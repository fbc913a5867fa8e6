package domain

import "encoding/json"

// DeltaType tags a StreamDelta.
type DeltaType string

const (
	DeltaContent          DeltaType = "content"
	DeltaToolCall         DeltaType = "tool_call"
	DeltaReasoning        DeltaType = "reasoning"
	DeltaReasoningDetails DeltaType = "reasoning_details"
	DeltaThinkingStart    DeltaType = "thinking_start"
	DeltaDone             DeltaType = "done"
	DeltaError            DeltaType = "error"
)

// IsTerminal reports whether t ends a turn.
func (t DeltaType) IsTerminal() bool {
	return t == DeltaDone || t == DeltaError
}

// ToolCallDelta is a possibly partial function-call fragment. Fragments of
// the same call share an ID; providers that only send an index on
// continuation fragments set Index instead.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamDelta is one incremental unit of a model response.
type StreamDelta struct {
	Type             DeltaType       `json:"type"`
	Content          string          `json:"content,omitempty"`
	ToolCall         *ToolCallDelta  `json:"toolCall,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningDetails json.RawMessage `json:"reasoningDetails,omitempty"`
	Label            string          `json:"label,omitempty"`
	Error            string          `json:"error,omitempty"`
}
