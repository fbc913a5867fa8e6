package domain

import (
	"encoding/json"
	"time"
)

// Role identifies the author of an AgentMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ProviderID names a model backend.
type ProviderID string

const (
	ProviderOpenRouter ProviderID = "openrouter"
	ProviderClaude     ProviderID = "claude"
	ProviderOpenAI     ProviderID = "openai"
	ProviderGemini     ProviderID = "gemini"
)

// AgentMessage is one entry of a conversation history.
type AgentMessage struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"toolCalls,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty"`
	// Reasoning payloads are provider specific and replayed verbatim.
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningDetails json.RawMessage `json:"reasoningDetails,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AgentConversation is an independent message history.
type AgentConversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Messages  []AgentMessage `json:"messages"`
	Provider  ProviderID     `json:"provider"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone copies the conversation so callers cannot mutate stored history.
func (c *AgentConversation) Clone() *AgentConversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]AgentMessage, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}
