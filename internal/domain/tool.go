// Package domain defines the core types shared by the agent engine:
// tool contracts, plans, executions, conversations and skills.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONSchema is an OpenAI-compatible function parameter schema
// (type, description, enum, items, properties, required).
type JSONSchema map[string]any

// ToolDefinition describes a callable tool to the model. Immutable.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"`
}

// Required returns the names listed in the schema's "required" field.
func (d ToolDefinition) Required() []string {
	switch v := d.Parameters["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ToolCall is a single model-emitted invocation. Arguments stay as the raw
// JSON text the model produced until dispatch.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParseArgs decodes the raw argument payload. Empty input yields an empty map.
func (c ToolCall) ParseArgs() (map[string]any, error) {
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", c.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// ErrorKind classifies a failed ToolResult.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindBusiness   ErrorKind = "business"
	ErrorKindRateLimit  ErrorKind = "rate_limit"
	ErrorKindRemote     ErrorKind = "remote"
	ErrorKindPolicy     ErrorKind = "policy"
)

// ToolResult is the outcome of one tool execution. Immutable once produced.
type ToolResult struct {
	Success         bool      `json:"success"`
	Data            any       `json:"data,omitempty"`
	Error           string    `json:"error,omitempty"`
	ErrorKind       ErrorKind `json:"errorKind,omitempty"`
	AffectedChatIDs []string  `json:"affectedChatIds,omitempty"`
}

// OK builds a successful result.
func OK(data any, affectedChats ...string) ToolResult {
	return ToolResult{Success: true, Data: data, AffectedChatIDs: affectedChats}
}

// Fail builds a failed result of the given kind.
func Fail(kind ErrorKind, msg string) ToolResult {
	return ToolResult{Success: false, Error: msg, ErrorKind: kind}
}

// Failf is Fail with formatting.
func Failf(kind ErrorKind, format string, args ...any) ToolResult {
	return Fail(kind, fmt.Sprintf(format, args...))
}

// JSON renders the result the way it is handed back to the model.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

// MergeChatIDs returns the de-duplicated union of the given id lists,
// keeping first-seen order and dropping empty ids.
func MergeChatIDs(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, id := range l {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
