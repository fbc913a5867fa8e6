// Package provider implements the streaming model clients the agent talks
// to: OpenRouter, Claude, OpenAI and Gemini.
package provider

import (
	"context"
	"errors"

	"github.com/telebiz/agentcore/internal/domain"
)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	Messages    []domain.AgentMessage
	Tools       []domain.ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Provider streams one model turn. The returned channel carries content,
// reasoning and tool call fragments and is closed after exactly one done or
// error delta.
type Provider interface {
	ID() domain.ProviderID
	DefaultModel() string
	StreamCompletion(ctx context.Context, req *Request) (<-chan domain.StreamDelta, error)
}

// ErrMissingAPIKey is returned when a provider is built without credentials.
var ErrMissingAPIKey = errors.New("missing API key")

// DefaultModels per provider.
var DefaultModels = map[domain.ProviderID]string{
	domain.ProviderOpenRouter: "anthropic/claude-sonnet-4.5",
	domain.ProviderClaude:     "claude-sonnet-4-5-20250929",
	domain.ProviderOpenAI:     "gpt-4o",
	domain.ProviderGemini:     "gemini-2.0-flash",
}

const defaultMaxTokens = 8192

func maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func modelOr(req *Request, id domain.ProviderID) string {
	if req.Model != "" {
		return req.Model
	}
	return DefaultModels[id]
}

// toolResultText is the content a tool message carries back to the model.
func toolResultText(m domain.AgentMessage) string {
	if m.ToolResult != nil {
		return m.ToolResult.JSON()
	}
	return m.Content
}

// emitter sends deltas until the consumer goes away.
type emitter struct {
	ctx context.Context
	out chan<- domain.StreamDelta
}

func (e emitter) send(d domain.StreamDelta) bool {
	select {
	case e.out <- d:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e emitter) fail(err error) {
	e.send(domain.StreamDelta{Type: domain.DeltaError, Error: err.Error()})
}

func (e emitter) done() {
	e.send(domain.StreamDelta{Type: domain.DeltaDone})
}
