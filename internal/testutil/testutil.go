// Package testutil provides common test helpers, a scripted provider and
// in-memory collaborator fakes.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/provider"
)

func itoa(n int) string { return strconv.Itoa(n) }

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// SetEnv sets an environment variable for the duration of the test.
func SetEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

// MockProvider replays scripted responses, one per StreamCompletion call.
// Calls past the script get a bare done delta.
type MockProvider struct {
	mu        sync.Mutex
	responses [][]domain.StreamDelta
	requests  []provider.Request
	err       error
}

// NewMockProvider scripts the given responses.
func NewMockProvider(responses ...[]domain.StreamDelta) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailWith makes every call return err.
func (m *MockProvider) FailWith(err error) *MockProvider {
	m.err = err
	return m
}

func (m *MockProvider) ID() domain.ProviderID { return "mock" }
func (m *MockProvider) DefaultModel() string  { return "mock-model" }

func (m *MockProvider) StreamCompletion(ctx context.Context, req *provider.Request) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	idx := len(m.requests)
	cp := *req
	cp.Messages = append([]domain.AgentMessage(nil), req.Messages...)
	m.requests = append(m.requests, cp)
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamDelta, 100)
	go func() {
		defer close(out)
		if idx >= len(m.responses) {
			out <- domain.StreamDelta{Type: domain.DeltaDone}
			return
		}
		for _, d := range m.responses[idx] {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Requests returns the requests received so far.
func (m *MockProvider) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Request(nil), m.requests...)
}

// CallCount returns the number of StreamCompletion calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// TextResponse creates a plain text turn.
func TextResponse(text string) []domain.StreamDelta {
	return []domain.StreamDelta{
		{Type: domain.DeltaContent, Content: text},
		{Type: domain.DeltaDone},
	}
}

// ToolCallResponse creates a turn that calls one tool.
func ToolCallResponse(id, name string, args map[string]any) []domain.StreamDelta {
	return ToolCallsResponse(domain.ToolCall{ID: id, Name: name, Arguments: MustJSON(args)})
}

// ToolCallsResponse creates a turn that calls several tools.
func ToolCallsResponse(calls ...domain.ToolCall) []domain.StreamDelta {
	out := make([]domain.StreamDelta, 0, len(calls)+1)
	for i, c := range calls {
		out = append(out, domain.StreamDelta{
			Type:     domain.DeltaToolCall,
			ToolCall: &domain.ToolCallDelta{Index: i, ID: c.ID, Name: c.Name, Arguments: c.Arguments},
		})
	}
	return append(out, domain.StreamDelta{Type: domain.DeltaDone})
}

// Call builds a ToolCall with JSON-encoded args.
func Call(id, name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: MustJSON(args)}
}

// MustJSON encodes v, panicking on failure.
func MustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Drain collects every delta of a channel.
func Drain(ch <-chan domain.StreamDelta) []domain.StreamDelta {
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}
