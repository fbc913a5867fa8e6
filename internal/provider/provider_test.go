package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
)

func sseServer(t *testing.T, body string, inspect func(r *http.Request, payload map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		if inspect != nil {
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(t *testing.T, ch <-chan domain.StreamDelta) []domain.StreamDelta {
	t.Helper()
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func contentOf(deltas []domain.StreamDelta) string {
	var b strings.Builder
	for _, d := range deltas {
		if d.Type == domain.DeltaContent {
			b.WriteString(d.Content)
		}
	}
	return b.String()
}

func terminalCount(deltas []domain.StreamDelta) int {
	n := 0
	for _, d := range deltas {
		if d.Type.IsTerminal() {
			n++
		}
	}
	return n
}

func simpleRequest() *Request {
	return &Request{
		System:   "You are helpful.",
		Messages: []domain.AgentMessage{{Role: domain.RoleUser, Content: "hi"}},
		Tools: []domain.ToolDefinition{{
			Name:        "listChats",
			Description: "List chats",
			Parameters:  domain.JSONSchema{"type": "object", "properties": map[string]any{}},
		}},
	}
}

// --- OpenRouter Tests ---

func TestOpenRouterStream(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo","reasoning":"**Checking chats** first"}}]}

data: {"choices":[{"delta":{"reasoning_details":[{"type":"reasoning.encrypted","data":"sig=="}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"listChats","arguments":""}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"limit\":5}"}}]}}]}

data: [DONE]

`
	var gotAuth, gotTitle string
	var payload map[string]any
	srv := sseServer(t, body, func(r *http.Request, p map[string]any) {
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		payload = p
	})

	p := NewOpenRouter("or-key", srv.URL, nil)
	ch, err := p.StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)

	assert.Equal(t, "Bearer or-key", gotAuth)
	assert.Equal(t, "Telebiz Agent", gotTitle)
	assert.Equal(t, "anthropic/claude-sonnet-4.5", payload["model"])
	assert.Equal(t, "auto", payload["tool_choice"])
	assert.Equal(t, true, payload["stream"])

	assert.Equal(t, "Hello", contentOf(deltas))
	assert.Equal(t, 1, terminalCount(deltas))
	assert.Equal(t, domain.DeltaDone, deltas[len(deltas)-1].Type)

	var sawTitle, sawDetails bool
	var calls []domain.ToolCallDelta
	for _, d := range deltas {
		switch d.Type {
		case domain.DeltaReasoning:
			sawTitle = d.Label == "Checking chats"
		case domain.DeltaReasoningDetails:
			sawDetails = string(d.ReasoningDetails) == `[{"type":"reasoning.encrypted","data":"sig=="}]`
		case domain.DeltaToolCall:
			calls = append(calls, *d.ToolCall)
		}
	}
	assert.True(t, sawTitle)
	assert.True(t, sawDetails)
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, `{"limit":5}`, calls[1].Arguments)
}

func TestOpenRouterReplaysReasoning(t *testing.T) {
	var payload map[string]any
	srv := sseServer(t, "data: [DONE]\n\n", func(_ *http.Request, p map[string]any) { payload = p })

	req := &Request{
		Model: "google/gemini-2.5-pro",
		Messages: []domain.AgentMessage{
			{Role: domain.RoleUser, Content: "archive c1"},
			{
				Role:             domain.RoleAssistant,
				Reasoning:        "thinking",
				ReasoningDetails: json.RawMessage(`[{"type":"reasoning.encrypted","data":"x"}]`),
				ToolCalls:        []domain.ToolCall{{ID: "t1", Name: "archiveChat", Arguments: `{"chatId":"c1"}`}},
			},
			{Role: domain.RoleTool, ToolCallID: "t1", ToolResult: &domain.ToolResult{Success: true, Data: map[string]any{"archived": true}}},
		},
	}
	ch, err := NewOpenRouter("k", srv.URL, nil).StreamCompletion(context.Background(), req)
	require.NoError(t, err)
	drain(t, ch)

	assert.Equal(t, []any{"reasoning"}, payload["include"])
	msgs := payload["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Equal(t, "thinking", assistant["reasoning"])
	assert.Equal(t, []any{map[string]any{"type": "reasoning.encrypted", "data": "x"}}, assistant["reasoning_details"])
	tool := msgs[2].(map[string]any)
	assert.Equal(t, "t1", tool["tool_call_id"])
	assert.Contains(t, tool["content"], `"archived":true`)
}

func TestOpenRouterEndsWithoutDone(t *testing.T) {
	srv := sseServer(t, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n", nil)
	ch, err := NewOpenRouter("k", srv.URL, nil).StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)
	assert.Equal(t, domain.DeltaDone, deltas[len(deltas)-1].Type)
}

func TestOpenRouterStreamError(t *testing.T) {
	srv := sseServer(t, "data: {\"error\":{\"message\":\"quota exceeded\"}}\n\n", nil)
	ch, err := NewOpenRouter("k", srv.URL, nil).StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.DeltaError, deltas[0].Type)
	assert.Contains(t, deltas[0].Error, "quota exceeded")
}

func TestOpenRouterAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenRouter("bad", srv.URL, nil).StreamCompletion(context.Background(), simpleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMissingKey(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Provider{
		NewOpenRouter("", "", nil),
		NewGemini("", "", nil),
		NewClaude("", ""),
		NewOpenAI("", ""),
	} {
		_, err := p.StreamCompletion(ctx, simpleRequest())
		assert.ErrorIs(t, err, ErrMissingAPIKey, string(p.ID()))
	}
}

// --- Gemini Tests ---

func TestGeminiStream(t *testing.T) {
	body := `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"planning","thought":true}]}}]}

data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Sure. "}]}}]}

data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"archiveChat","args":{"chatId":"c1"}}}]},"finishReason":"STOP"}]}

`
	var path string
	var payload map[string]any
	srv := sseServer(t, body, func(r *http.Request, p map[string]any) {
		path = r.URL.Path + "?" + r.URL.RawQuery
		payload = p
	})

	ch, err := NewGemini("g-key", srv.URL, nil).StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)

	assert.Contains(t, path, "/gemini-2.0-flash:streamGenerateContent")
	assert.Contains(t, path, "key=g-key")
	assert.NotNil(t, payload["systemInstruction"])

	require.Len(t, deltas, 4)
	assert.Equal(t, domain.DeltaReasoning, deltas[0].Type)
	assert.Equal(t, "Sure. ", deltas[1].Content)
	require.NotNil(t, deltas[2].ToolCall)
	assert.Equal(t, "archiveChat", deltas[2].ToolCall.Name)
	assert.JSONEq(t, `{"chatId":"c1"}`, deltas[2].ToolCall.Arguments)
	assert.NotEmpty(t, deltas[2].ToolCall.ID)
	assert.Equal(t, domain.DeltaDone, deltas[3].Type)
}

func TestGeminiFunctionResponsesByName(t *testing.T) {
	g := NewGemini("k", "", nil)
	body := g.buildRequest(&Request{Messages: []domain.AgentMessage{
		{Role: domain.RoleUser, Content: "tidy"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			{ID: "a", Name: "archiveChat", Arguments: `{"chatId":"c1"}`},
			{ID: "b", Name: "pinChat", Arguments: `{"chatId":"c2"}`},
		}},
		{Role: domain.RoleTool, ToolCallID: "a", Content: `{"archived":true}`},
		{Role: domain.RoleTool, ToolCallID: "b", Content: "not json"},
	}})

	require.Len(t, body.Contents, 3)
	responses := body.Contents[2].Parts
	require.Len(t, responses, 2)
	assert.Equal(t, "archiveChat", responses[0].FunctionResponse.Name)
	assert.Equal(t, "pinChat", responses[1].FunctionResponse.Name)
	_, err := json.Marshal(body)
	assert.NoError(t, err)
}

// --- SDK Provider Tests ---

func TestClaudeStream(t *testing.T) {
	body := `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"On it."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"archiveChat","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"chatId\":\"c1\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}

event: message_stop
data: {"type":"message_stop"}

`
	var gotKey string
	srv := sseServer(t, body, func(r *http.Request, _ map[string]any) { gotKey = r.Header.Get("X-Api-Key") })

	ch, err := NewClaude("sk-ant", srv.URL).StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)

	assert.Equal(t, "sk-ant", gotKey)
	assert.Equal(t, "On it.", contentOf(deltas))
	assert.Equal(t, 1, terminalCount(deltas))
	assert.Equal(t, domain.DeltaDone, deltas[len(deltas)-1].Type)

	var calls []domain.ToolCallDelta
	for _, d := range deltas {
		if d.Type == domain.DeltaToolCall {
			calls = append(calls, *d.ToolCall)
		}
	}
	require.Len(t, calls, 2)
	assert.Equal(t, domain.ToolCallDelta{Index: 1, ID: "toolu_1", Name: "archiveChat"}, calls[0])
	assert.Equal(t, domain.ToolCallDelta{Index: 1, Arguments: `{"chatId":"c1"}`}, calls[1])
}

func TestClaudeMessagesGroupToolResults(t *testing.T) {
	msgs := claudeMessages([]domain.AgentMessage{
		{Role: domain.RoleUser, Content: "tidy"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "a", Name: "archiveChat", Arguments: "{}"}, {ID: "b", Name: "pinChat", Arguments: "{}"}}},
		{Role: domain.RoleTool, ToolCallID: "a", Content: "{}"},
		{Role: domain.RoleTool, ToolCallID: "b", Content: "{}"},
		{Role: domain.RoleUser, Content: "thanks"},
	})
	require.Len(t, msgs, 4)
	assert.Len(t, msgs[2].Content, 2)
}

func TestOpenAIStream(t *testing.T) {
	body := `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"listChats","arguments":"{}"}}]},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]

`
	var gotAuth string
	srv := sseServer(t, body, func(r *http.Request, _ map[string]any) { gotAuth = r.Header.Get("Authorization") })

	ch, err := NewOpenAI("sk-oa", srv.URL).StreamCompletion(context.Background(), simpleRequest())
	require.NoError(t, err)
	deltas := drain(t, ch)

	assert.Equal(t, "Bearer sk-oa", gotAuth)
	assert.Equal(t, "Hi", contentOf(deltas))
	assert.Equal(t, domain.DeltaDone, deltas[len(deltas)-1].Type)
	var call *domain.ToolCallDelta
	for _, d := range deltas {
		if d.Type == domain.DeltaToolCall {
			call = d.ToolCall
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "call_9", call.ID)
	assert.Equal(t, "listChats", call.Name)
}

// --- Factory Tests ---

func TestFactory(t *testing.T) {
	f := NewFactory()

	p, err := f.Create(domain.ProviderGemini, WithAPIKey("abc"))
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGemini, p.ID())
	assert.Equal(t, "gemini-2.0-flash", p.DefaultModel())

	again, err := f.Create(domain.ProviderGemini, WithAPIKey("abc"))
	require.NoError(t, err)
	assert.Same(t, p, again)

	other, err := f.Create(domain.ProviderGemini, WithAPIKey("xyz"))
	require.NoError(t, err)
	assert.NotSame(t, p, other)

	_, err = f.Create("bogus")
	assert.Error(t, err)

	for _, id := range []domain.ProviderID{domain.ProviderOpenRouter, domain.ProviderClaude, domain.ProviderOpenAI} {
		p, err := f.Create(id, WithAPIKey("k"))
		require.NoError(t, err)
		assert.Equal(t, id, p.ID())
		assert.Equal(t, DefaultModels[id], p.DefaultModel())
	}
}
