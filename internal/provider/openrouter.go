package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

const openRouterAPIURL = "https://openrouter.ai/api/v1"

// OpenRouter streams chat completions from OpenRouter's OpenAI-compatible
// endpoint, including Gemini reasoning and thought signatures.
type OpenRouter struct {
	apiKey  string
	baseURL string
	referer string
	client  HTTPClient
	log     *logging.Logger
}

// NewOpenRouter creates a client. An empty baseURL selects the public API.
func NewOpenRouter(apiKey, baseURL string, client HTTPClient) *OpenRouter {
	if baseURL == "" {
		baseURL = openRouterAPIURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		referer: "https://telebiz.app",
		client:  client,
		log:     logging.New("provider.openrouter"),
	}
}

func (o *OpenRouter) ID() domain.ProviderID { return domain.ProviderOpenRouter }
func (o *OpenRouter) DefaultModel() string  { return DefaultModels[domain.ProviderOpenRouter] }

type orToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type orMessage struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ToolCalls        []orToolCall    `json:"tool_calls,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

type orTool struct {
	Type     string                `json:"type"`
	Function domain.ToolDefinition `json:"function"`
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	Tools       []orTool    `json:"tools,omitempty"`
	ToolChoice  string      `json:"tool_choice,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream"`
	Include     []string    `json:"include,omitempty"`
}

type orChunk struct {
	Choices []struct {
		Delta struct {
			Content          string          `json:"content"`
			Reasoning        string          `json:"reasoning"`
			ReasoningDetails json.RawMessage `json:"reasoning_details"`
			ToolCalls        []orToolCall    `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenRouter) buildRequest(req *Request) orRequest {
	model := modelOr(req, domain.ProviderOpenRouter)
	body := orRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens(req),
		Stream:      true,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, orMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msg := orMessage{Role: string(m.Role), Content: m.Content}
		switch m.Role {
		case domain.RoleTool:
			msg.Content = toolResultText(m)
			msg.ToolCallID = m.ToolCallID
		case domain.RoleAssistant:
			msg.Reasoning = m.Reasoning
			if len(m.ReasoningDetails) > 0 {
				msg.ReasoningDetails = m.ReasoningDetails
			}
			for _, tc := range m.ToolCalls {
				c := orToolCall{ID: tc.ID, Type: "function"}
				c.Function.Name = tc.Name
				c.Function.Arguments = tc.Arguments
				msg.ToolCalls = append(msg.ToolCalls, c)
			}
		}
		body.Messages = append(body.Messages, msg)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, orTool{Type: "function", Function: t})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	// Gemini drops its thought signatures unless reasoning is requested.
	if strings.Contains(model, "gemini") {
		body.Include = []string{"reasoning"}
	}
	return body
}

// StreamCompletion implements Provider.
func (o *OpenRouter) StreamCompletion(ctx context.Context, req *Request) (<-chan domain.StreamDelta, error) {
	if o.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	payload, err := json.Marshal(o.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("HTTP-Referer", o.referer)
	httpReq.Header.Set("X-Title", "Telebiz Agent")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("OpenRouter", resp)
	}

	out := make(chan domain.StreamDelta, 100)
	go func() {
		defer close(out)
		em := emitter{ctx: ctx, out: out}
		var streamErr error
		err := readSSE(resp.Body, StreamIdleTimeout, func(data string) bool {
			if data == "[DONE]" {
				return false
			}
			var chunk orChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				o.log.Warn("sse_parse_failed", nil, err)
				return true
			}
			if chunk.Error != nil {
				streamErr = fmt.Errorf("OpenRouter: %s", chunk.Error.Message)
				return false
			}
			return o.emitChunk(em, chunk)
		})
		if streamErr == nil {
			streamErr = err
		}
		if streamErr != nil {
			em.fail(streamErr)
			return
		}
		em.done()
	}()
	return out, nil
}

var thinkingTitle = regexp.MustCompile(`^\*\*(.+?)\*\*`)

func (o *OpenRouter) emitChunk(em emitter, chunk orChunk) bool {
	for _, choice := range chunk.Choices {
		d := choice.Delta
		if d.Content != "" && !em.send(domain.StreamDelta{Type: domain.DeltaContent, Content: d.Content}) {
			return false
		}
		if d.Reasoning != "" {
			delta := domain.StreamDelta{Type: domain.DeltaReasoning, Reasoning: d.Reasoning}
			if m := thinkingTitle.FindStringSubmatch(d.Reasoning); m != nil {
				delta.Label = m[1]
			}
			if !em.send(delta) {
				return false
			}
		}
		if len(d.ReasoningDetails) > 0 && string(d.ReasoningDetails) != "null" && string(d.ReasoningDetails) != "[]" {
			if !em.send(domain.StreamDelta{Type: domain.DeltaReasoningDetails, ReasoningDetails: d.ReasoningDetails}) {
				return false
			}
		}
		for _, tc := range d.ToolCalls {
			if !em.send(domain.StreamDelta{Type: domain.DeltaToolCall, ToolCall: &domain.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}) {
				return false
			}
		}
	}
	return true
}
