package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini streams from the Generative Language API.
type Gemini struct {
	apiKey  string
	baseURL string
	client  HTTPClient
	log     *logging.Logger
}

// NewGemini creates a client. An empty baseURL selects the public API.
func NewGemini(apiKey, baseURL string, client HTTPClient) *Gemini {
	if baseURL == "" {
		baseURL = geminiAPIURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     logging.New("provider.gemini"),
	}
}

func (g *Gemini) ID() domain.ProviderID { return domain.ProviderGemini }
func (g *Gemini) DefaultModel() string  { return DefaultModels[domain.ProviderGemini] }

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []geminiToolDef  `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	Thought          bool                `json:"thought,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiToolDef struct {
	FunctionDeclarations []domain.ToolDefinition `json:"functionDeclarations"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *Gemini) buildRequest(req *Request) geminiRequest {
	body := geminiRequest{
		GenerationConfig: &geminiGenConfig{MaxOutputTokens: maxTokens(req), Temperature: req.Temperature},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	// function responses are matched by name, not call id
	names := map[string]string{}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleUser:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		case domain.RoleAssistant:
			var parts []geminiPart
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Name
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || args == nil {
					args = map[string]any{}
				}
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: parts})
			}
		case domain.RoleTool:
			part := geminiPart{FunctionResponse: &geminiFunctionResp{
				Name:     names[m.ToolCallID],
				Response: map[string]any{"result": json.RawMessage(toolResultJSON(m))},
			}}
			// consecutive responses share one user turn
			if n := len(body.Contents); n > 0 && body.Contents[n-1].Role == "user" && body.Contents[n-1].Parts[0].FunctionResponse != nil {
				body.Contents[n-1].Parts = append(body.Contents[n-1].Parts, part)
				continue
			}
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
		}
	}
	if len(req.Tools) > 0 {
		body.Tools = []geminiToolDef{{FunctionDeclarations: req.Tools}}
	}
	return body
}

// toolResultJSON returns the tool message as valid JSON.
func toolResultJSON(m domain.AgentMessage) string {
	s := toolResultText(m)
	if json.Valid([]byte(s)) {
		return s
	}
	b, _ := json.Marshal(s)
	return string(b)
}

// StreamCompletion implements Provider.
func (g *Gemini) StreamCompletion(ctx context.Context, req *Request) (<-chan domain.StreamDelta, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	payload, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s",
		g.baseURL, url.PathEscape(modelOr(req, domain.ProviderGemini)), url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("Gemini", resp)
	}

	out := make(chan domain.StreamDelta, 100)
	go func() {
		defer close(out)
		em := emitter{ctx: ctx, out: out}
		var streamErr error
		calls := 0
		err := readSSE(resp.Body, StreamIdleTimeout, func(data string) bool {
			var chunk geminiChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				g.log.Warn("sse_parse_failed", nil, err)
				return true
			}
			if chunk.Error != nil {
				streamErr = fmt.Errorf("Gemini: %s", chunk.Error.Message)
				return false
			}
			for _, cand := range chunk.Candidates {
				for _, part := range cand.Content.Parts {
					var d domain.StreamDelta
					switch {
					case part.FunctionCall != nil:
						args, _ := json.Marshal(part.FunctionCall.Args)
						d = domain.StreamDelta{Type: domain.DeltaToolCall, ToolCall: &domain.ToolCallDelta{
							Index:     calls,
							ID:        fmt.Sprintf("gemini-call-%d", calls),
							Name:      part.FunctionCall.Name,
							Arguments: string(args),
						}}
						calls++
					case part.Thought && part.Text != "":
						d = domain.StreamDelta{Type: domain.DeltaReasoning, Reasoning: part.Text}
					case part.Text != "":
						d = domain.StreamDelta{Type: domain.DeltaContent, Content: part.Text}
					default:
						continue
					}
					if !em.send(d) {
						return false
					}
				}
			}
			return true
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
