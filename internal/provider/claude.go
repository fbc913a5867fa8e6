package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

// Claude talks to the Anthropic Messages API through the official SDK.
type Claude struct {
	client anthropic.Client
	hasKey bool
	log    *logging.Logger
}

// NewClaude creates a client. baseURL is optional.
func NewClaude(apiKey, baseURL string, opts ...option.RequestOption) *Claude {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &Claude{
		client: anthropic.NewClient(all...),
		hasKey: apiKey != "",
		log:    logging.New("provider.claude"),
	}
}

func (c *Claude) ID() domain.ProviderID { return domain.ProviderClaude }
func (c *Claude) DefaultModel() string  { return DefaultModels[domain.ProviderClaude] }

func (c *Claude) buildParams(req *Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelOr(req, domain.ProviderClaude)),
		MaxTokens: int64(maxTokens(req)),
		Messages:  claudeMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, t := range req.Tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
				Required:   t.Required(),
			},
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return params
}

// claudeMessages maps history onto alternating user/assistant turns. Runs
// of tool messages become one user message of tool_result blocks.
func claudeMessages(msgs []domain.AgentMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case domain.RoleTool:
			isError := m.ToolResult != nil && !m.ToolResult.Success
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, toolResultText(m), isError))
		case domain.RoleUser:
			flush()
			if m.Content == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
			}
		}
	}
	flush()
	return out
}

// StreamCompletion implements Provider.
func (c *Claude) StreamCompletion(ctx context.Context, req *Request) (<-chan domain.StreamDelta, error) {
	if !c.hasKey {
		return nil, ErrMissingAPIKey
	}
	params := c.buildParams(req)
	c.log.Debug("request", map[string]any{"model": string(params.Model), "messages": len(params.Messages), "tools": len(params.Tools)})

	stream := c.client.Messages.NewStreaming(ctx, params)
	out := make(chan domain.StreamDelta, 100)
	go c.handleStream(ctx, stream, out)
	return out, nil
}

func (c *Claude) handleStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- domain.StreamDelta) {
	defer close(out)
	defer stream.Close()
	em := emitter{ctx: ctx, out: out}

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			cb := event.AsContentBlockStart()
			switch block := cb.ContentBlock.AsAny().(type) {
			case anthropic.ToolUseBlock:
				if !em.send(domain.StreamDelta{Type: domain.DeltaToolCall, ToolCall: &domain.ToolCallDelta{
					Index: int(cb.Index), ID: block.ID, Name: block.Name,
				}}) {
					return
				}
			case anthropic.ThinkingBlock:
				if !em.send(domain.StreamDelta{Type: domain.DeltaThinkingStart, Label: "Thinking"}) {
					return
				}
			}

		case "content_block_delta":
			cd := event.AsContentBlockDelta()
			var d domain.StreamDelta
			switch delta := cd.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				d = domain.StreamDelta{Type: domain.DeltaContent, Content: delta.Text}
			case anthropic.InputJSONDelta:
				d = domain.StreamDelta{Type: domain.DeltaToolCall, ToolCall: &domain.ToolCallDelta{
					Index: int(cd.Index), Arguments: delta.PartialJSON,
				}}
			case anthropic.ThinkingDelta:
				d = domain.StreamDelta{Type: domain.DeltaReasoning, Reasoning: delta.Thinking}
			default:
				continue
			}
			if !em.send(d) {
				return
			}

		case "message_stop":
			em.done()
			return

		case "error":
			em.fail(fmt.Errorf("stream error: %s", event.RawJSON()))
			return
		}
	}

	if err := stream.Err(); err != nil {
		c.log.Warn("stream_failed", nil, err)
		em.fail(err)
		return
	}
	em.done()
}
