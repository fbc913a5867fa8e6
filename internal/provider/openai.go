package provider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

// OpenAI talks to the Chat Completions API through the official SDK.
type OpenAI struct {
	client openai.Client
	hasKey bool
	log    *logging.Logger
}

// NewOpenAI creates a client. baseURL is optional and also serves
// OpenAI-compatible gateways.
func NewOpenAI(apiKey, baseURL string, opts ...option.RequestOption) *OpenAI {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &OpenAI{
		client: openai.NewClient(all...),
		hasKey: apiKey != "",
		log:    logging.New("provider.openai"),
	}
}

func (o *OpenAI) ID() domain.ProviderID { return domain.ProviderOpenAI }
func (o *OpenAI) DefaultModel() string  { return DefaultModels[domain.ProviderOpenAI] }

func (o *OpenAI) buildParams(req *Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(modelOr(req, domain.ProviderOpenAI)),
		Messages:            openaiMessages(req),
		MaxCompletionTokens: openai.Int(int64(maxTokens(req))),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return params
}

func openaiMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(toolResultText(m), m.ToolCallID))
		case domain.RoleAssistant:
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		}
	}
	return out
}

// StreamCompletion implements Provider.
func (o *OpenAI) StreamCompletion(ctx context.Context, req *Request) (<-chan domain.StreamDelta, error) {
	if !o.hasKey {
		return nil, ErrMissingAPIKey
	}
	params := o.buildParams(req)
	o.log.Debug("request", map[string]any{"model": string(params.Model), "messages": len(params.Messages), "tools": len(params.Tools)})

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan domain.StreamDelta, 100)
	go o.handleStream(ctx, stream, out)
	return out, nil
}

func (o *OpenAI) handleStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], out chan<- domain.StreamDelta) {
	defer close(out)
	defer stream.Close()
	em := emitter{ctx: ctx, out: out}

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !em.send(domain.StreamDelta{Type: domain.DeltaContent, Content: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				if !em.send(domain.StreamDelta{Type: domain.DeltaToolCall, ToolCall: &domain.ToolCallDelta{
					Index:     int(tc.Index),
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}}) {
					return
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		o.log.Warn("stream_failed", nil, err)
		em.fail(err)
		return
	}
	em.done()
}
