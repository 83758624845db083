package providers

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// anthropicDefaultMaxTokens backstops presets that carry no max-tokens
// value; the Messages API rejects requests without one.
const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter wraps anthropic-sdk-go's streaming Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
	preset models.ModelPreset
}

// NewAnthropicAdapter builds an adapter bound to preset.
func NewAnthropicAdapter(preset models.ModelPreset) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(preset.APIKey)}
	if preset.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(preset.BaseURL))
	}
	return &AnthropicAdapter{client: anthropic.NewClient(opts...), preset: preset}
}

// CallAPI implements Adapter.
func (a *AnthropicAdapter) CallAPI(ctx context.Context, messages []models.Message, tools []models.FunctionDefinitionSchema) (<-chan Chunk, error) {
	params, err := a.buildParams(messages, tools)
	if err != nil {
		return nil, NewAdapterError("anthropic", a.preset.Model, err)
	}

	out := make(chan Chunk)
	stream := a.client.Messages.NewStreaming(ctx, params)
	go a.pump(stream, out)
	return out, nil
}

// ssestreamStream is the subset of ssestream.Stream[anthropic.MessageStreamEventUnion]
// that pump depends on, named locally so the dependency is documented in one
// place rather than scattered across call sites.
type ssestreamStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}

func (a *AnthropicAdapter) buildParams(messages []models.Message, tools []models.FunctionDefinitionSchema) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var msgParams []anthropic.MessageParam

	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Type: "text", Text: m.Text()})
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		switch {
		case m.Role == models.RoleTool:
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), false))
		case m.Text() != "":
			blocks = append(blocks, anthropic.NewTextBlock(m.Text()))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					return anthropic.MessageNewParams{}, err
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if m.Role == models.RoleAssistant {
			msgParams = append(msgParams, anthropic.NewAssistantMessage(blocks...))
		} else {
			msgParams = append(msgParams, anthropic.NewUserMessage(blocks...))
		}
	}

	maxTokens := int64(a.preset.Config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.preset.Model),
		Messages:  msgParams,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		toolParams, err := toAnthropicTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = toolParams
	}
	return params, nil
}

func toAnthropicTools(tools []models.FunctionDefinitionSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(schemaToDoc(t.Parameters))
		if err != nil {
			return nil, err
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, err
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

// pump converts Anthropic's content-block streaming events into Chunk
// values, accumulating text and tool-use blocks until message_stop.
func (a *AnthropicAdapter) pump(stream ssestreamStream, out chan<- Chunk) {
	defer close(out)

	var content string
	var calls []models.ToolCall
	var currentCall *models.ToolCall
	var currentInput string
	var usage models.Usage

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentCall = &models.ToolCall{ID: toolUse.ID, Type: "function"}
				currentCall.Function.Name = toolUse.Name
				currentInput = ""
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content += delta.Text
					out <- Chunk{Text: delta.Text}
				}
			case "input_json_delta":
				currentInput += delta.PartialJSON
			}

		case "content_block_stop":
			if currentCall != nil {
				currentCall.Function.Arguments = currentInput
				calls = append(calls, *currentCall)
				currentCall = nil
			}

		case "message_start":
			usage.Prompt = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "message_delta":
			usage.Completion = int(event.AsMessageDelta().Usage.OutputTokens)

		case "message_stop":
			usage.Total = usage.Prompt + usage.Completion
			out <- Chunk{Final: &models.UniResponse{
				Role:      models.RoleAssistant,
				Content:   content,
				Usage:     &usage,
				ToolCalls: calls,
			}}
			return

		case "error":
			return
		}
	}
	_ = stream.Err()
}
