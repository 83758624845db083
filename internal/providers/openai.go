package providers

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// OpenAIAdapter is the reference OpenAI-compatible adapter (§4.6): HTTP
// chat-completions against {base_url}/chat/completions, server-sent
// streaming deltas accumulated per tool-call index, finalized into a
// UniResponse.
type OpenAIAdapter struct {
	client *openai.Client
	preset models.ModelPreset
}

// NewOpenAIAdapter builds an adapter bound to preset. A non-empty BaseURL
// points the client at an OpenAI-compatible endpoint other than the public
// API (proxies, local servers, other vendors speaking the same wire
// format).
func NewOpenAIAdapter(preset models.ModelPreset) *OpenAIAdapter {
	cfg := openai.DefaultConfig(preset.APIKey)
	if preset.BaseURL != "" {
		cfg.BaseURL = preset.BaseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg), preset: preset}
}

// CallAPI implements Adapter.
func (a *OpenAIAdapter) CallAPI(ctx context.Context, messages []models.Message, tools []models.FunctionDefinitionSchema) (<-chan Chunk, error) {
	req := openai.ChatCompletionRequest{
		Model:    a.preset.Model,
		Messages: toOpenAIMessages(messages),
		Stream:   a.preset.Config.Stream,
	}
	if a.preset.Config.Temperature != 0 {
		req.Temperature = float32(a.preset.Config.Temperature)
	}
	if a.preset.Config.TopP != 0 {
		req.TopP = float32(a.preset.Config.TopP)
	}
	if a.preset.Config.MaxTokens > 0 {
		req.MaxTokens = a.preset.Config.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	if !a.preset.Config.Stream {
		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, NewAdapterError("openai", a.preset.Model, err)
		}
		out := make(chan Chunk, 1)
		out <- Chunk{Final: toUniResponse(resp)}
		close(out)
		return out, nil
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, NewAdapterError("openai", a.preset.Model, err)
	}

	out := make(chan Chunk)
	go a.pump(ctx, stream, out)
	return out, nil
}

// pump drains the SSE stream, accumulating content and per-index tool-call
// argument fragments, and emits exactly one terminal Chunk when the stream
// ends normally; on a receive error or a done ctx it closes out without one.
func (a *OpenAIAdapter) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- Chunk) {
	defer close(out)
	defer stream.Close()

	var content string
	toolCalls := map[int]*models.ToolCall{}
	var order []int
	var usage *models.Usage

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- Chunk{Final: finalizeOpenAI(content, toolCalls, order, usage)}
				return
			}
			return
		}

		if resp.Usage != nil {
			usage = &models.Usage{
				Prompt:     resp.Usage.PromptTokens,
				Completion: resp.Usage.CompletionTokens,
				Total:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			content += delta.Content
			out <- Chunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &models.ToolCall{Type: "function"}
				order = append(order, idx)
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Function.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Function.Arguments += tc.Function.Arguments
			}
		}

		if resp.Choices[0].FinishReason != "" {
			out <- Chunk{Final: finalizeOpenAI(content, toolCalls, order, usage)}
			return
		}
	}
}

func finalizeOpenAI(content string, toolCalls map[int]*models.ToolCall, order []int, usage *models.Usage) *models.UniResponse {
	calls := make([]models.ToolCall, 0, len(order))
	for _, idx := range order {
		calls = append(calls, *toolCalls[idx])
	}
	return &models.UniResponse{
		Role:      models.RoleAssistant,
		Content:   content,
		Usage:     usage,
		ToolCalls: calls,
	}
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Text(),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			om.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				om.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []models.FunctionDefinitionSchema) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToDoc(t.Parameters),
			},
		}
	}
	return out
}

func toUniResponse(resp openai.ChatCompletionResponse) *models.UniResponse {
	if len(resp.Choices) == 0 {
		return &models.UniResponse{Role: models.RoleAssistant}
	}
	msg := resp.Choices[0].Message
	calls := make([]models.ToolCall, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		calls[i] = models.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: models.ToolCallFunc{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return &models.UniResponse{
		Role:    models.RoleAssistant,
		Content: msg.Content,
		Usage: &models.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		ToolCalls: calls,
	}
}
