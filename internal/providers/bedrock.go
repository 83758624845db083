package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// BedrockAdapter wraps AWS Bedrock's Converse/ConverseStream API as a third
// protocol, demonstrating that the adapter registry is genuinely
// provider-agnostic rather than OpenAI-shaped. Credentials and region come
// from the default AWS credential chain; ModelPreset.Extra["region"] (if
// set) overrides the region.
type BedrockAdapter struct {
	client *bedrockruntime.Client
	preset models.ModelPreset
}

// NewBedrockAdapter builds an adapter bound to preset, resolving AWS
// credentials via the standard SDK chain (env, shared config, IAM role).
// Presets carrying Extra["aws_access_key_id"]/["aws_secret_access_key"]
// bypass the chain with a static provider instead.
func NewBedrockAdapter(preset models.ModelPreset) (*BedrockAdapter, error) {
	var optFns []func(*config.LoadOptions) error
	if region, ok := preset.Extra["region"].(string); ok && region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	keyID, _ := preset.Extra["aws_access_key_id"].(string)
	secret, _ := preset.Extra["aws_secret_access_key"].(string)
	if keyID != "" && secret != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock: load AWS config: %w", err)
	}
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(cfg), preset: preset}, nil
}

// CallAPI implements Adapter. Bedrock's ConverseStream is always
// incremental; when ModelConfig.Stream is false the pump is drained
// internally and a single terminal Chunk is returned.
func (a *BedrockAdapter) CallAPI(ctx context.Context, messages []models.Message, tools []models.FunctionDefinitionSchema) (<-chan Chunk, error) {
	system, converted := toBedrockMessages(messages)

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(a.preset.Model),
		Messages: converted,
	}
	if a.preset.Config.MaxTokens > 0 {
		req.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(a.preset.Config.MaxTokens)),
		}
	}
	if system != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if len(tools) > 0 {
		toolSpecs, err := toBedrockTools(tools)
		if err != nil {
			return nil, NewAdapterError("bedrock", a.preset.Model, err)
		}
		req.ToolConfig = &types.ToolConfiguration{Tools: toolSpecs}
	}

	resp, err := a.client.ConverseStream(ctx, req)
	if err != nil {
		return nil, wrapBedrockError(a.preset.Model, err)
	}

	if !a.preset.Config.Stream {
		out := make(chan Chunk, 1)
		final, perr := drainBedrockStream(resp, nil)
		if perr != nil {
			return nil, NewAdapterError("bedrock", a.preset.Model, perr)
		}
		out <- Chunk{Final: final}
		close(out)
		return out, nil
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		final, perr := drainBedrockStream(resp, out)
		if perr != nil {
			return
		}
		out <- Chunk{Final: final}
	}()
	return out, nil
}

// drainBedrockStream pumps every event-stream member, emitting text chunks
// to textSink (if non-nil) and accumulating content and tool-use blocks
// into the terminal UniResponse.
func drainBedrockStream(resp *bedrockruntime.ConverseStreamOutput, textSink chan<- Chunk) (*models.UniResponse, error) {
	stream := resp.GetStream()
	defer stream.Close()

	var content string
	var calls []models.ToolCall
	var currentCall *models.ToolCall
	var currentInput strings.Builder
	var usage models.Usage

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				currentCall = &models.ToolCall{
					ID:   aws.ToString(toolUse.Value.ToolUseId),
					Type: "function",
				}
				currentCall.Function.Name = aws.ToString(toolUse.Value.Name)
				currentInput.Reset()
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					content += delta.Value
					if textSink != nil {
						textSink <- Chunk{Text: delta.Value}
					}
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					currentInput.WriteString(*delta.Value.Input)
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if currentCall != nil {
				currentCall.Function.Arguments = currentInput.String()
				calls = append(calls, *currentCall)
				currentCall = nil
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage.Prompt = int(aws.ToInt32(ev.Value.Usage.InputTokens))
				usage.Completion = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				usage.Total = int(aws.ToInt32(ev.Value.Usage.TotalTokens))
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			// terminal marker; fields are finalized below once the
			// channel drains.
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &models.UniResponse{
		Role:      models.RoleAssistant,
		Content:   content,
		Usage:     &usage,
		ToolCalls: calls,
	}, nil
}

// toBedrockMessages splits out system-role messages (Bedrock carries system
// prompt separately from the turn sequence) and converts the rest,
// including prior tool calls and tool results, to Converse message blocks.
func toBedrockMessages(messages []models.Message) (string, []types.Message) {
	var system []string
	out := make([]types.Message, 0, len(messages))

	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Text())
			continue
		}

		var blocks []types.ContentBlock
		if text := m.Text(); text != "" {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: text})
		}
		if m.Role == models.RoleTool {
			blocks = append(blocks, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Text()}},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			var input any = map[string]any{}
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			}
			blocks = append(blocks, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Function.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}

	return strings.Join(system, "\n\n"), out
}

// wrapBedrockError classifies the SDK's smithy API errors by error code,
// which is more reliable than text matching for throttles and auth
// failures.
func wrapBedrockError(model string, err error) *AdapterError {
	e := NewAdapterError("bedrock", model, err)
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return e
	}
	e.Message = apiErr.ErrorMessage()
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		e.Reason = FailoverRateLimit
	case "AccessDeniedException", "UnrecognizedClientException":
		e.Reason = FailoverAuth
	case "ValidationException":
		e.Reason = FailoverInvalid
	case "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException":
		e.Reason = FailoverServerError
	}
	return e
}

func toBedrockTools(tools []models.FunctionDefinitionSchema) ([]types.Tool, error) {
	out := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(schemaToDoc(t.Parameters))
		if err != nil {
			return nil, fmt.Errorf("providers: bedrock: marshal schema for %s: %w", t.Name, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		out = append(out, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(doc)},
			},
		})
	}
	return out, nil
}
