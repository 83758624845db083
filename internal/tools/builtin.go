package tools

import (
	"context"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// agentStopSchema describes agent_stop: the loop's signal that the
// assistant is ready to emit its final answer. result is optional — when
// omitted the engine uses whatever assistant content accompanied the call.
var agentStopSchema = models.FunctionDefinitionSchema{
	Name:        "agent_stop",
	Description: "Ends the turn and returns the final answer to the caller.",
	Parameters: models.ParametersSchema{
		Type: "object",
		Properties: map[string]models.PropertySchema{
			"result": {
				Type:        "string",
				Description: "the final answer; omit to use the assistant's own message content",
			},
		},
	},
}

// AgentStop is the built-in loop-termination tool. Its Invoke just echoes
// the result argument back; the engine recognizes calls to this tool by
// name before dispatch, reads the result argument itself and treats the
// call as "stop the loop, this is the final answer", so the loop never
// invokes it or feeds a result back for another iteration.
func AgentStop() Tool {
	return Tool{
		Schema: agentStopSchema,
		Invoke: func(_ context.Context, args map[string]any) (string, error) {
			if result, ok := args["result"].(string); ok {
				return result, nil
			}
			return "", nil
		},
	}
}

var thinkAndReasonSchema = models.FunctionDefinitionSchema{
	Name:        "think_and_reason",
	Description: "Records a private reasoning step without ending the turn.",
	Parameters: models.ParametersSchema{
		Type: "object",
		Properties: map[string]models.PropertySchema{
			"content": {
				Type:        "string",
				Description: "the reasoning to record",
			},
		},
		Required: []string{"content"},
	},
}

// ThinkAndReason is the built-in scratchpad tool: it appends its content
// back as a tool-result so the model sees its own reasoning in the next
// request, but does not signal loop termination.
func ThinkAndReason() Tool {
	return Tool{
		Schema: thinkAndReasonSchema,
		Invoke: func(_ context.Context, args map[string]any) (string, error) {
			content, _ := args["content"].(string)
			return content, nil
		},
	}
}

var processingMessageSchema = models.FunctionDefinitionSchema{
	Name:        "processing_message",
	Description: "Streams a status update to the user while the turn continues.",
	Parameters: models.ParametersSchema{
		Type: "object",
		Properties: map[string]models.PropertySchema{
			"content": {
				Type:        "string",
				Description: "the text to stream",
			},
		},
		Required: []string{"content"},
	},
}

const processingMessageAck = "acknowledged"

// ProcessingMessage is the built-in custom-run tool: it streams its content
// to the turn's response sink via yield_response and returns the fixed
// acknowledgement "acknowledged" as its tool result.
func ProcessingMessage() Tool {
	return Tool{
		Schema:    processingMessageSchema,
		CustomRun: true,
		CustomInvoke: func(ctx context.Context, tc ToolContext) (string, bool, error) {
			content, _ := tc.Data["content"].(string)
			if tc.Event != nil {
				if err := tc.Event.YieldResponse(content); err != nil {
					return "", false, err
				}
			}
			return processingMessageAck, true, nil
		},
	}
}

// RegisterBuiltins installs the three built-in tools into m's global layer.
func RegisterBuiltins(m *MultiToolsManager) {
	m.RegisterGlobal(AgentStop())
	m.RegisterGlobal(ThinkAndReason())
	m.RegisterGlobal(ProcessingMessage())
}
