package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// StructTool derives a FunctionDefinitionSchema from a Go struct type by
// JSON-Schema reflection and wraps fn as a default-mode Tool. Field names,
// types, required-ness, and descriptions come from the struct's json and
// jsonschema tags:
//
//	type echoArgs struct {
//	    Text  string `json:"text" jsonschema:"description=the text to repeat"`
//	    Times int    `json:"times,omitempty" jsonschema:"description=repeat count"`
//	}
//
//	tool, err := StructTool("echo", "Repeats the input back.",
//	    func(ctx context.Context, a echoArgs) (string, error) { ... })
//
// Arguments are validated against the derived schema by the dispatcher like
// any other tool, then decoded into T before fn runs.
func StructTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (Tool, error) {
	var zero T
	params, err := reflectParameters(&zero)
	if err != nil {
		return Tool{}, fmt.Errorf("tools: StructTool %s: %w", name, err)
	}

	schema := models.FunctionDefinitionSchema{
		Name:        name,
		Description: description,
		Parameters:  params,
	}

	return Tool{
		Schema: schema,
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return "", fmt.Errorf("tools: %s: encode arguments: %w", name, err)
			}
			var typed T
			if err := json.Unmarshal(raw, &typed); err != nil {
				return "", fmt.Errorf("tools: %s: decode arguments: %w", name, err)
			}
			return fn(ctx, typed)
		},
	}, nil
}

// reflectParameters runs invopop/jsonschema over v and converts the inlined
// result into the ParametersSchema subset the dispatcher honors.
func reflectParameters(v any) (models.ParametersSchema, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := r.Reflect(v)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return models.ParametersSchema{}, err
	}
	var params models.ParametersSchema
	if err := json.Unmarshal(raw, &params); err != nil {
		return models.ParametersSchema{}, err
	}
	if params.Type == "" {
		params.Type = "object"
	}
	return params, nil
}
