package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// compiledSchema caches a tool's argument validator, built once at
// registration from its FunctionDefinitionSchema via
// santhosh-tekuri/jsonschema.
type compiledSchema struct {
	mu     sync.Mutex
	schema *jsonschema.Schema
	err    error
}

// compileSchema builds, at registration, the JSON-Schema validator for a tool's
// parameters, honoring the subset of JSON-Schema described in §4.1:
// string|number|integer|boolean|array|object, enum, required, nested
// properties.
func compileSchema(t *Tool) {
	doc := toJSONSchemaDoc(t.Schema.Parameters)
	raw, err := json.Marshal(doc)
	cs := &compiledSchema{}
	if err != nil {
		cs.err = fmt.Errorf("tools: marshal schema for %s: %w", t.Schema.Name, err)
		t.compiled = cs
		return
	}

	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		cs.err = fmt.Errorf("tools: add schema resource for %s: %w", t.Schema.Name, err)
		t.compiled = cs
		return
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		cs.err = fmt.Errorf("tools: compile schema for %s: %w", t.Schema.Name, err)
		t.compiled = cs
		return
	}
	cs.schema = schema
	t.compiled = cs
}

func toJSONSchemaDoc(p models.ParametersSchema) map[string]any {
	props := make(map[string]any, len(p.Properties))
	for name, prop := range p.Properties {
		props[name] = propertyToDoc(prop)
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(p.Required) > 0 {
		doc["required"] = p.Required
	}
	return doc
}

func propertyToDoc(p models.PropertySchema) map[string]any {
	doc := map[string]any{"type": p.Type}
	if len(p.Enum) > 0 {
		enum := make([]any, len(p.Enum))
		for i, e := range p.Enum {
			enum[i] = e
		}
		doc["enum"] = enum
	}
	if p.Items != nil {
		doc["items"] = propertyToDoc(*p.Items)
	}
	if len(p.Properties) > 0 {
		nested := make(map[string]any, len(p.Properties))
		for name, np := range p.Properties {
			nested[name] = propertyToDoc(np)
		}
		doc["properties"] = nested
	}
	return doc
}

// ErrSchemaViolation wraps the dispatcher's SchemaViolation error kind
// (§7): required fields missing or types mismatched.
var ErrSchemaViolation = fmt.Errorf("tools: schema violation")

// Dispatch executes a tool call: validates arguments against the tool's
// schema, then invokes it in whichever mode the tool declared.
//
// On schema violation, Dispatch does not return an error to the caller —
// per §4.5 "Schema validation", the dispatcher appends a tool-result
// message carrying an error string and the turn continues.
func Dispatch(ctx context.Context, t Tool, call models.ToolCall, turn hooks.TurnHandle) models.ToolResult {
	args, err := parseArgs(call.Function.Arguments)
	if err != nil {
		return errorResult(call, fmt.Sprintf("invalid arguments JSON: %v", err))
	}

	if t.compiled != nil {
		if t.compiled.err != nil {
			return errorResult(call, fmt.Sprintf("internal schema error: %v", t.compiled.err))
		}
		if t.compiled.schema != nil {
			// jsonschema validates against map[string]any with JSON
			// number semantics; re-decode through json to normalize.
			raw, _ := json.Marshal(args)
			var doc any
			_ = json.Unmarshal(raw, &doc)
			if err := t.compiled.schema.Validate(doc); err != nil {
				return errorResult(call, fmt.Sprintf("%v: %v", ErrSchemaViolation, err))
			}
		}
	}

	if t.CustomRun {
		result, hasResult, err := t.CustomInvoke(ctx, ToolContext{Data: args, Event: turn, ToolName: t.Name()})
		if err != nil {
			return errorResult(call, err.Error())
		}
		if !hasResult {
			return models.ToolResult{} // caller must recognize the zero value as "no message"
		}
		return okResult(call, t.Name(), result)
	}

	result, err := t.Invoke(ctx, args)
	if err != nil {
		return errorResult(call, err.Error())
	}
	return okResult(call, t.Name(), result)
}

// HasCustomNoResult reports whether a ToolResult returned by Dispatch for a
// custom-run tool represents "no tool-result message" (the zero value).
func HasCustomNoResult(r models.ToolResult) bool {
	return r == models.ToolResult{}
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func errorResult(call models.ToolCall, msg string) models.ToolResult {
	return models.ToolResult{
		Role:       models.RoleTool,
		Name:       call.Function.Name,
		Content:    "error: " + msg,
		ToolCallID: call.ID,
	}
}

func okResult(call models.ToolCall, name, content string) models.ToolResult {
	return models.ToolResult{
		Role:       models.RoleTool,
		Name:       name,
		Content:    content,
		ToolCallID: call.ID,
	}
}

// CoerceToString implements the "non-string returns are coerced via JSON
// serialization" rule for default-mode tools that return a Go value
// instead of a string.
func CoerceToString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
