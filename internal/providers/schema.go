package providers

import "github.com/amrita-ai/amritacore/pkg/models"

// schemaToDoc converts a FunctionDefinitionSchema's parameters into the
// plain map[string]any shape every provider SDK's tool-definition field
// expects.
func schemaToDoc(p models.ParametersSchema) map[string]any {
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
	if p.Description != "" {
		doc["description"] = p.Description
	}
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
