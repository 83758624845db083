package models

// FunctionDefinitionSchema describes a callable tool in the subset of
// JSON-Schema the dispatcher actually honors: string|number|integer|boolean|
// array|object, plus enum/required/nested properties.
type FunctionDefinitionSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is the "parameters" object of a FunctionDefinitionSchema.
type ParametersSchema struct {
	Type       string                    `json:"type"` // always "object"
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema describes one parameter.
type PropertySchema struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description,omitempty"`
	Enum        []string                  `json:"enum,omitempty"`
	Default     any                       `json:"default,omitempty"`
	Items       *PropertySchema           `json:"items,omitempty"`
	Properties  map[string]PropertySchema `json:"properties,omitempty"`
}
