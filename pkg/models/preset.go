package models

// ModelConfig carries generation parameters and behavioral flags for a
// preset. MaxTokens is a per-preset override; when zero, the engine fills
// it from LLMConfig.MaxTokens before the adapter call.
type ModelConfig struct {
	TopK              int     `json:"top_k,omitempty"`
	TopP              float64 `json:"top_p,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	Stream            bool    `json:"stream"`
	ThoughtChainModel bool    `json:"thought_chain_model,omitempty"`
	Multimodal        bool    `json:"multimodal,omitempty"`
}

// ModelPreset is a named bundle of model identity, endpoint, credentials,
// and generation parameters. Presets round-trip through JSON (R1).
type ModelPreset struct {
	Name     string         `json:"name"`
	Model    string         `json:"model"`
	BaseURL  string         `json:"base_url,omitempty"`
	APIKey   string         `json:"api_key,omitempty"`
	Protocol string         `json:"protocol"` // protocol-tag, e.g. "openai", "anthropic", "bedrock"
	Config   ModelConfig    `json:"config"`
	Extra    map[string]any `json:"extra,omitempty"`
}
