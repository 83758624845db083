package models

// ToolCallingMode controls whether and how the engine exposes tools to the
// model for a given turn.
type ToolCallingMode string

const (
	ToolCallingAgent ToolCallingMode = "agent"
	ToolCallingRAG   ToolCallingMode = "rag"
	ToolCallingNone  ToolCallingMode = "none"
)

// AgentThoughtMode controls reasoning-tool enforcement (§4.9 "Reasoning
// enforcement").
type AgentThoughtMode string

const (
	ThoughtReasoning         AgentThoughtMode = "reasoning"
	ThoughtChat              AgentThoughtMode = "chat"
	ThoughtReasoningRequired AgentThoughtMode = "reasoning-required"
	ThoughtReasoningOptional AgentThoughtMode = "reasoning-optional"
)

// FunctionConfig controls tool-calling and agent-loop behavior.
type FunctionConfig struct {
	UseMinimalContext     bool             `json:"use_minimal_context"`
	ToolCallingMode       ToolCallingMode  `json:"tool_calling_mode"`
	AgentThoughtMode      AgentThoughtMode `json:"agent_thought_mode"`
	AgentMCPClientEnable  bool             `json:"agent_mcp_client_enable"`
	AgentMCPServerScripts []string         `json:"agent_mcp_server_scripts,omitempty"`
	AgentMiddleMessage    bool             `json:"agent_middle_message"`
	AgentMaxToolCalls     int              `json:"agent_max_tool_calls"`
}

// LLMConfig controls generation limits, retries, and memory compression.
type LLMConfig struct {
	MaxTokens                int     `json:"max_tokens"`
	LLMTimeoutS              float64 `json:"llm_timeout_s"`
	AutoRetry                bool    `json:"auto_retry"`
	MaxRetries               int     `json:"max_retries"`
	MemoryLengthLimit        int     `json:"memory_length_limit"`
	EnableMemoryAbstract     bool    `json:"enable_memory_abstract"`
	MemoryAbstractProportion float64 `json:"memory_abstract_proportion"`
}

// CookieConfig controls the prompt-injection detection cookie (§9 glossary
// "Cookie marker").
type CookieConfig struct {
	EnableCookie bool   `json:"enable_cookie"`
	Cookie       string `json:"cookie,omitempty"`
}

// AmritaConfig aggregates all process-wide and per-session configuration.
type AmritaConfig struct {
	Function FunctionConfig `json:"function"`
	LLM      LLMConfig      `json:"llm"`
	Cookie   CookieConfig   `json:"cookie"`
}

// DefaultAmritaConfig returns sane defaults, mirroring the teacher's
// DefaultLoopConfig/DefaultCompactionConfig pattern of an explicit
// constructor rather than zero-value reliance.
func DefaultAmritaConfig() AmritaConfig {
	return AmritaConfig{
		Function: FunctionConfig{
			ToolCallingMode:    ToolCallingAgent,
			AgentThoughtMode:   ThoughtReasoningOptional,
			AgentMiddleMessage: true,
			AgentMaxToolCalls:  25,
		},
		LLM: LLMConfig{
			MaxTokens:                4096,
			LLMTimeoutS:              60,
			AutoRetry:                true,
			MaxRetries:               2,
			MemoryLengthLimit:        40,
			EnableMemoryAbstract:     true,
			MemoryAbstractProportion: 0.5,
		},
	}
}
