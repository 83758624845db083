package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageJSONPlainTextRoundTrip(t *testing.T) {
	m := NewTextMessage(RoleUser, "hello")

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"user","content":"hello"}`, string(raw))

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, "hello", back.Text())
	require.False(t, back.IsStructured())
}

func TestMessageJSONSingleTextPartCollapsesToString(t *testing.T) {
	m := NewPartsMessage(RoleUser, []ContentPart{{Type: "text", Text: "hi"}})

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"user","content":"hi"}`, string(raw))
}

func TestMessageJSONMultiPartRoundTrip(t *testing.T) {
	parts := []ContentPart{
		{Type: "text", Text: "look at this:"},
		{Type: "image", URL: "https://img.example.test/cat.png"},
	}
	m := NewPartsMessage(RoleUser, parts)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.True(t, back.IsStructured())
	require.Equal(t, parts, back.Parts())
	require.Equal(t, "look at this:", back.Text())
}

func TestMessageJSONToolCallsRoundTrip(t *testing.T) {
	m := NewTextMessage(RoleAssistant, "")
	m.ToolCalls = []ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: ToolCallFunc{Name: "echo", Arguments: `{"x":1}`},
	}}

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, m.ToolCalls, back.ToolCalls)
}

func TestValidateRejectsEmptyAssistantMessage(t *testing.T) {
	empty := NewTextMessage(RoleAssistant, "")
	require.ErrorIs(t, empty.Validate(), ErrInvalidAssistantMessage)

	withCalls := empty
	withCalls.ToolCalls = []ToolCall{{ID: "c1", Type: "function"}}
	require.NoError(t, withCalls.Validate())

	require.NoError(t, NewTextMessage(RoleUser, "").Validate())
}

func TestMemorySerializationRoundTrip(t *testing.T) {
	mem := NewMemoryModel(12.5)
	mem.Abstract = "earlier talk about cats"
	mem.Append(NewTextMessage(RoleSystem, "be nice"))
	mem.Append(NewTextMessage(RoleUser, "hi"))
	asst := NewTextMessage(RoleAssistant, "")
	asst.ToolCalls = []ToolCall{{ID: "t1", Type: "function", Function: ToolCallFunc{Name: "echo", Arguments: "{}"}}}
	mem.Append(asst)
	mem.Append(ToolResult{Role: RoleTool, Name: "echo", Content: "ok", ToolCallID: "t1"}.ToMessage())

	raw, err := mem.Serialize()
	require.NoError(t, err)
	back, err := DeserializeMemoryModel(raw)
	require.NoError(t, err)
	require.Equal(t, mem, back)
}

func TestValidateToolLinkage(t *testing.T) {
	mem := NewMemoryModel(0)
	asst := NewTextMessage(RoleAssistant, "")
	asst.ToolCalls = []ToolCall{{ID: "t1", Type: "function"}}
	mem.Append(asst)
	mem.Append(ToolResult{Role: RoleTool, Name: "echo", Content: "ok", ToolCallID: "t1"}.ToMessage())
	require.NoError(t, mem.ValidateToolLinkage())

	mem.Append(ToolResult{Role: RoleTool, Name: "echo", Content: "orphan", ToolCallID: "ghost"}.ToMessage())
	require.Error(t, mem.ValidateToolLinkage())
}

func TestNonSystemCount(t *testing.T) {
	mem := NewMemoryModel(0)
	mem.Append(NewTextMessage(RoleSystem, "sys"))
	mem.Append(NewTextMessage(RoleUser, "u"))
	mem.Append(NewTextMessage(RoleAssistant, "a"))
	require.Equal(t, 2, mem.NonSystemCount())
}

func TestPresetToMapRoundTrip(t *testing.T) {
	p := ModelPreset{
		Name:     "p1",
		Model:    "claude-sonnet-4-5",
		Protocol: "anthropic",
		Config:   ModelConfig{Temperature: 0.3, Stream: true},
		Extra:    map[string]any{"region": "us-east-1"},
	}

	m, err := p.ToMap()
	require.NoError(t, err)
	back, err := PresetFromMap(m)
	require.NoError(t, err)
	require.Equal(t, p, back)
}

func TestConfigToMapRoundTrip(t *testing.T) {
	c := DefaultAmritaConfig()
	c.Cookie = CookieConfig{EnableCookie: true, Cookie: "opaque"}

	m, err := c.ToMap()
	require.NoError(t, err)
	back, err := ConfigFromMap(m)
	require.NoError(t, err)
	require.Equal(t, c, back)
}
