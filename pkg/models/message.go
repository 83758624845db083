// Package models holds the core wire-level data types shared across the
// Amrita agent runtime: messages, tool calls, presets, configuration, and
// the unified model response envelope.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one piece of a structured message body.
type ContentPart struct {
	Type string `json:"type"` // "text" | "image"
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ErrInvalidAssistantMessage is returned when an assistant message has
// neither content nor tool calls.
var ErrInvalidAssistantMessage = errors.New("models: assistant message must carry content or tool_calls")

// ToolCall is an LLM's request to invoke a named function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc is the function-call payload of a ToolCall.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded argument object
}

// ToolResult is the message produced after a tool call is executed.
type ToolResult struct {
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id"`
}

// ToMessage converts a ToolResult into the Message form appended to memory.
func (r ToolResult) ToMessage() Message {
	return Message{
		Role:       r.Role,
		content:    r.Content,
		Name:       r.Name,
		ToolCallID: r.ToolCallID,
	}
}

// Message is one turn of conversation. Content is a sum type: either plain
// text or a sequence of structured parts. Use NewTextMessage /
// NewPartsMessage to build one, and Text() to read it back uniformly.
type Message struct {
	Role       Role          `json:"role"`
	content    string        // set when the message is plain text
	parts      []ContentPart // set when the message is structured
	isParts    bool          // discriminator: true if parts is authoritative
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// NewTextMessage builds a plain-text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, content: text}
}

// NewPartsMessage builds a structured-content message.
func NewPartsMessage(role Role, parts []ContentPart) Message {
	return Message{Role: role, parts: parts, isParts: true}
}

// Text returns the message's textual content. For structured messages, text
// parts are concatenated; image parts are skipped.
func (m Message) Text() string {
	if !m.isParts {
		return m.content
	}
	out := ""
	for _, p := range m.parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// Parts returns the structured parts, if any.
func (m Message) Parts() []ContentPart {
	return m.parts
}

// IsStructured reports whether the message content is a parts sequence.
func (m Message) IsStructured() bool {
	return m.isParts
}

// Validate enforces the invariant that an assistant message carries either
// content or tool calls.
func (m Message) Validate() error {
	if m.Role != RoleAssistant {
		return nil
	}
	if m.Text() == "" && len(m.parts) == 0 && len(m.ToolCalls) == 0 {
		return ErrInvalidAssistantMessage
	}
	return nil
}

// messageWire is the JSON-serializable shadow of Message. Single-text-part
// lists collapse to a bare string for compatibility with providers that only
// understand string content.
type messageWire struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// MarshalJSON collapses a single-text-part content list to a bare string.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}

	switch {
	case m.isParts && len(m.parts) == 1 && m.parts[0].Type == "text":
		raw, err := json.Marshal(m.parts[0].Text)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	case m.isParts:
		raw, err := json.Marshal(m.parts)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	default:
		raw, err := json.Marshal(m.content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	}

	return json.Marshal(w)
}

// UnmarshalJSON accepts either a bare string or a parts array for "content".
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Role = w.Role
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.Name = w.Name
	m.parts = nil
	m.isParts = false
	m.content = ""

	if len(w.Content) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(w.Content, &asString); err == nil {
		m.content = asString
		return nil
	}

	var asParts []ContentPart
	if err := json.Unmarshal(w.Content, &asParts); err != nil {
		return fmt.Errorf("models: message content neither string nor parts: %w", err)
	}
	m.parts = asParts
	m.isParts = true
	return nil
}
