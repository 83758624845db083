package models

import (
	"encoding/json"
	"fmt"
)

// MemoryModel is the per-session conversation memory: the chronological
// message sequence plus a running summary ("abstract") that stands in for
// anything compacted away.
type MemoryModel struct {
	Messages []Message `json:"messages"`
	Time     float64   `json:"time"` // monotonic seconds, assigned by the caller
	Abstract string    `json:"abstract,omitempty"`
}

// NewMemoryModel returns an empty memory at the given monotonic timestamp.
func NewMemoryModel(time float64) MemoryModel {
	return MemoryModel{Time: time}
}

// Append adds a message to the end of memory, preserving chronological order.
func (m *MemoryModel) Append(msg Message) {
	m.Messages = append(m.Messages, msg)
}

// NonSystemCount returns the count of non-system messages, the quantity the
// compression policy (§4.7) measures against memory_length_limit.
func (m *MemoryModel) NonSystemCount() int {
	n := 0
	for _, msg := range m.Messages {
		if msg.Role != RoleSystem {
			n++
		}
	}
	return n
}

// ValidateToolLinkage checks invariant I1: every tool message is preceded by
// an assistant message whose ToolCalls contains the matching ID.
func (m *MemoryModel) ValidateToolLinkage() error {
	seen := make(map[string]bool)
	for i, msg := range m.Messages {
		switch msg.Role {
		case RoleAssistant:
			for _, tc := range msg.ToolCalls {
				seen[tc.ID] = true
			}
		case RoleTool:
			if !seen[msg.ToolCallID] {
				return fmt.Errorf("models: tool message at index %d references unknown tool_call_id %q", i, msg.ToolCallID)
			}
		}
	}
	return nil
}

// Clone returns a deep-enough copy of the memory for safe mutation by a
// turn without aliasing the session's committed slice (see §5 "Per-turn
// MemoryModel").
func (m MemoryModel) Clone() MemoryModel {
	out := MemoryModel{Time: m.Time, Abstract: m.Abstract}
	out.Messages = make([]Message, len(m.Messages))
	copy(out.Messages, m.Messages)
	return out
}

// Serialize round-trips a MemoryModel to JSON bytes (R4).
func (m MemoryModel) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// DeserializeMemoryModel is the inverse of Serialize.
func DeserializeMemoryModel(data []byte) (MemoryModel, error) {
	var m MemoryModel
	if err := json.Unmarshal(data, &m); err != nil {
		return MemoryModel{}, fmt.Errorf("models: deserialize memory: %w", err)
	}
	return m, nil
}
