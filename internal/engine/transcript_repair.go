package engine

import "github.com/amrita-ai/amritacore/pkg/models"

// repairTranscript drops any tool message whose ToolCallID does not match a
// pending call from the immediately preceding assistant tool-call group.
// Memory compression that clips mid-group, or concurrent mutation of a
// session before isolation closes the gap, can otherwise leave I1 (every
// tool message is preceded by a matching assistant tool_call) violated; this
// runs once at the start of a turn rather than letting the adapter reject
// the malformed request.
func repairTranscript(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return messages
	}

	pending := make(map[string]bool)
	repaired := make([]models.Message, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			for k := range pending {
				delete(pending, k)
			}
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					pending[tc.ID] = true
				}
			}
			repaired = append(repaired, msg)
		case models.RoleTool:
			if !pending[msg.ToolCallID] {
				continue
			}
			delete(pending, msg.ToolCallID)
			repaired = append(repaired, msg)
		default:
			repaired = append(repaired, msg)
		}
	}

	return repaired
}
