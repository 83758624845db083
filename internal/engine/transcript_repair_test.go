package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amrita-ai/amritacore/pkg/models"
)

func toolCallMsg(id, name string) models.Message {
	m := models.NewTextMessage(models.RoleAssistant, "")
	m.ToolCalls = []models.ToolCall{{ID: id, Type: "function", Function: models.ToolCallFunc{Name: name, Arguments: "{}"}}}
	return m
}

func toolResultMsg(id, content string) models.Message {
	return models.ToolResult{Role: models.RoleTool, Name: "t", Content: content, ToolCallID: id}.ToMessage()
}

func TestRepairTranscriptKeepsWellFormedGroups(t *testing.T) {
	msgs := []models.Message{
		models.NewTextMessage(models.RoleUser, "hi"),
		toolCallMsg("t1", "echo"),
		toolResultMsg("t1", "ok"),
		models.NewTextMessage(models.RoleAssistant, "done"),
	}
	require.Equal(t, msgs, repairTranscript(msgs))
}

func TestRepairTranscriptDropsOrphanToolMessages(t *testing.T) {
	msgs := []models.Message{
		models.NewTextMessage(models.RoleUser, "hi"),
		toolResultMsg("ghost", "orphan"),
		models.NewTextMessage(models.RoleAssistant, "done"),
	}

	repaired := repairTranscript(msgs)
	require.Len(t, repaired, 2)
	mem := models.MemoryModel{Messages: repaired}
	require.NoError(t, mem.ValidateToolLinkage())
}

func TestRepairTranscriptDropsToolMessagesAfterUnrelatedAssistant(t *testing.T) {
	msgs := []models.Message{
		toolCallMsg("t1", "echo"),
		models.NewTextMessage(models.RoleAssistant, "interleaved"),
		toolResultMsg("t1", "stale"),
	}

	repaired := repairTranscript(msgs)
	require.Len(t, repaired, 2)
	for _, m := range repaired {
		require.NotEqual(t, models.RoleTool, m.Role)
	}
}

func TestRepairTranscriptDropsDuplicateToolResults(t *testing.T) {
	msgs := []models.Message{
		toolCallMsg("t1", "echo"),
		toolResultMsg("t1", "first"),
		toolResultMsg("t1", "second"),
	}

	repaired := repairTranscript(msgs)
	require.Len(t, repaired, 2)
	require.Equal(t, "first", repaired[1].Text())
}
