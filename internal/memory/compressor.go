// Package memory implements the summarization-triggered compression policy
// (C7): when a session's non-system message count reaches its limit, the
// oldest proportion of messages is replaced by a single summary message,
// never splitting an assistant/tool-call group.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// Summarizer produces a plain-text summary of a chronological message
// window. The root Runtime binds this to its default preset's adapter
// (§4.7 step 2); tests may substitute a stub.
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt string, window []models.Message) (string, error)
}

const summaryPromptPrefix = "Summarize the following conversation preserving entities, decisions, and unresolved tasks: "

const abstractSeparator = "\n\n---\n\n"

// Compressor applies the §4.7 policy against a MemoryModel in place.
type Compressor struct {
	summarizer Summarizer
	logger     *slog.Logger
}

// NewCompressor binds a Compressor to the adapter used to generate
// summaries.
func NewCompressor(summarizer Summarizer, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{summarizer: summarizer, logger: logger.With("component", "memory")}
}

// Compress evaluates the compression policy and mutates mem if it fires.
// It reports whether compression occurred. memory_length_limit=0 disables
// the policy entirely (§8 boundary behavior).
//
// If summarization fails, mem is left untouched and the error is returned;
// the caller (Engine) treats this as "retry next turn" per §4.7.
func (c *Compressor) Compress(ctx context.Context, mem *models.MemoryModel, cfg models.LLMConfig) (bool, error) {
	if !cfg.EnableMemoryAbstract || cfg.MemoryLengthLimit <= 0 {
		return false, nil
	}
	if mem.NonSystemCount() < cfg.MemoryLengthLimit {
		return false, nil
	}

	proportion := cfg.MemoryAbstractProportion
	if proportion <= 0 || proportion > 1 {
		proportion = 1
	}
	victimCount := int(math.Ceil(proportion * float64(cfg.MemoryLengthLimit)))
	if victimCount <= 0 {
		return false, nil
	}

	// One proportional window is not always enough: a tool-calling turn can
	// append more messages than a single window removes, and the post-
	// compression count must still land at or under the limit. Keep taking
	// another window's worth of victims until the survivors fit.
	minCount := victimCount
	var start, end int
	for {
		var ok bool
		start, end, ok = victimWindow(mem.Messages, minCount)
		if !ok {
			return false, nil
		}
		if mem.NonSystemCount()-nonSystemIn(mem.Messages[start:end]) <= cfg.MemoryLengthLimit {
			break
		}
		minCount += victimCount
	}

	window := mem.Messages[start:end]
	summary, err := c.summarizer.Summarize(ctx, summaryPromptPrefix, window)
	if err != nil {
		c.logger.Warn("memory summarization failed, deferring compression", "error", err)
		return false, fmt.Errorf("memory: summarize victim window: %w", err)
	}

	abstract := mem.Abstract
	if abstract != "" {
		abstract += abstractSeparator
	}
	abstract += summary

	replacement := models.NewTextMessage(models.RoleSystem, abstract)
	out := make([]models.Message, 0, len(mem.Messages)-(end-start)+1)
	out = append(out, mem.Messages[:start]...)
	out = append(out, replacement)
	out = append(out, mem.Messages[end:]...)

	mem.Messages = out
	mem.Abstract = abstract
	return true, nil
}

// nonSystemIn counts the non-system messages in a window.
func nonSystemIn(messages []models.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role != models.RoleSystem {
			n++
		}
	}
	return n
}

// victimWindow finds the [start, end) slice of the oldest non-system
// messages covering at least minCount of them, extended as needed so it
// never splits an assistant message from its trailing tool-result group
// (§4.7 step 1). ok is false when there is nothing eligible to compress
// (e.g. the memory is all system messages).
func victimWindow(messages []models.Message, minCount int) (start, end int, ok bool) {
	start = -1
	nonSystemSeen := 0
	for i, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		if start == -1 {
			start = i
		}
		nonSystemSeen++
		end = i + 1
		if nonSystemSeen >= minCount {
			break
		}
	}
	if start == -1 {
		return 0, 0, false
	}

	// Extend end past any tool messages that directly follow the window,
	// whether it ends on the assistant tool-call message or part-way through
	// its tool results (atomic tool-call group).
	for end < len(messages) && messages[end].Role == models.RoleTool {
		end++
	}

	return start, end, true
}

// AdapterSummarizer adapts a single non-streaming completion call (the
// kind every providers.Adapter exposes) into a Summarizer by draining the
// stream and discarding everything but the terminal content.
type AdapterSummarizer struct {
	Call func(ctx context.Context, messages []models.Message) (string, error)
}

// Summarize implements Summarizer.
func (a AdapterSummarizer) Summarize(ctx context.Context, systemPrompt string, window []models.Message) (string, error) {
	req := make([]models.Message, 0, len(window)+1)
	req = append(req, models.NewTextMessage(models.RoleSystem, systemPrompt+renderWindow(window)))
	return a.Call(ctx, req)
}

func renderWindow(window []models.Message) string {
	var b strings.Builder
	for _, m := range window {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Text())
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, " [called %s(%s)]", tc.Function.Name, tc.Function.Arguments)
		}
		b.WriteString("\n")
	}
	return b.String()
}
