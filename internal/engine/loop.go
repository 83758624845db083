package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/tools"
	"github.com/amrita-ai/amritacore/pkg/models"
)

const reasoningDirective = "Think first by calling think_and_reason before answering."
const reasoningRequiredMessage = "reasoning required: call think_and_reason before any other tool"

// cookieIncidentEvent is the custom event name dispatched when the cookie
// marker leaks into user-visible response content.
const cookieIncidentEvent = "cookie_incident"

var _ hooks.TurnHandle = (*Turn)(nil)

// run executes the full agent loop (§4.9 "Agent loop") and is always
// invoked in its own goroutine by Begin.
func (t *Turn) run(ctx context.Context) {
	defer close(t.done)

	ctx, span := startTurnSpan(ctx, t.sessionID, t.streamID)
	defer span.End()

	t.session.Lock()
	mem := t.session.Memory.Clone()
	t.session.Unlock()

	mem.Messages = repairTranscript(mem.Messages)
	mem.Append(models.NewTextMessage(models.RoleUser, t.userInput))

	finalResp, loopErr := t.runLoop(ctx, &mem)

	t.endTime = time.Now()
	duration := t.endTime.Sub(t.startTime).Seconds()

	if loopErr != nil {
		t.mu.Lock()
		t.err = loopErr
		t.mu.Unlock()
		t.engine.Metrics.observeTurn("failed", duration)
		t.sink.close(loopErr)
		return
	}

	if t.config.Cookie.EnableCookie && t.config.Cookie.Cookie != "" && strings.Contains(finalResp.Content, t.config.Cookie.Cookie) {
		t.mu.Lock()
		t.cookieHit = true
		t.mu.Unlock()
		t.engine.Logger.Warn("prompt-injection cookie detected in turn response",
			"session", t.sessionID, "stream", t.streamID)
		incident := &hooks.CustomEvent{Name: cookieIncidentEvent, Payload: t.streamID}
		if err := t.dispatch(ctx, incident); err != nil {
			t.engine.Logger.Warn("cookie incident hook dispatch error", "session", t.sessionID, "error", err)
		}
	}

	if t.engine.Compressor != nil {
		compressed, cerr := t.engine.Compressor.Compress(ctx, &mem, t.config.LLM)
		if cerr != nil {
			t.engine.Logger.Warn("memory compression deferred", "session", t.sessionID, "error", cerr)
		} else if compressed {
			t.mu.Lock()
			t.stats.CompressionTriggers++
			t.mu.Unlock()
			t.engine.Metrics.observeCompression()
		}
	}

	t.session.Lock()
	t.session.Memory = mem
	t.session.Unlock()

	t.mu.Lock()
	t.result = finalResp
	stats := t.stats
	t.mu.Unlock()

	t.engine.Metrics.observeTurn("ok", duration)
	t.engine.Metrics.observeIterations(stats.Iterations)
	t.sink.close(nil)
}

// runLoop drives the reasoning -> tool-call -> completion cycle until a
// terminal response is produced or an unrecoverable error occurs.
func (t *Turn) runLoop(ctx context.Context, mem *models.MemoryModel) (models.UniResponse, error) {
	term := 0
	ragExhausted := false

	for {
		select {
		case <-ctx.Done():
			return models.UniResponse{}, &LoopError{Phase: PhaseAdapterCall, Iteration: term, Cause: ErrCancelled}
		default:
		}

		iterCtx, iterSpan := startIterationSpan(ctx, term)
		resp, stop, err := t.runIteration(iterCtx, mem, term, &ragExhausted)
		iterSpan.End()

		t.mu.Lock()
		t.stats.Iterations++
		t.mu.Unlock()

		if err != nil {
			return models.UniResponse{}, err
		}
		if stop {
			return resp, nil
		}
		term++
	}
}

// runIteration runs one loop_iteration(term) as pseudocoded in §4.9.
func (t *Turn) runIteration(ctx context.Context, mem *models.MemoryModel, term int, ragExhausted *bool) (models.UniResponse, bool, error) {
	reqMessages := append(trainMessages(t.train), buildRequestMessages(*mem, t.config.Function.UseMinimalContext)...)

	if t.config.Cookie.EnableCookie && t.config.Cookie.Cookie != "" {
		reqMessages = append(reqMessages, models.NewTextMessage(models.RoleSystem, "marker: "+t.config.Cookie.Cookie))
	}
	if term == 0 && t.config.Function.AgentThoughtMode == models.ThoughtReasoning {
		reqMessages = append(reqMessages, models.NewTextMessage(models.RoleSystem, reasoningDirective))
	}

	active := t.activeTools(*ragExhausted)
	schemas := tools.AsSchemas(active)

	preEvent := &hooks.PreCompletionEvent{Messages: reqMessages, ChatObject: t}
	if err := t.dispatch(ctx, preEvent); err != nil {
		return models.UniResponse{}, false, &LoopError{Phase: PhaseBuildRequest, Iteration: term, Cause: err}
	}
	reqMessages = preEvent.Messages

	resp, err := t.callWithFallback(ctx, reqMessages, schemas, term)
	if err != nil {
		return models.UniResponse{}, false, err
	}

	assistantMsg := models.NewTextMessage(models.RoleAssistant, resp.Content)
	assistantMsg.ToolCalls = resp.ToolCalls
	mem.Append(assistantMsg)

	completionEvent := &hooks.CompletionEvent{Response: resp, ChatObject: t}
	if err := t.dispatch(ctx, completionEvent); err != nil {
		t.engine.Logger.Warn("completion hook dispatch error", "session", t.sessionID, "error", err)
	}

	if len(resp.ToolCalls) == 0 {
		return resp, true, nil
	}

	if t.config.Function.AgentThoughtMode == models.ThoughtReasoningRequired && !hasToolCall(resp.ToolCalls, "think_and_reason") {
		for _, call := range resp.ToolCalls {
			mem.Append(models.ToolResult{
				Role:       models.RoleTool,
				Name:       call.Function.Name,
				Content:    reasoningRequiredMessage,
				ToolCallID: call.ID,
			}.ToMessage())
		}
		return models.UniResponse{}, false, nil
	}

	stopRequested := false
	finalContent := resp.Content
	for _, call := range resp.ToolCalls {
		if ctx.Err() != nil {
			return models.UniResponse{}, false, &LoopError{Phase: PhaseToolDispatch, Iteration: term, Cause: ErrCancelled}
		}
		if call.Function.Name == "agent_stop" {
			stopRequested = true
			if args, perr := parseStopArgs(call.Function.Arguments); perr == nil && args != "" {
				finalContent = args
			}
			break
		}

		tool, found := t.session.Tools.Get(t.sessionID, call.Function.Name)
		if !found {
			mem.Append(models.ToolResult{
				Role:       models.RoleTool,
				Name:       call.Function.Name,
				Content:    fmt.Sprintf("error: unknown tool %q", call.Function.Name),
				ToolCallID: call.ID,
			}.ToMessage())
			t.engine.Metrics.observeToolCall(call.Function.Name, "not_found")
			continue
		}

		result := tools.Dispatch(ctx, tool, call, t)
		outcome := "ok"
		if strings.HasPrefix(result.Content, "error:") {
			outcome = "error"
		}
		t.engine.Metrics.observeToolCall(call.Function.Name, outcome)

		t.mu.Lock()
		t.stats.ToolCalls++
		toolCalls := t.stats.ToolCalls
		t.mu.Unlock()

		if !tools.HasCustomNoResult(result) {
			mem.Append(result.ToMessage())
		}

		if t.config.Function.ToolCallingMode == models.ToolCallingRAG {
			*ragExhausted = true
		}
		if t.config.Function.AgentMaxToolCalls > 0 && toolCalls >= t.config.Function.AgentMaxToolCalls {
			stopRequested = true
			break
		}
	}

	if stopRequested {
		resp.Content = finalContent
		return resp, true, nil
	}
	return models.UniResponse{}, false, nil
}

// activeTools lists the tools visible for the next adapter call, applying
// the chat-mode reasoning-tool hide and the RAG one-shot exhaustion rule.
func (t *Turn) activeTools(ragExhausted bool) []tools.Tool {
	if t.config.Function.ToolCallingMode == models.ToolCallingRAG && ragExhausted {
		return nil
	}
	active := t.session.Tools.ListActive(t.sessionID, t.config.Function.ToolCallingMode)
	hideReasoning := t.config.Function.AgentThoughtMode == models.ThoughtChat
	hideMiddle := !t.config.Function.AgentMiddleMessage
	if !hideReasoning && !hideMiddle {
		return active
	}
	out := active[:0:0]
	for _, tl := range active {
		if hideReasoning && tl.Name() == "think_and_reason" {
			continue
		}
		if hideMiddle && tl.Name() == "processing_message" {
			continue
		}
		out = append(out, tl)
	}
	return out
}

// trainMessages renders the turn's system-prompt bundle ({role -> content})
// as the leading request messages, in sorted-role order so repeated
// iterations build byte-identical requests.
func trainMessages(train map[string]string) []models.Message {
	if len(train) == 0 {
		return nil
	}
	roles := make([]string, 0, len(train))
	for r := range train {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	out := make([]models.Message, 0, len(roles))
	for _, r := range roles {
		out = append(out, models.NewTextMessage(models.Role(r), train[r]))
	}
	return out
}

func (t *Turn) dispatch(ctx context.Context, ev hooks.Event) error {
	return t.engine.Hooks.Dispatch(ctx, ev, hooks.DispatchOptions{
		HookArgs:         t.hookArgs,
		HookKwargs:       t.hookKwargs,
		ExceptionIgnored: t.exceptionIgnored,
	})
}

// buildRequestMessages assembles the messages sent to the adapter. In
// minimal-context mode only the running abstract (if any) plus the most
// recent user message are sent, trading recall for token budget; full
// context sends the entire committed transcript. The backward scan matters
// on later loop iterations, where the newest memory entries are assistant
// tool calls and tool results rather than the user's input.
func buildRequestMessages(mem models.MemoryModel, minimal bool) []models.Message {
	if !minimal || len(mem.Messages) == 0 {
		return append([]models.Message(nil), mem.Messages...)
	}
	out := make([]models.Message, 0, 2)
	if mem.Abstract != "" {
		out = append(out, models.NewTextMessage(models.RoleSystem, mem.Abstract))
	}
	for i := len(mem.Messages) - 1; i >= 0; i-- {
		if mem.Messages[i].Role == models.RoleUser {
			out = append(out, mem.Messages[i])
			break
		}
	}
	return out
}

func hasToolCall(calls []models.ToolCall, name string) bool {
	for _, c := range calls {
		if c.Function.Name == name {
			return true
		}
	}
	return false
}

// parseStopArgs extracts the optional "result" argument from an agent_stop
// call without pulling in the tools package's schema machinery for one field.
func parseStopArgs(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	var args struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", err
	}
	return args.Result, nil
}
