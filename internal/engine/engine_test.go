package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/memory"
	"github.com/amrita-ai/amritacore/internal/providers"
	"github.com/amrita-ai/amritacore/internal/sessions"
	"github.com/amrita-ai/amritacore/internal/tools"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// scriptedStep is one canned CallAPI response for scriptedAdapter.
type scriptedStep struct {
	text  string
	final models.UniResponse
	err   error
}

// scriptedAdapter is a providers.Adapter whose responses are pre-scripted,
// one per successive CallAPI invocation, letting a test drive the agent
// loop through an exact sequence of iterations.
type scriptedAdapter struct {
	mu          sync.Mutex
	calls       int
	script      []scriptedStep
	sawTools    [][]models.FunctionDefinitionSchema
	sawMessages [][]models.Message
}

func (a *scriptedAdapter) CallAPI(ctx context.Context, messages []models.Message, toolSchemas []models.FunctionDefinitionSchema) (<-chan providers.Chunk, error) {
	a.mu.Lock()
	i := a.calls
	a.calls++
	a.sawTools = append(a.sawTools, toolSchemas)
	a.sawMessages = append(a.sawMessages, append([]models.Message(nil), messages...))
	a.mu.Unlock()

	if i >= len(a.script) {
		return nil, fmt.Errorf("scriptedAdapter: no script entry for call %d", i)
	}
	step := a.script[i]
	if step.err != nil {
		return nil, step.err
	}

	ch := make(chan providers.Chunk, 2)
	if step.text != "" {
		ch <- providers.Chunk{Text: step.text}
	}
	final := step.final
	ch <- providers.Chunk{Final: &final}
	close(ch)
	return ch, nil
}

func echoTool() tools.Tool {
	return tools.Tool{
		Schema: models.FunctionDefinitionSchema{
			Name: "echo",
			Parameters: models.ParametersSchema{
				Type: "object",
				Properties: map[string]models.PropertySchema{
					"text": {Type: "string"},
				},
				Required: []string{"text"},
			},
		},
		Invoke: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "echoed: " + text, nil
		},
	}
}

type stubSummarizer struct{ summary string }

func (s stubSummarizer) Summarize(_ context.Context, _ string, _ []models.Message) (string, error) {
	return s.summary, nil
}

// testHarness bundles one Engine with the scripted adapter driving it.
type testHarness struct {
	engine  *Engine
	adapter *scriptedAdapter
	preset  models.ModelPreset
}

func newTestHarness(t *testing.T, script []scriptedStep, extraTools ...tools.Tool) *testHarness {
	t.Helper()

	adapter := &scriptedAdapter{script: script}
	protoReg := providers.NewProtocolRegistry()
	protoReg.Register("fake", func(models.ModelPreset) (providers.Adapter, error) {
		return adapter, nil
	}, true)

	toolsMgr := tools.NewMultiToolsManager()
	tools.RegisterBuiltins(toolsMgr)
	for _, tl := range extraTools {
		toolsMgr.RegisterGlobal(tl)
	}

	sessReg := sessions.New(toolsMgr, nil, nil)
	hookReg := hooks.NewRegistry(nil)
	compressor := memory.NewCompressor(stubSummarizer{summary: "a compact summary"}, nil)

	eng := New(sessReg, hookReg, protoReg, compressor, nil, nil)
	return &testHarness{
		engine:  eng,
		adapter: adapter,
		preset:  models.ModelPreset{Name: "test", Model: "test-model", Protocol: "fake"},
	}
}

func (h *testHarness) begin(t *testing.T, p Params) *Turn {
	t.Helper()
	if p.Preset == nil {
		p.Preset = &h.preset
	}
	if !p.AutoCreateSession && p.SessionID == "" {
		p.AutoCreateSession = true
	}
	turn, err := NewTurn(context.Background(), h.engine, p)
	require.NoError(t, err)
	require.NoError(t, turn.Begin(context.Background()))
	return turn
}

func TestChatTurnNoToolCallsReturnsAssistantContent(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "hi there"}},
	})

	turn := h.begin(t, Params{UserInput: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "hi there", text)
	require.Equal(t, 1, turn.Stats().Iterations)
}

func TestChatTurnSingleToolCallRoundTrips(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: models.ToolCallFunc{
					Name:      "echo",
					Arguments: `{"text":"payload"}`,
				},
			}},
		}},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "done"}},
	}, echoTool())

	turn := h.begin(t, Params{UserInput: "please echo"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "done", text)
	require.Equal(t, 2, turn.Stats().Iterations)
	require.Equal(t, 1, turn.Stats().ToolCalls)
}

func TestSchemaViolationAppendsErrorResultAndContinues(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: models.ToolCallFunc{Name: "echo", Arguments: `{}`}, // missing required "text"
			}},
		}},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "recovered"}},
	}, echoTool())

	turn := h.begin(t, Params{UserInput: "please echo"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "recovered", text)
	require.Equal(t, 1, turn.Stats().ToolCalls, "a schema-invalid call is still dispatched and counted")
}

func TestAgentStopShortCircuitsRemainingToolCalls(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Type: "function", Function: models.ToolCallFunc{Name: "agent_stop", Arguments: `{"result":"final answer"}`}},
				{ID: "call_2", Type: "function", Function: models.ToolCallFunc{Name: "echo", Arguments: `{"text":"never"}`}},
			},
		}},
	}, echoTool())

	turn := h.begin(t, Params{UserInput: "stop please"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "final answer", text)
	require.Equal(t, 0, turn.Stats().ToolCalls, "agent_stop must pre-empt the echo call that follows it")
}

func TestFallbackRetriesAfterAdapterError(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{err: providers.NewAdapterError("fake", "test-model", fmt.Errorf("connection reset"))},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "recovered via fallback"}},
	})

	var sawFallback bool
	h.engine.Hooks.On(hooks.KindFallback, func(_ context.Context, ev hooks.Event, _ []any) error {
		sawFallback = true
		fc := ev.(*hooks.FallbackContext)
		require.Equal(t, 0, fc.Term)
		return nil
	}, "retry-on-network-error")

	turn := h.begin(t, Params{UserInput: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.True(t, sawFallback)
	require.Equal(t, "recovered via fallback", text)
}

func TestFallbackFailStopsTheTurn(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{err: providers.NewAdapterError("fake", "test-model", fmt.Errorf("401 unauthorized"))},
	})

	h.engine.Hooks.On(hooks.KindFallback, func(_ context.Context, ev hooks.Event, _ []any) error {
		ev.(*hooks.FallbackContext).Fail("bad credentials, do not retry")
		return nil
	}, "abort-on-auth-error")

	turn := h.begin(t, Params{UserInput: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := turn.FullResponse(ctx)
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, KindFallbackFailed, engErr.Kind)
}

func TestRAGModeExposesToolsForOneIterationOnly(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID: "call_1", Type: "function",
				Function: models.ToolCallFunc{Name: "echo", Arguments: `{"text":"payload"}`},
			}},
		}},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "done"}},
	}, echoTool())

	cfg := models.DefaultAmritaConfig()
	cfg.Function.ToolCallingMode = models.ToolCallingRAG

	turn := h.begin(t, Params{UserInput: "hello", Config: &cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "done", text)

	require.Len(t, h.adapter.sawTools, 2)
	require.NotEmpty(t, h.adapter.sawTools[0], "first RAG iteration must expose tools")
	require.Empty(t, h.adapter.sawTools[1], "RAG tools must be exhausted after one tool-call round")
}

func TestMemoryCompressionFiresWhenSessionIsLong(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "short reply"}},
	})

	cfg := models.DefaultAmritaConfig()
	cfg.LLM.MemoryLengthLimit = 2
	cfg.LLM.EnableMemoryAbstract = true
	cfg.LLM.MemoryAbstractProportion = 1.0

	sessionID := h.engine.Sessions.New(&cfg)
	d, err := h.engine.Sessions.Get(sessionID)
	require.NoError(t, err)
	d.Lock()
	d.Memory.Append(models.NewTextMessage(models.RoleUser, "first"))
	d.Memory.Append(models.NewTextMessage(models.RoleAssistant, "first reply"))
	d.Unlock()

	turn := h.begin(t, Params{SessionID: sessionID, UserInput: "second message", Config: &cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = turn.FullResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, turn.Stats().CompressionTriggers)

	d, err = h.engine.Sessions.Get(sessionID)
	require.NoError(t, err)
	require.Equal(t, "a compact summary", d.Memory.Abstract)
}

func TestMinimalContextSendsLastUserMessageOnEveryIteration(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID: "call_1", Type: "function",
				Function: models.ToolCallFunc{Name: "echo", Arguments: `{"text":"payload"}`},
			}},
		}},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "done"}},
	}, echoTool())

	cfg := models.DefaultAmritaConfig()
	cfg.Function.UseMinimalContext = true

	turn := h.begin(t, Params{UserInput: "please echo", Config: &cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := turn.FullResponse(ctx)
	require.NoError(t, err)

	require.Len(t, h.adapter.sawMessages, 2)
	for i, req := range h.adapter.sawMessages {
		var userTexts []string
		for _, m := range req {
			if m.Role == models.RoleUser {
				userTexts = append(userTexts, m.Text())
			}
		}
		require.Equal(t, []string{"please echo"}, userTexts, "iteration %d", i)
	}
	// The second iteration's newest memory entries are the assistant
	// tool call and its result; neither may stand in for the user message.
	for _, m := range h.adapter.sawMessages[1] {
		require.NotEqual(t, models.RoleTool, m.Role)
	}
}

func TestAutoRetryDisabledSurfacesErrorWithoutRetry(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{err: providers.NewAdapterError("fake", "test-model", fmt.Errorf("connection reset"))},
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "never reached"}},
	})

	cfg := models.DefaultAmritaConfig()
	cfg.LLM.AutoRetry = false

	sawFallback := false
	h.engine.Hooks.On(hooks.KindFallback, func(_ context.Context, _ hooks.Event, _ []any) error {
		sawFallback = true
		return nil
	}, "observe")

	turn := h.begin(t, Params{UserInput: "hello", Config: &cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := turn.FullResponse(ctx)
	require.Error(t, err)
	require.True(t, sawFallback, "fallback handlers still observe the failure")
	require.Equal(t, 1, h.adapter.calls, "auto_retry=false must not re-call the adapter")
}

func TestCancellationFailsTheTurnWithLoopError(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "too late"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turn, err := NewTurn(context.Background(), h.engine, Params{
		AutoCreateSession: true,
		UserInput:         "hello",
		Preset:            &h.preset,
	})
	require.NoError(t, err)
	require.NoError(t, turn.Begin(ctx))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	err = turn.Wait(waitCtx)
	require.Error(t, err)
	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
}

func TestResponseGeneratorIsOneShot(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{final: models.UniResponse{Role: models.RoleAssistant, Content: "hi"}},
	})
	turn := h.begin(t, Params{UserInput: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := turn.ResponseGenerator(ctx)
	require.NoError(t, err)

	_, err = turn.ResponseGenerator(ctx)
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestCallbackModeDeliversChunksSerially(t *testing.T) {
	h := newTestHarness(t, []scriptedStep{
		{text: "a", final: models.UniResponse{Role: models.RoleAssistant, Content: "a"}},
	})

	var mu sync.Mutex
	var received []string
	turn := h.begin(t, Params{
		UserInput: "hello",
		Callback: func(chunk string) error {
			mu.Lock()
			received = append(received, chunk)
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, turn.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a"}, received)
}
