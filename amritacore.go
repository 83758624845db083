// Package amritacore is the public surface of the Amrita agent runtime: a
// Runtime bundling the config, preset, hook, tool, session, and provider
// registries around the chat turn engine, plus package-level helpers
// against a process-wide default Runtime.
//
// Typical embedding:
//
//	amritacore.Init()
//	amritacore.SetConfig(models.DefaultAmritaConfig())
//	rt := amritacore.Default()
//	rt.Presets.Add(preset)
//	_ = rt.Presets.SetDefault(preset.Name)
//
//	turn, err := rt.ChatTurn(ctx, amritacore.Params{
//	    UserInput:         "hello",
//	    AutoCreateSession: true,
//	})
//	_ = turn.Begin(ctx)
//	text, err := turn.FullResponse(ctx)
package amritacore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amrita-ai/amritacore/internal/config"
	"github.com/amrita-ai/amritacore/internal/engine"
	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/memory"
	"github.com/amrita-ai/amritacore/internal/presets"
	"github.com/amrita-ai/amritacore/internal/providers"
	"github.com/amrita-ai/amritacore/internal/sessions"
	"github.com/amrita-ai/amritacore/internal/tools"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// Re-exported engine types, so embedders need only this package for the
// common path.
type (
	Params    = engine.Params
	Turn      = engine.Turn
	TurnStats = engine.TurnStats

	Tool        = tools.Tool
	ToolContext = tools.ToolContext

	ParamBinding = hooks.ParamBinding
	Factory      = hooks.Factory

	PreCompletionEvent = hooks.PreCompletionEvent
	CompletionEvent    = hooks.CompletionEvent
	FallbackContext    = hooks.FallbackContext
	CustomEvent        = hooks.CustomEvent
)

// Dependency-injection declaration helpers (§"Depends(fn)" and friends),
// re-exported from the hooks package.
var (
	Depends    = hooks.Depends
	Kwarg      = hooks.Kwarg
	ArgByType  = hooks.ArgByType
	NewFactory = hooks.NewFactory
)

// SimpleTool derives a tool schema from a function's parameters and
// docstring; see tools.SimpleTool.
var SimpleTool = tools.SimpleTool

// TokenCounter is the token-count oracle the runtime consults for budget
// decisions. The tokenizer itself is an external collaborator; Init installs
// an approximate default when none was provided.
type TokenCounter interface {
	Count(text string) int
}

// approxTokenCounter estimates four bytes per token, the conventional
// rough cut for latin-script chat text.
type approxTokenCounter struct{}

func (approxTokenCounter) Count(text string) int { return (len(text) + 3) / 4 }

// Runtime bundles every registry the engine needs. Construct with
// NewRuntime, or use the process-wide Default instance.
type Runtime struct {
	Config    *config.Registry
	Presets   *presets.Registry
	Hooks     *hooks.Registry
	Tools     *tools.MultiToolsManager
	Sessions  *sessions.Registry
	Providers *providers.ProtocolRegistry
	Metrics   *engine.Metrics
	Engine    *engine.Engine

	logger   *slog.Logger
	initOnce sync.Once

	mu     sync.Mutex
	tokens TokenCounter
	mcp    sessions.MCPClientFactory
	loaded bool
}

// NewRuntime builds an isolated Runtime. logger may be nil (slog.Default is
// used); promReg may be nil to disable metrics registration.
func NewRuntime(logger *slog.Logger, promReg prometheus.Registerer) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}

	toolsMgr := tools.NewMultiToolsManager()
	sessReg := sessions.New(toolsMgr, nil, logger)
	hookReg := hooks.NewRegistry(logger)
	protoReg := providers.NewDefaultRegistry()

	var metrics *engine.Metrics
	if promReg != nil {
		metrics = engine.NewMetrics(promReg)
	}

	rt := &Runtime{
		Config:    config.NewRegistry(),
		Presets:   presets.NewRegistry(),
		Hooks:     hookReg,
		Tools:     toolsMgr,
		Sessions:  sessReg,
		Providers: protoReg,
		Metrics:   metrics,
		logger:    logger.With("component", "runtime"),
	}

	compressor := memory.NewCompressor(memory.AdapterSummarizer{Call: rt.summarize}, logger)
	rt.Engine = engine.New(sessReg, hookReg, protoReg, compressor, metrics, logger)
	return rt
}

// Init prepares built-in tools and the token-count oracle. Idempotent: a
// second call is a no-op (R2).
func (r *Runtime) Init() {
	r.initOnce.Do(func() {
		tools.RegisterBuiltins(r.Tools)
		r.mu.Lock()
		if r.tokens == nil {
			r.tokens = approxTokenCounter{}
		}
		r.mu.Unlock()
	})
}

// LoadAmrita finishes runtime setup that depends on configuration: it binds
// the MCP client factory the session registry materializes clients from.
// SetConfig must have been called first. Idempotent.
func (r *Runtime) LoadAmrita(ctx context.Context) error {
	cfg, err := r.Config.Get()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	if cfg.Function.AgentMCPClientEnable && r.mcp != nil {
		r.Sessions.SetMCPFactory(r.mcp)
	}
	r.loaded = true
	return nil
}

// SetMCPConnector installs the factory LoadAmrita hands to the session
// registry. The MCP wire protocol itself lives outside this module; the
// connector is its interface-level seam.
func (r *Runtime) SetMCPConnector(f sessions.MCPClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp = f
}

// SetConfig installs the process-wide configuration.
func (r *Runtime) SetConfig(cfg models.AmritaConfig) { r.Config.Set(cfg) }

// GetConfig returns the process-wide configuration, or NotInitialized.
func (r *Runtime) GetConfig() (models.AmritaConfig, error) { return r.Config.Get() }

// SetTokenCounter replaces the token-count oracle.
func (r *Runtime) SetTokenCounter(tc TokenCounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = tc
}

// CountTokens consults the token-count oracle. Before Init it falls back to
// the approximate default.
func (r *Runtime) CountTokens(text string) int {
	r.mu.Lock()
	tc := r.tokens
	r.mu.Unlock()
	if tc == nil {
		tc = approxTokenCounter{}
	}
	return tc.Count(text)
}

// ChatTurn constructs a turn against this runtime. When p leaves Config or
// Preset unset, the session-or-global config and the default preset are
// filled in.
func (r *Runtime) ChatTurn(ctx context.Context, p Params) (*Turn, error) {
	r.Init()
	if p.Config == nil {
		if cfg, err := r.Config.Lookup(p.SessionID); err == nil {
			p.Config = &cfg
		}
	}
	if p.Preset == nil {
		if preset, err := r.Presets.Default(); err == nil {
			p.Preset = &preset
		}
	}
	return engine.NewTurn(ctx, r.Engine, p)
}

// summarize backs the memory compressor: one non-streaming completion
// against the current default preset's adapter.
func (r *Runtime) summarize(ctx context.Context, messages []models.Message) (string, error) {
	preset, err := r.Presets.Default()
	if err != nil {
		return "", err
	}
	preset.Config.Stream = false

	adapter, err := r.Providers.ResolveAdapter(preset)
	if err != nil {
		return "", err
	}
	ch, err := adapter.CallAPI(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	for chunk := range ch {
		if chunk.Final != nil {
			return chunk.Final.Content, nil
		}
	}
	return "", providers.NewAdapterError(preset.Protocol, preset.Model, errSummaryStreamEnded)
}

var errSummaryStreamEnded = errors.New("amritacore: summarizer stream ended without a terminal response")
