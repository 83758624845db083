// Package engine implements the Chat Turn Engine (C9): the per-turn state
// machine that drives reasoning -> tool-call -> completion, streams
// output with backpressure, and coordinates the hook pipeline and memory
// compression around a single user turn.
package engine

import (
	"log/slog"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/internal/memory"
	"github.com/amrita-ai/amritacore/internal/providers"
	"github.com/amrita-ai/amritacore/internal/sessions"
	"github.com/amrita-ai/amritacore/internal/tools"
)

// Engine is the process-wide set of collaborators a ChatTurn is built
// against: the session registry, the hook dispatcher, the provider
// registry, and the memory compressor. Turn construction (NewTurn) is cheap;
// Engine itself is meant to be constructed once at startup.
type Engine struct {
	Sessions   *sessions.Registry
	Hooks      *hooks.Registry
	Providers  *providers.ProtocolRegistry
	Compressor *memory.Compressor
	Metrics    *Metrics
	Logger     *slog.Logger
}

// New builds an Engine from its collaborators. A nil session registry,
// hook registry, provider registry, or logger is replaced with a usable
// empty/default value so a zero-configured Engine does not panic on first
// use; a nil compressor disables compression and nil metrics no-op.
func New(sess *sessions.Registry, hookReg *hooks.Registry, protoReg *providers.ProtocolRegistry, compressor *memory.Compressor, metrics *Metrics, logger *slog.Logger) *Engine {
	if sess == nil {
		sess = sessions.New(tools.NewMultiToolsManager(), nil, logger)
	}
	if hookReg == nil {
		hookReg = hooks.NewRegistry(logger)
	}
	if protoReg == nil {
		protoReg = providers.NewDefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Sessions:   sess,
		Hooks:      hookReg,
		Providers:  protoReg,
		Compressor: compressor,
		Metrics:    metrics,
		Logger:     logger.With("component", "engine"),
	}
}
