package amritacore

import (
	"context"
	"sync"

	"github.com/amrita-ai/amritacore/pkg/models"
)

var (
	defaultOnce    sync.Once
	defaultRuntime *Runtime
)

// Default returns the process-wide Runtime, constructed lazily on first
// use. Tests and multi-tenant hosts should prefer isolated NewRuntime
// instances.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRuntime = NewRuntime(nil, nil)
	})
	return defaultRuntime
}

// Init prepares the default runtime's built-in tools and token-count oracle.
// Idempotent (R2).
func Init() { Default().Init() }

// LoadAmrita finishes the default runtime's config-dependent setup; must
// follow SetConfig.
func LoadAmrita(ctx context.Context) error { return Default().LoadAmrita(ctx) }

// SetConfig installs the process-wide configuration on the default runtime.
func SetConfig(cfg models.AmritaConfig) { Default().SetConfig(cfg) }

// GetConfig reads the default runtime's process-wide configuration.
func GetConfig() (models.AmritaConfig, error) { return Default().GetConfig() }

// ChatTurn constructs a turn against the default runtime.
func ChatTurn(ctx context.Context, p Params) (*Turn, error) { return Default().ChatTurn(ctx, p) }
