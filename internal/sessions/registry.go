// Package sessions implements the per-session resource registry (C8): an
// isolated container for memory, tools, presets, and configuration,
// keyed by a random opaque session ID, with explicit Init/Drop lifecycle.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/amrita-ai/amritacore/internal/presets"
	"github.com/amrita-ai/amritacore/internal/tools"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("sessions: not found")

// MCPClient is the interface-level surface this registry depends on for
// per-session MCP server processes (§1 "MCP client wire protocol
// (interface-level only)"); only lifecycle is modeled here.
type MCPClient interface {
	Close(ctx context.Context) error
}

// MCPClientFactory materializes the MCP clients named by
// FunctionConfig.AgentMCPServerScripts. Registry.Init calls this the first
// time it runs for a session, and again on the next Init after a failed call.
type MCPClientFactory func(ctx context.Context, scripts []string) ([]MCPClient, error)

// Data is the per-session container: memory, tools, presets, config
// override, and any materialized MCP clients. Fields are independently
// mutable by authorized callers (the Engine, hooks, tools); the isolation
// invariant (I3) is enforced by the Registry never handing out the same
// *Data to two different session IDs and by callers never aliasing one
// session's Memory into another's.
type Data struct {
	SessionID string

	mu         sync.Mutex
	Memory     models.MemoryModel
	Tools      *tools.MultiToolsManager
	Presets    *presets.Registry
	Config     *models.AmritaConfig
	mcpClients []MCPClient
	initDone   bool
}

// Lock/Unlock serialize direct mutation of a Data's fields across
// concurrent turns on the same session (§5 "Per-turn MemoryModel...not
// shared" assumes single-writer, but Get() may be called from more than
// one goroutine racing to start a turn).
func (d *Data) Lock()   { d.mu.Lock() }
func (d *Data) Unlock() { d.mu.Unlock() }

// Registry is the process-wide session container. A default instance is
// available via Default(), but tests and multi-tenant hosts may construct
// isolated instances with New().
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Data
	tools    *tools.MultiToolsManager // global tool layer shared by every session
	mcp      MCPClientFactory
	logger   *slog.Logger
}

// New returns an empty session registry. globalTools is the shared global
// tool layer every session's MultiToolsManager view is built against; pass
// nil to have New create one.
func New(globalTools *tools.MultiToolsManager, mcp MCPClientFactory, logger *slog.Logger) *Registry {
	if globalTools == nil {
		globalTools = tools.NewMultiToolsManager()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Data),
		tools:    globalTools,
		mcp:      mcp,
		logger:   logger.With("component", "sessions"),
	}
}

// SetMCPFactory installs (or replaces) the factory Init uses to
// materialize per-session MCP clients. Sessions already initialized keep
// whatever clients they have; only future Init calls see the new factory.
func (r *Registry) SetMCPFactory(f MCPClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp = f
}

var defaultOnce sync.Once
var defaultRegistry *Registry

// Default returns the process-wide default registry (§6 "Sessions.New"
// etc. against a singleton), constructed lazily on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New(nil, nil, nil)
	})
	return defaultRegistry
}

// New creates a session and returns its ID. cfg, if non-nil, becomes the
// session's configuration override (shadowing the global config, §4.2).
func (r *Registry) New(cfg *models.AmritaConfig) string {
	id := uuid.New().String()
	d := &Data{
		SessionID: id,
		Memory:    models.NewMemoryModel(0),
		Tools:     r.tools,
		Presets:   presets.NewRegistry(),
		Config:    cfg,
	}
	r.mu.Lock()
	r.sessions[id] = d
	r.mu.Unlock()
	return id
}

// Init materializes a session's MCP clients (if FunctionConfig enables
// them); it imports no per-session tools. Idempotent: after a successful
// call a second call is a no-op (R2-equivalent for sessions).
func (r *Registry) Init(ctx context.Context, sessionID string) error {
	d, err := r.Get(sessionID)
	if err != nil {
		return err
	}

	d.Lock()
	defer d.Unlock()
	if d.initDone {
		return nil
	}
	d.initDone = true

	r.mu.RLock()
	factory := r.mcp
	r.mu.RUnlock()

	if d.Config == nil || !d.Config.Function.AgentMCPClientEnable || factory == nil {
		return nil
	}
	clients, err := factory(ctx, d.Config.Function.AgentMCPServerScripts)
	if err != nil {
		d.initDone = false
		return fmt.Errorf("sessions: init MCP clients for %s: %w", sessionID, err)
	}
	d.mcpClients = clients
	return nil
}

// EnsureWithID returns the session keyed by sessionID, creating it in
// place (rather than allocating a fresh random ID, as New does) if it does
// not already exist. This backs ChatTurn's auto_create_session=true path
// (§4.9 "Construction"), where the caller supplies the ID up front.
func (r *Registry) EnsureWithID(sessionID string, cfg *models.AmritaConfig) *Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.sessions[sessionID]; ok {
		return d
	}
	d := &Data{
		SessionID: sessionID,
		Memory:    models.NewMemoryModel(0),
		Tools:     r.tools,
		Presets:   presets.NewRegistry(),
		Config:    cfg,
	}
	r.sessions[sessionID] = d
	return d
}

// Get returns the session's data, or ErrNotFound.
func (r *Registry) Get(sessionID string) (*Data, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
	return d, nil
}

// Drop tears down a session's MCP clients and removes it. Idempotent
// (R3): dropping an unknown ID is not an error.
func (r *Registry) Drop(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	d, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.tools.DropSession(sessionID)

	d.Lock()
	clients := d.mcpClients
	d.mcpClients = nil
	d.Unlock()

	var joined error
	for _, c := range clients {
		if err := c.Close(ctx); err != nil {
			r.logger.Warn("error closing MCP client on session drop", "session", sessionID, "error", err)
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// List returns every live session ID. Order is unspecified.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
