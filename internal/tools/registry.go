// Package tools implements the schema-validated tool registry and
// dispatcher (C5): global and per-session tool layers, enable_if
// filtering, tool_calling_mode semantics, and two invocation modes.
package tools

import (
	"context"
	"sync"

	"github.com/amrita-ai/amritacore/internal/hooks"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// InvokeFunc is the default invocation mode: parsed arguments in, a string
// result out.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

// ToolContext is what a custom-run tool receives instead of parsed
// arguments: the parsed args, a handle back to the turn (to stream side
// responses), and the name of the tool being invoked.
type ToolContext struct {
	Data     map[string]any
	Event    hooks.TurnHandle
	ToolName string
}

// CustomInvokeFunc is the custom-context invocation mode. A false second
// return means "no tool-result message should be appended".
type CustomInvokeFunc func(ctx context.Context, tc ToolContext) (result string, hasResult bool, err error)

// Tool is a single registered tool: its schema, its invocation, and an
// optional gate.
type Tool struct {
	Schema       models.FunctionDefinitionSchema
	Invoke       InvokeFunc
	CustomRun    bool
	CustomInvoke CustomInvokeFunc
	EnableIf     func() bool

	compiled *compiledSchema
}

func (t Tool) Name() string { return t.Schema.Name }

// enabled evaluates the tool's gate, if any.
func (t Tool) enabled() bool {
	if t.EnableIf == nil {
		return true
	}
	return t.EnableIf()
}

// layer is one registration scope (global, or a single session).
type layer struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func newLayer() *layer {
	return &layer{tools: make(map[string]Tool)}
}

func (l *layer) register(t Tool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tools == nil {
		l.tools = make(map[string]Tool)
	}
	l.tools[t.Name()] = t
}

func (l *layer) unregister(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tools, name)
}

func (l *layer) snapshot() []Tool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Tool, 0, len(l.tools))
	for _, t := range l.tools {
		out = append(out, t)
	}
	return out
}

func (l *layer) get(name string) (Tool, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tools[name]
	return t, ok
}

// MultiToolsManager is the layered tool registry: one global layer plus one
// layer per session. ListActive unions them, applies enable_if, and
// applies tool_calling_mode.
type MultiToolsManager struct {
	global *layer

	mu       sync.RWMutex
	sessions map[string]*layer
}

// NewMultiToolsManager returns an empty manager.
func NewMultiToolsManager() *MultiToolsManager {
	return &MultiToolsManager{
		global:   newLayer(),
		sessions: make(map[string]*layer),
	}
}

// RegisterGlobal adds a tool visible to every session.
func (m *MultiToolsManager) RegisterGlobal(t Tool) {
	compileSchema(&t)
	m.global.register(t)
}

// RegisterSession adds a tool visible only to sessionID, shadowing a global
// tool of the same name for that session.
func (m *MultiToolsManager) RegisterSession(sessionID string, t Tool) {
	compileSchema(&t)
	m.sessionLayer(sessionID).register(t)
}

// UnregisterSession removes a session-scoped tool.
func (m *MultiToolsManager) UnregisterSession(sessionID, name string) {
	m.mu.RLock()
	l, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		l.unregister(name)
	}
}

// DropSession releases a session's tool layer entirely.
func (m *MultiToolsManager) DropSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *MultiToolsManager) sessionLayer(sessionID string) *layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sessions[sessionID]
	if !ok {
		l = newLayer()
		m.sessions[sessionID] = l
	}
	return l
}

// Get resolves a tool by name, preferring the session layer over global.
func (m *MultiToolsManager) Get(sessionID, name string) (Tool, bool) {
	m.mu.RLock()
	l, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		if t, found := l.get(name); found {
			return t, true
		}
	}
	return m.global.get(name)
}

// ListActive unions global and session tools, filters by each tool's
// enable_if, and applies tool_calling_mode (§4.5):
//   - none: empty
//   - agent: all enabled tools
//   - rag: all enabled tools (the one-invocation-per-turn cap is enforced
//     by the caller, since it is a per-turn concern, not a registry one)
func (m *MultiToolsManager) ListActive(sessionID string, mode models.ToolCallingMode) []Tool {
	if mode == models.ToolCallingNone {
		return nil
	}

	m.mu.RLock()
	l, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	byName := make(map[string]Tool)
	for _, t := range m.global.snapshot() {
		byName[t.Name()] = t
	}
	if ok {
		for _, t := range l.snapshot() {
			byName[t.Name()] = t // session shadows global
		}
	}

	out := make([]Tool, 0, len(byName))
	for _, t := range byName {
		if t.enabled() {
			out = append(out, t)
		}
	}
	return out
}

// AsSchemas extracts the FunctionDefinitionSchema of each tool, the form a
// model-adapter's CallAPI expects.
func AsSchemas(ts []Tool) []models.FunctionDefinitionSchema {
	out := make([]models.FunctionDefinitionSchema, len(ts))
	for i, t := range ts {
		out[i] = t.Schema
	}
	return out
}
