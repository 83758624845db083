package providers

import (
	"fmt"
	"sync"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// ErrUnknownProtocol is returned by ResolveAdapter when no constructor is
// bound to the preset's protocol tag.
var ErrUnknownProtocol = fmt.Errorf("providers: unknown protocol")

// ProtocolRegistry maps a protocol tag (e.g. "openai", "anthropic",
// "bedrock") to the Constructor that builds an Adapter for it.
type ProtocolRegistry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewProtocolRegistry returns an empty registry.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{ctors: make(map[string]Constructor)}
}

// Register binds tag to ctor. override must be true to replace an existing
// binding; otherwise Register is a no-op when tag is already bound.
func (r *ProtocolRegistry) Register(tag string, ctor Constructor, override bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[tag]; exists && !override {
		return
	}
	r.ctors[tag] = ctor
}

// ResolveAdapter looks up the constructor bound to preset.Protocol and
// builds an Adapter from it.
func (r *ProtocolRegistry) ResolveAdapter(preset models.ModelPreset) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[preset.Protocol]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, preset.Protocol)
	}
	return ctor(preset)
}

// NewDefaultRegistry returns a registry pre-populated with the
// OpenAI-compatible, Anthropic, and Bedrock adapters under their canonical
// protocol tags.
func NewDefaultRegistry() *ProtocolRegistry {
	r := NewProtocolRegistry()
	r.Register("openai", func(preset models.ModelPreset) (Adapter, error) {
		return NewOpenAIAdapter(preset), nil
	}, true)
	r.Register("anthropic", func(preset models.ModelPreset) (Adapter, error) {
		return NewAnthropicAdapter(preset), nil
	}, true)
	r.Register("bedrock", func(preset models.ModelPreset) (Adapter, error) {
		return NewBedrockAdapter(preset)
	}, true)
	return r
}
