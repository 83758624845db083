// Package presets implements the named-model-preset registry (C3): a
// keyed map of ModelPreset plus a nullable default name, with JSON
// load/save for a single preset file.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// ErrNotFound is returned when a named preset does not exist.
var ErrNotFound = errors.New("presets: not found")

// ErrNoDefault is returned by Default when no default preset is set.
var ErrNoDefault = errors.New("presets: no default preset configured")

// Registry is a thread-safe named-preset store.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]models.ModelPreset
	defaultName string
}

// NewRegistry returns an empty preset registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]models.ModelPreset)}
}

// Add registers a preset, replacing any existing preset of the same name.
func (r *Registry) Add(p models.ModelPreset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name] = p
}

// Remove deletes a preset by name. If it was the default, the default is
// cleared.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
	if r.defaultName == name {
		r.defaultName = ""
	}
}

// Get returns the named preset.
func (r *Registry) Get(name string) (models.ModelPreset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return models.ModelPreset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Default returns the preset marked as default.
func (r *Registry) Default() (models.ModelPreset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName == "" {
		return models.ModelPreset{}, ErrNoDefault
	}
	p, ok := r.byName[r.defaultName]
	if !ok {
		return models.ModelPreset{}, ErrNoDefault
	}
	return p, nil
}

// SetDefault marks an existing preset as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.defaultName = name
	return nil
}

// Names returns all registered preset names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// Load reads a single preset from a JSON file.
func Load(path string) (models.ModelPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ModelPreset{}, fmt.Errorf("presets: load %s: %w", path, err)
	}
	var p models.ModelPreset
	if err := json.Unmarshal(data, &p); err != nil {
		return models.ModelPreset{}, fmt.Errorf("presets: decode %s: %w", path, err)
	}
	return p, nil
}

// Save writes a single preset to a JSON file.
func Save(path string, p models.ModelPreset) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("presets: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("presets: save %s: %w", path, err)
	}
	return nil
}
