// Package config implements the process-wide configuration registry (C2):
// a single "current config" with an explicit init lifecycle, plus
// per-session overrides that shadow it.
package config

import (
	"errors"
	"sync"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// ErrNotInitialized is returned by Get when Set has never been called.
var ErrNotInitialized = errors.New("config: not initialized")

// Registry is the process-wide configuration holder. The zero value is not
// ready for use; construct one with NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	current   models.AmritaConfig
	ready     bool
	overrides map[string]models.AmritaConfig // session_id -> override
}

// NewRegistry returns an uninitialized registry (state: before "initialized").
func NewRegistry() *Registry {
	return &Registry{overrides: make(map[string]models.AmritaConfig)}
}

// Set installs the process-wide config, transitioning the registry to
// "ready". Calling Set again replaces the current config.
func (r *Registry) Set(cfg models.AmritaConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = cfg
	r.ready = true
}

// Get returns the process-wide config, or ErrNotInitialized if Set has
// never been called.
func (r *Registry) Get() (models.AmritaConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return models.AmritaConfig{}, ErrNotInitialized
	}
	return r.current, nil
}

// SetOverride installs a per-session override that shadows the global
// config for that session only.
func (r *Registry) SetOverride(sessionID string, cfg models.AmritaConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[sessionID] = cfg
}

// ClearOverride removes a session's override, if any.
func (r *Registry) ClearOverride(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, sessionID)
}

// Lookup returns the override for sessionID if one exists, else the global
// config. An empty sessionID always resolves to the global config.
func (r *Registry) Lookup(sessionID string) (models.AmritaConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessionID != "" {
		if cfg, ok := r.overrides[sessionID]; ok {
			return cfg, nil
		}
	}
	if !r.ready {
		return models.AmritaConfig{}, ErrNotInitialized
	}
	return r.current, nil
}
