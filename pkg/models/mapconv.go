package models

import (
	"encoding/json"
	"fmt"
)

// ToMap renders a preset as a generic map keyed by its JSON field names,
// the form external interop layers (YAML preset files, plugin payloads)
// consume.
func (p ModelPreset) ToMap() (map[string]any, error) {
	return toMap(p)
}

// PresetFromMap is the inverse of ModelPreset.ToMap.
func PresetFromMap(m map[string]any) (ModelPreset, error) {
	var p ModelPreset
	if err := fromMap(m, &p); err != nil {
		return ModelPreset{}, fmt.Errorf("models: preset from map: %w", err)
	}
	return p, nil
}

// ToMap renders the config tree as a generic map keyed by its JSON field
// names.
func (c AmritaConfig) ToMap() (map[string]any, error) {
	return toMap(c)
}

// ConfigFromMap is the inverse of AmritaConfig.ToMap.
func ConfigFromMap(m map[string]any) (AmritaConfig, error) {
	var c AmritaConfig
	if err := fromMap(m, &c); err != nil {
		return AmritaConfig{}, fmt.Errorf("models: config from map: %w", err)
	}
	return c, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
