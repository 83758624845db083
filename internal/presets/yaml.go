package presets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// LoadYAML reads a single preset from a YAML file. The document uses the
// same field names as the JSON format (it is converted through
// PresetFromMap/ToMap), so a preset saved with SaveYAML loads back
// unchanged. Load does not read YAML files.
func LoadYAML(path string) (models.ModelPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ModelPreset{}, fmt.Errorf("presets: load %s: %w", path, err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return models.ModelPreset{}, fmt.Errorf("presets: decode %s: %w", path, err)
	}
	p, err := models.PresetFromMap(m)
	if err != nil {
		return models.ModelPreset{}, fmt.Errorf("presets: decode %s: %w", path, err)
	}
	return p, nil
}

// SaveYAML writes a single preset to a YAML file.
func SaveYAML(path string, p models.ModelPreset) error {
	m, err := p.ToMap()
	if err != nil {
		return fmt.Errorf("presets: encode %s: %w", path, err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("presets: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("presets: save %s: %w", path, err)
	}
	return nil
}
