package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/tilt/internal/modules/optimization"
)

// LoadSettings reads the calculation settings file and builds validated
// CalculationSettings. The file is YAML; JSON is valid YAML, so a JSON
// settings file works unchanged.
func LoadSettings(path string) (optimization.CalculationSettings, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return optimization.CalculationSettings{}, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return optimization.CalculationSettings{}, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	settings, err := optimization.ParseSettings(raw)
	if err != nil {
		return optimization.CalculationSettings{}, fmt.Errorf("settings file %s: %w", path, err)
	}

	return settings, nil
}
