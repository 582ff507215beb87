package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadEngines merges an engines YAML file over the built-in command
// templates. Sections absent from the file keep their defaults.
func LoadEngines(path string) (Engines, error) {
	engines := DefaultEngines()
	if path == "" {
		return engines, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Engines{}, fmt.Errorf("read engines config %q: %w", path, err)
	}

	var overlay Engines
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Engines{}, fmt.Errorf("parse engines config %q: %w", path, err)
	}

	if len(overlay.ASR.Command) > 0 {
		engines.ASR = overlay.ASR
	}
	if len(overlay.Senko.Command) > 0 {
		engines.Senko = overlay.Senko
	}
	if len(overlay.Sortformer.Command) > 0 {
		engines.Sortformer = overlay.Sortformer
	}
	return engines, nil
}
