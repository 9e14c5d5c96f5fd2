package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a configuration bag from a YAML or JSON file.
// A missing file yields an empty bag.
func LoadFile(path string) (map[string]any, error) {
	bag := map[string]any{}
	if path == "" {
		return bag, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bag, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		if err := json.Unmarshal(data, &bag); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &bag); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}
	if bag == nil {
		bag = map[string]any{}
	}
	return bag, nil
}

// ParseSet parses "key=value" overrides. Values are kept as strings.
func ParseSet(pairs []string) (map[string]any, error) {
	bag := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", p)
		}
		bag[key] = value
	}
	return bag, nil
}
