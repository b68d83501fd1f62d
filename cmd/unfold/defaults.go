package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/logx"
)

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// validateDefaults checks values and rewrites them into their stored form.
func validateDefaults(values map[string]any) error {
	if f, ok := values["log_format"].(string); ok {
		normalized, err := logx.ParseFormat(f)
		if err != nil {
			return err
		}
		values["log_format"] = normalized
	}
	if n, ok := values["floor"].(int); ok && n < 0 {
		return fmt.Errorf("invalid floor %d: must not be negative", n)
	}
	return nil
}

// writeDefaultsToFile stores values as top-level keys of the config file at
// path, keeping every other key and profile already there.
func writeDefaultsToFile(path string, values map[string]any) error {
	if err := validateDefaults(values); err != nil {
		return err
	}

	doc := make(map[string]any)
	if err := decodeConfig(path, &doc); err != nil && !os.IsNotExist(err) {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	for k, v := range values {
		doc[k] = v
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := fsys.NewReal().WriteFileAtomic(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeHomeDefaults(values map[string]any) (string, error) {
	path, err := defaultConfigPath()
	if err != nil {
		return "", err
	}
	return path, writeDefaultsToFile(path, values)
}
