package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = ".unfold.yaml"

// Settings holds the options a config file may set. Nil and empty fields
// leave the value to a lower layer.
type Settings struct {
	Floor            *int     `yaml:"floor,omitempty"`
	CollapseSelfDir  *bool    `yaml:"collapse_self_dir,omitempty"`
	KeepLib          *bool    `yaml:"keep_lib,omitempty"`
	RespectGitignore *bool    `yaml:"respect_gitignore,omitempty"`
	Lib              string   `yaml:"lib,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty"`
	LogFormat        string   `yaml:"log_format,omitempty"`
}

type configFile struct {
	Settings `yaml:",inline"`
	Profiles map[string]Settings `yaml:"profiles"`
}

// merge returns s with every field set in overlay replacing it. Exclude
// patterns accumulate.
func (s Settings) merge(overlay Settings) Settings {
	if overlay.Floor != nil {
		s.Floor = overlay.Floor
	}
	if overlay.CollapseSelfDir != nil {
		s.CollapseSelfDir = overlay.CollapseSelfDir
	}
	if overlay.KeepLib != nil {
		s.KeepLib = overlay.KeepLib
	}
	if overlay.RespectGitignore != nil {
		s.RespectGitignore = overlay.RespectGitignore
	}
	if overlay.Lib != "" {
		s.Lib = overlay.Lib
	}
	if overlay.LogFormat != "" {
		s.LogFormat = overlay.LogFormat
	}
	s.Exclude = append(append([]string{}, s.Exclude...), overlay.Exclude...)
	return s
}

// decodeConfig unmarshals the yaml file at path into v. Read errors are
// returned as is so callers can test for a missing file.
func decodeConfig(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func parseConfigFile(path string) (*configFile, error) {
	var cfg configFile
	if err := decodeConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readConfigFile returns the settings of path with the selected profile
// applied on top. When profile is not defined the "default" profile is used
// if present. found reports whether profile itself was defined.
func readConfigFile(path string, profile string) (s Settings, found bool, err error) {
	cfg, err := parseConfigFile(path)
	if err != nil {
		return Settings{}, false, err
	}

	s = cfg.Settings
	if len(cfg.Profiles) > 0 {
		if prof, ok := cfg.Profiles[profile]; ok {
			s = s.merge(prof)
			found = true
		} else if prof, ok := cfg.Profiles["default"]; ok {
			s = s.merge(prof)
		}
	}
	return s, found, nil
}

// loadSettings layers the home config below the config file in root.
// Missing files are skipped. A profile other than "default" must exist in
// one of them.
func loadSettings(root string, profile string) (Settings, error) {
	var s Settings
	found := profile == "" || profile == "default"

	paths := []string{filepath.Join(root, configFileName)}
	if home, err := defaultConfigPath(); err == nil {
		paths = append([]string{home}, paths...)
	}

	for _, path := range paths {
		layer, ok, err := readConfigFile(path, profile)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Settings{}, err
		}
		s = s.merge(layer)
		found = found || ok
	}

	if !found {
		return Settings{}, fmt.Errorf("profile %q not found in %s", profile, configFileName)
	}
	if s.Floor != nil && *s.Floor < 0 {
		return Settings{}, fmt.Errorf("invalid floor %d in %s: must not be negative", *s.Floor, configFileName)
	}
	return s, nil
}
