package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully merged and validated revmux configuration.
type Config struct {
	Models   []Model  `yaml:"models"`
	Defaults Defaults `yaml:"defaults"`
	Git      Git      `yaml:"git"`
	Paths    Paths    `yaml:"paths"`
}

// Model names an llm model plus the extra CLI options passed through to it.
type Model struct {
	Name    string   `yaml:"name"`
	Options []string `yaml:"options"`
}

// Defaults holds dispatcher-level execution settings.
type Defaults struct {
	Timeout int    `yaml:"timeout"` // seconds per model
	Retries int    `yaml:"retries"`
	Outdir  string `yaml:"outdir"`
}

// Git holds diff-generation settings.
type Git struct {
	ContextLines int    `yaml:"context_lines"`
	BaseBranch   string `yaml:"base_branch"`
	DiffScope    string `yaml:"diff_scope"`
}

// Paths holds file locations used by the pipeline.
type Paths struct {
	Template string `yaml:"template"`
}

// Accepted values for git.diff_scope.
const (
	ScopeAll       = "all"
	ScopeCommitted = "committed"
)

// DefaultTemplate is the template filename assumed when none is configured.
const DefaultTemplate = "review.template.yml"

// Error reports an invalid configuration value by field path.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultMap returns the built-in defaults as a fresh mapping. Each call
// returns an independent value, so callers can merge into it without
// affecting other runs.
func DefaultMap() map[string]any {
	return map[string]any{
		"models": []any{},
		"defaults": map[string]any{
			"timeout": 120,
			"retries": 1,
			"outdir":  "",
		},
		"git": map[string]any{
			"context_lines": 3,
			"base_branch":   "main",
			"diff_scope":    ScopeAll,
		},
		"paths": map[string]any{
			"template": DefaultTemplate,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for revmux.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "revmux"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "revmux"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "revmux"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "revmux"), nil
	default:
		return filepath.Join(home, ".config", "revmux"), nil
	}
}

// GlobalPath returns the full path to the global config file.
func GlobalPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LocalPath returns the path of the repo-local config file under dir.
func LocalPath(dir string) string {
	return filepath.Join(dir, ".revmux.yaml")
}

// Source controls where Load looks for configuration layers.
type Source struct {
	Dir        string         // directory holding the local config file, usually the repo root
	GlobalPath string         // global config file override; "" uses GlobalPath()
	Defaults   map[string]any // built-in defaults override; nil uses DefaultMap()
}

// Load builds the effective config by deep-merging, lowest precedence first:
// built-in defaults, global file, local file, overrides. Missing files are
// not errors; a present file that is invalid YAML or not a mapping is.
func Load(src Source, overrides map[string]any) (Config, error) {
	merged := src.Defaults
	if merged == nil {
		merged = DefaultMap()
	}

	globalPath := src.GlobalPath
	if globalPath == "" {
		var err error
		globalPath, err = GlobalPath()
		if err != nil {
			return Config{}, err
		}
	}

	for _, path := range []string{globalPath, LocalPath(src.Dir)} {
		layer, err := loadYAMLMap(path)
		if err != nil {
			return Config{}, err
		}
		if layer != nil {
			merged = DeepMerge(merged, layer)
		}
	}

	if len(overrides) > 0 {
		merged = DeepMerge(merged, overrides)
	}

	if err := Validate(merged); err != nil {
		return Config{}, err
	}
	return decode(merged)
}

// loadYAMLMap reads one config layer. A missing file returns (nil, nil).
func loadYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Reason: fmt.Sprintf("reading %s: %v", path, err), Err: err}
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err), Err: err}
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Reason: fmt.Sprintf("%s: top level must be a mapping", path)}
	}
	return m, nil
}

// DeepMerge merges override into base recursively. Only mapping values merge
// key-by-key; any other value, sequences included, replaces the base value
// wholesale. Neither argument is mutated.
func DeepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if bm, ok := result[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				result[k] = DeepMerge(bm, om)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func decode(m map[string]any) (Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return Config{}, &Error{Reason: fmt.Sprintf("encoding merged config: %v", err), Err: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &Error{Reason: fmt.Sprintf("decoding merged config: %v", err), Err: err}
	}
	return cfg, nil
}

// Select returns the model configs matching names, in the order requested.
// With no names, all configured models are returned. The result is never
// empty: a run with zero models is a configuration error, caught here before
// any dispatcher call happens.
func Select(cfg Config, names []string) ([]Model, error) {
	if len(names) == 0 {
		if len(cfg.Models) == 0 {
			return nil, &Error{Field: "models", Reason: "no models configured"}
		}
		return cfg.Models, nil
	}

	byName := make(map[string]Model, len(cfg.Models))
	available := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		byName[m.Name] = m
		available = append(available, m.Name)
	}
	sort.Strings(available)

	selected := make([]Model, 0, len(names))
	for _, name := range names {
		m, ok := byName[name]
		if !ok {
			return nil, &Error{
				Field:  "models",
				Reason: fmt.Sprintf("model %q not found; available: %s", name, strings.Join(available, ", ")),
			}
		}
		selected = append(selected, m)
	}
	return selected, nil
}

// starterConfig is what Init writes for a first-time setup.
const starterConfig = `# revmux configuration
models:
  - name: gpt-4.1
    options: ["-o", "temperature", "0.7"]
  - name: claude-opus-4.1
    options: ["-o", "temperature", "0.2"]

defaults:
  timeout: 120
  retries: 1
  # outdir: ~/reviews

git:
  context_lines: 3
  base_branch: main
  diff_scope: all

paths:
  template: review.template.yml
`

// Init writes the starter configuration to the global path. An existing file
// is left alone unless force is set.
func Init(force bool) (string, error) {
	path, err := GlobalPath()
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, &Error{Reason: fmt.Sprintf("config file already exists at %s (use --force to overwrite)", path)}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &Error{Reason: fmt.Sprintf("creating config directory: %v", err), Err: err}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return "", &Error{Reason: fmt.Sprintf("writing config file: %v", err), Err: err}
	}
	return path, nil
}
