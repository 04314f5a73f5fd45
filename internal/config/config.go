package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultGDBPath         = "gdb"
	defaultCommandPrefix   = "server "
	defaultReadBufferBytes = 4096
	defaultLogMaxSizeBytes = 10 * 1024 * 1024
	defaultLogMaxFiles     = 5
)

var defaultGDBArgs = []string{"--annotate=2", "-q"}

// Config stores runtime settings loaded from TOML files.
type Config struct {
	GDBPath         string
	GDBArgs         []string
	CommandPrefix   string
	ReadBufferBytes int
	LogMaxSizeBytes int64
	LogMaxFiles     int
	Views           map[string]ViewConfig
}

// ViewConfig stores per-view overrides: whether the view is registered at
// attach time and an optional replacement for its refresh command.
type ViewConfig struct {
	Enabled bool
	Command string
}

type fileConfig struct {
	GDBPath       *string  `toml:"gdb_path"`
	GDBArgs       []string `toml:"gdb_args"`
	CommandPrefix *string  `toml:"command_prefix"`
	ReadBufferKB  *int     `toml:"read_buffer_kb"`
	LogMaxSizeMB  *int     `toml:"log_max_size_mb"`
	LogMaxFiles   *int     `toml:"log_max_files"`
}

// Load reads config from ~/.gdx/config.toml and overlays a project-local
// .gdx/config.toml.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".gdx", "config.toml"),
		filepath.Join(workingDir, ".gdx", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		GDBPath:         defaultGDBPath,
		GDBArgs:         append([]string(nil), defaultGDBArgs...),
		CommandPrefix:   defaultCommandPrefix,
		ReadBufferBytes: defaultReadBufferBytes,
		LogMaxSizeBytes: defaultLogMaxSizeBytes,
		LogMaxFiles:     defaultLogMaxFiles,
		Views:           map[string]ViewConfig{},
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("decode config views in %q: %w", path, err)
	}

	if err := applyScalarOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := overlayViewConfigs(cfg, raw, path); err != nil {
		return err
	}

	return nil
}

func applyScalarOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.GDBPath != nil {
		trimmed := strings.TrimSpace(*decoded.GDBPath)
		if trimmed == "" {
			return fmt.Errorf("parse gdb_path in %q: must not be empty", path)
		}
		cfg.GDBPath = trimmed
	}
	if decoded.GDBArgs != nil {
		cfg.GDBArgs = append([]string(nil), decoded.GDBArgs...)
	}
	if decoded.CommandPrefix != nil {
		cfg.CommandPrefix = *decoded.CommandPrefix
	}
	if decoded.ReadBufferKB != nil {
		if *decoded.ReadBufferKB <= 0 {
			return fmt.Errorf("parse read_buffer_kb in %q: must be > 0", path)
		}
		cfg.ReadBufferBytes = *decoded.ReadBufferKB * 1024
	}
	if decoded.LogMaxSizeMB != nil {
		if *decoded.LogMaxSizeMB <= 0 {
			return fmt.Errorf("parse log_max_size_mb in %q: must be > 0", path)
		}
		cfg.LogMaxSizeBytes = int64(*decoded.LogMaxSizeMB) * 1024 * 1024
	}
	if decoded.LogMaxFiles != nil {
		if *decoded.LogMaxFiles <= 0 {
			return fmt.Errorf("parse log_max_files in %q: must be > 0", path)
		}
		cfg.LogMaxFiles = *decoded.LogMaxFiles
	}
	return nil
}

func overlayViewConfigs(cfg *Config, raw map[string]any, path string) error {
	viewsRaw, ok := raw["views"]
	if !ok {
		return nil
	}

	viewsMap, ok := viewsRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("parse views in %q: expected table", path)
	}
	if cfg.Views == nil {
		cfg.Views = map[string]ViewConfig{}
	}

	for viewName, viewValue := range viewsMap {
		if err := overlaySingleViewConfig(cfg, viewName, viewValue, path); err != nil {
			return err
		}
	}

	return nil
}

func overlaySingleViewConfig(cfg *Config, viewName string, viewValue any, path string) error {
	viewMap, ok := viewValue.(map[string]any)
	if !ok {
		return fmt.Errorf("parse views.%s in %q: expected table", viewName, path)
	}

	normalized := normalizeKey(viewName)
	viewConfig, exists := cfg.Views[normalized]
	if !exists {
		viewConfig = ViewConfig{Enabled: true}
	}

	for key, value := range viewMap {
		switch normalizeKey(key) {
		case "enabled":
			enabled, ok := value.(bool)
			if !ok {
				return fmt.Errorf("parse views.%s.enabled in %q: must be boolean", viewName, path)
			}
			viewConfig.Enabled = enabled
		case "command":
			text, ok := value.(string)
			if !ok {
				return fmt.Errorf("parse views.%s.command in %q: must be string", viewName, path)
			}
			viewConfig.Command = strings.TrimSpace(text)
		default:
			return fmt.Errorf("parse views.%s.%s in %q: unsupported key", viewName, key, path)
		}
	}

	cfg.Views[normalized] = viewConfig
	return nil
}

// ViewEnabled reports whether a view should be registered at attach time.
// Views without an explicit override default to enabled.
func (c *Config) ViewEnabled(name string) bool {
	if c == nil {
		return false
	}
	view, ok := c.Views[normalizeKey(name)]
	if !ok {
		return true
	}
	return view.Enabled
}

// ViewCommand returns the configured command override for a view, or the
// empty string when the default should be used.
func (c *Config) ViewCommand(name string) string {
	if c == nil {
		return ""
	}
	return c.Views[normalizeKey(name)].Command
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
