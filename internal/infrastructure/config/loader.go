// Package config loads and persists the YAML configuration file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/shai-bridge/assets"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// PathEnv overrides the config file location.
const PathEnv = "SHAI_BRIDGE_CONFIG"

const (
	dirPermissions  = 0o755
	filePermissions = 0o600
)

// FileLoader loads YAML configuration from ~/.shai-bridge/config.yaml (overridable via SHAI_BRIDGE_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader. An empty path defers to the env var and then the default.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. The first load writes the embedded defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := l.Save(DefaultConfig()); err != nil {
			return domain.Config{}, fmt.Errorf("write default config: %w", err)
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return hydrateDefaults(cfg), nil
}

// Path returns the resolved config file path.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

// Save writes the given config back to disk.
func (l *FileLoader) Save(cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	path := l.resolvePath()
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return os.WriteFile(path, raw, filePermissions)
}

// Backup copies the current config file to a timestamped backup.
func (l *FileLoader) Backup() (string, error) {
	path := l.resolvePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, filePermissions); err != nil {
		return "", err
	}
	return backup, nil
}

// Reset backs up the current file (if any) and overwrites it with defaults.
func (l *FileLoader) Reset() (domain.Config, string, error) {
	backup, err := l.Backup()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.Config{}, "", err
	}
	cfg := DefaultConfig()
	if err := l.Save(cfg); err != nil {
		return domain.Config{}, "", err
	}
	return cfg, backup, nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath, "")
	}
	if custom := os.Getenv(PathEnv); custom != "" {
		return filesystem.ExpandPath(custom, "")
	}
	return filesystem.AppPath("config.yaml")
}

// DefaultConfig parses the embedded default configuration.
func DefaultConfig() domain.Config {
	var cfg domain.Config
	if err := yaml.Unmarshal(assets.DefaultConfigYAML, &cfg); err != nil {
		// Embedded asset is compiled in; keep a usable offline config if it is ever broken.
		return domain.Config{
			ConfigFormatVersion: "1",
			Preferences:         domain.Preferences{DefaultModel: "offline", Offline: true},
			Models:              []domain.ModelDefinition{{Name: "offline", Provider: "heuristic"}},
		}
	}
	return cfg
}

// hydrateDefaults fills zero values that the rest of the app reads directly.
// Derived settings with getters (timeouts, cache sizes) stay untouched.
func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.Preferences.DefaultModel == "" && len(cfg.Models) > 0 {
		cfg.Preferences.DefaultModel = cfg.Models[0].Name
	}
	if cfg.Preferences.TimeoutSeconds == 0 {
		cfg.Preferences.TimeoutSeconds = domain.DefaultTimeoutSeconds
	}
	if cfg.Preferences.HistoryTurns == 0 {
		cfg.Preferences.HistoryTurns = domain.DefaultHistoryTurns
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "sqlite"
	}
	cfg.Security.RulesFile = filesystem.ExpandPath(cfg.Security.RulesFile, "")
	cfg.History.Path = filesystem.ExpandPath(cfg.History.Path, "")
	cfg.Favorites.Path = filesystem.ExpandPath(cfg.Favorites.Path, "")
	cfg.Credentials.KeyFile = filesystem.ExpandPath(cfg.Credentials.KeyFile, "")
	cfg.Audit.Path = filesystem.ExpandPath(cfg.Audit.Path, "")
	for i := range cfg.Targets {
		cfg.Targets[i].IdentityFile = filesystem.ExpandPath(cfg.Targets[i].IdentityFile, "")
		cfg.Targets[i].KnownHostsFile = filesystem.ExpandPath(cfg.Targets[i].KnownHostsFile, "")
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)

// EffectiveDefaults is DefaultConfig as Load would return it, paths expanded.
func EffectiveDefaults() domain.Config {
	return hydrateDefaults(DefaultConfig())
}
