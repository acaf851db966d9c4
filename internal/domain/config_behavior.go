package domain

import (
	"fmt"
	"time"
)

// Rich Domain Model: 將設定相關的預設值與查詢邏輯封裝在 Config 上

const (
	DefaultTimeoutSeconds      = 30
	DefaultHistoryTurns        = 10
	DefaultSuggestionCacheTTL  = 60 * time.Second
	DefaultSuggestionBudget    = 500 * time.Millisecond
	DefaultSuggestionCacheSize = 256
	DefaultExecutionShell      = "sh"
	DefaultServerAddr          = "127.0.0.1:8787"
	LocalTargetName            = "local"
	defaultTargetPort          = 22
	historyBackendSQLite       = "sqlite"
	historyBackendFile         = "file"
)

// GetDefaultModel retrieves the default model definition from configuration.
func (c *Config) GetDefaultModel() (ModelDefinition, error) {
	if c.Preferences.DefaultModel == "" {
		return ModelDefinition{}, fmt.Errorf("no default model configured")
	}
	if model, ok := c.FindModelByName(c.Preferences.DefaultModel); ok {
		return model, nil
	}
	return ModelDefinition{}, fmt.Errorf("default model %s not found in configuration", c.Preferences.DefaultModel)
}

// ResolveModel returns the named model, or the default model when name is empty.
func (c *Config) ResolveModel(name string) (ModelDefinition, error) {
	if name == "" {
		return c.GetDefaultModel()
	}
	if model, ok := c.FindModelByName(name); ok {
		return model, nil
	}
	return ModelDefinition{}, fmt.Errorf("model %s not found in configuration", name)
}

// FindModelByName searches for a model by its name.
func (c *Config) FindModelByName(name string) (ModelDefinition, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}
	return ModelDefinition{}, false
}

// HasModel checks if a model with the given name exists in the configuration.
func (c *Config) HasModel(name string) bool {
	_, exists := c.FindModelByName(name)
	return exists
}

// AddModel adds a new model to the configuration.
func (c *Config) AddModel(model ModelDefinition) error {
	if c.HasModel(model.Name) {
		return fmt.Errorf("model with name %s already exists", model.Name)
	}
	c.Models = append(c.Models, model)
	return nil
}

// RemoveModel removes a model by name and picks a new default when the removed one was the default.
func (c *Config) RemoveModel(name string) error {
	idx := -1
	for i, model := range c.Models {
		if model.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("model %s not found", name)
	}

	c.Models = append(c.Models[:idx], c.Models[idx+1:]...)

	if c.Preferences.DefaultModel == name {
		if len(c.Models) > 0 {
			c.Preferences.DefaultModel = c.Models[0].Name
		} else {
			c.Preferences.DefaultModel = ""
		}
	}
	return nil
}

// SetDefaultModel changes the default model to the specified name.
func (c *Config) SetDefaultModel(name string) error {
	if !c.HasModel(name) {
		return fmt.Errorf("cannot set default model: model %s does not exist", name)
	}
	c.Preferences.DefaultModel = name
	return nil
}

// GetTimeout returns the per-call reasoning backend timeout.
func (c *Config) GetTimeout() time.Duration {
	if c.Preferences.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// GetHistoryTurns returns how many conversation turns are forwarded to the backend.
func (c *Config) GetHistoryTurns() int {
	if c.Preferences.HistoryTurns <= 0 {
		return DefaultHistoryTurns
	}
	return c.Preferences.HistoryTurns
}

// GetSuggestionCacheTTL parses suggestions.cache_ttl, falling back to the default on empty or bad input.
func (c *Config) GetSuggestionCacheTTL() time.Duration {
	return parseDurationOr(c.Suggestions.CacheTTL, DefaultSuggestionCacheTTL)
}

// GetSuggestionBudget parses suggestions.budget.
func (c *Config) GetSuggestionBudget() time.Duration {
	return parseDurationOr(c.Suggestions.Budget, DefaultSuggestionBudget)
}

// GetSuggestionCacheEntries returns the maximum number of cached suggestion lists.
func (c *Config) GetSuggestionCacheEntries() int {
	if c.Suggestions.CacheEntries <= 0 {
		return DefaultSuggestionCacheSize
	}
	return c.Suggestions.CacheEntries
}

// UsesSQLiteHistory reports whether the sqlite history backend is selected (the default).
func (c *Config) UsesSQLiteHistory() bool {
	return c.History.Backend == "" || c.History.Backend == historyBackendSQLite
}

// GetExecutionShell returns the configured shell for local execution.
func (c *Config) GetExecutionShell() string {
	if c.Execution.Shell == "" || c.Execution.Shell == "auto" {
		return DefaultExecutionShell
	}
	return c.Execution.Shell
}

// GetDefaultTarget returns the execution target used when a request names none.
func (c *Config) GetDefaultTarget() string {
	if c.Execution.DefaultTarget == "" {
		return LocalTargetName
	}
	return c.Execution.DefaultTarget
}

// FindTarget looks up a remote target by name.
func (c *Config) FindTarget(name string) (Target, bool) {
	for _, target := range c.Targets {
		if target.Name == name {
			return target, true
		}
	}
	return Target{}, false
}

// GetServerAddr returns the HTTP API listen address.
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return DefaultServerAddr
	}
	return c.Server.Addr
}

// Address returns host:port for dialing.
func (t Target) Address() string {
	port := t.Port
	if port == 0 {
		port = defaultTargetPort
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// ValidateConsistency checks the internal consistency of the configuration.
func (c *Config) ValidateConsistency() error {
	if c.Preferences.DefaultModel != "" && len(c.Models) == 0 {
		return fmt.Errorf("default model is set but no models are configured")
	}
	if c.Preferences.DefaultModel != "" && !c.HasModel(c.Preferences.DefaultModel) {
		return fmt.Errorf("default model %s does not exist in models list", c.Preferences.DefaultModel)
	}
	switch c.History.Backend {
	case "", historyBackendSQLite, historyBackendFile:
	default:
		return fmt.Errorf("history.backend must be sqlite|file, got %s", c.History.Backend)
	}

	seen := make(map[string]struct{}, len(c.Targets))
	for _, target := range c.Targets {
		if target.Name == "" || target.Name == LocalTargetName {
			return fmt.Errorf("target name %q is reserved or empty", target.Name)
		}
		if _, dup := seen[target.Name]; dup {
			return fmt.Errorf("duplicate target %s", target.Name)
		}
		seen[target.Name] = struct{}{}
	}
	if t := c.Execution.DefaultTarget; t != "" && t != LocalTargetName {
		if _, ok := c.FindTarget(t); !ok {
			return fmt.Errorf("default target %s is not defined", t)
		}
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
