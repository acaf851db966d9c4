// Package config validates a loaded configuration before the app wires it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/redact"
)

// Validate ensures config structure is consistent. All problems are reported together.
func Validate(cfg domain.Config) error {
	var errs []error
	if len(cfg.Models) == 0 {
		errs = append(errs, errors.New("at least one model must be configured"))
	}
	if err := cfg.ValidateConsistency(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateModels(cfg.Models)...)
	errs = append(errs, validatePreferences(cfg.Preferences)...)
	errs = append(errs, validateSuggestions(cfg.Suggestions)...)
	if _, err := redact.ParseCategories(cfg.Sanitizer.Categories); err != nil {
		errs = append(errs, fmt.Errorf("sanitizer.categories: %w", err))
	}
	for _, target := range cfg.Targets {
		if target.Host == "" || target.User == "" {
			errs = append(errs, fmt.Errorf("target %s needs host and user", target.Name))
		}
		if target.Port < 0 || target.Port > 65535 {
			errs = append(errs, fmt.Errorf("target %s has invalid port %d", target.Name, target.Port))
		}
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		errs = append(errs, errors.New("audit.path must be set when audit is enabled"))
	}
	return errors.Join(errs...)
}

func validateModels(models []domain.ModelDefinition) []error {
	var errs []error
	seen := make(map[string]struct{}, len(models))
	for _, model := range models {
		if strings.TrimSpace(model.Name) == "" {
			errs = append(errs, errors.New("model name must not be empty"))
			continue
		}
		if _, dup := seen[model.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate model %s", model.Name))
		}
		seen[model.Name] = struct{}{}

		switch strings.ToLower(model.Provider) {
		case "", "openai", "anthropic", "ollama":
			if model.Endpoint == "" && model.Provider == "" {
				errs = append(errs, fmt.Errorf("model %s needs an endpoint or a provider", model.Name))
			}
		case "heuristic":
		default:
			errs = append(errs, fmt.Errorf("model %s: unknown provider %s", model.Name, model.Provider))
		}
		if model.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("model %s: max_tokens must be >= 0", model.Name))
		}
	}
	return errs
}

func validatePreferences(p domain.Preferences) []error {
	var errs []error
	if p.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("preferences.timeout must be >= 0"))
	}
	if p.HistoryTurns < 0 {
		errs = append(errs, errors.New("preferences.history_turns must be >= 0"))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("preferences.temperature must be within [0, 2], got %g", p.Temperature))
	}
	return errs
}

func validateSuggestions(s domain.SuggestionSettings) []error {
	var errs []error
	for _, field := range [][2]string{{"cache_ttl", s.CacheTTL}, {"budget", s.Budget}} {
		name, raw := field[0], field[1]
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("suggestions.%s must be a positive duration, got %q", name, raw))
		}
	}
	if s.CacheEntries < 0 {
		errs = append(errs, errors.New("suggestions.cache_entries must be >= 0"))
	}
	return errs
}
