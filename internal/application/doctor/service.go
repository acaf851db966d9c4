// Package doctor runs environment diagnostics for `shai-bridge doctor`.
package doctor

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/doeshing/shai-bridge/internal/application/config"
	"github.com/doeshing/shai-bridge/internal/application/suggest"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// RuleSource exposes the active classifier rules.
type RuleSource interface {
	Rules() []domain.DangerousPattern
}

// StatsSource exposes suggestion ranker counters.
type StatsSource interface {
	Stats() suggest.Stats
}

// Service runs environment diagnostics. Nil collaborators are reported as warnings.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Rules          RuleSource
	Backends       ports.BackendFactory
	Credentials    ports.CredentialStore
	History        ports.HistoryRepository
	Suggestions    StatsSource
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("format v%s, %d models", cfg.ConfigFormatVersion, len(cfg.Models))))
	}

	if s.Rules != nil {
		checks = append(checks, ok("Classifier", fmt.Sprintf("%d rules active", len(s.Rules.Rules()))))
	} else {
		checks = append(checks, warn("Classifier", "not initialized"))
	}

	checks = append(checks, s.backendCheck(ctx, cfg)...)
	checks = append(checks, s.historyCheck(ctx))
	if s.Suggestions != nil {
		checks = append(checks, suggestionCheck(s.Suggestions.Stats()))
	}
	checks = append(checks, targetChecks(cfg.Targets)...)

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) backendCheck(ctx context.Context, cfg domain.Config) []domain.HealthCheck {
	model, err := cfg.GetDefaultModel()
	if err != nil {
		return []domain.HealthCheck{fail("Backend", err.Error())}
	}
	if s.Backends == nil {
		return []domain.HealthCheck{warn("Backend", "backend factory not initialized")}
	}
	if _, err := s.Backends.ForModel(model); err != nil {
		return []domain.HealthCheck{fail("Backend", fmt.Sprintf("%s: %v", model.Name, err))}
	}
	checks := []domain.HealthCheck{ok("Backend", fmt.Sprintf("%s ready", model.Name))}

	if model.AuthEnvVar == "" {
		return checks
	}
	if s.Credentials == nil {
		return append(checks, warn("API key", "credential store not initialized"))
	}
	if key, err := s.Credentials.APIKey(ctx, model.AuthEnvVar); err != nil || key == "" {
		return append(checks, warn("API key", fmt.Sprintf("%s missing", model.AuthEnvVar)))
	}
	return append(checks, ok("API key", fmt.Sprintf("%s found", model.AuthEnvVar)))
}

func (s *Service) historyCheck(ctx context.Context) domain.HealthCheck {
	if s.History == nil {
		return warn("History", "history store not initialized")
	}
	if _, err := s.History.Records(ctx, 1, ""); err != nil {
		return fail("History", fmt.Sprintf("%s: %v", s.History.Path(), err))
	}
	return ok("History", s.History.Path())
}

func suggestionCheck(stats suggest.Stats) domain.HealthCheck {
	details := fmt.Sprintf("%d commands tracked, cache %d/%d hits", stats.TrackedUsage, stats.CacheHits, stats.CacheHits+stats.CacheMisses)
	if stats.Overruns > 0 {
		return warn("Suggestions", fmt.Sprintf("%s, %d over budget", details, stats.Overruns))
	}
	return ok("Suggestions", details)
}

func targetChecks(targets []domain.Target) []domain.HealthCheck {
	var checks []domain.HealthCheck
	for _, target := range targets {
		name := "Target " + target.Name
		switch {
		case target.IdentityFile != "" && !exists(target.IdentityFile):
			checks = append(checks, warn(name, fmt.Sprintf("identity file %s not found", target.IdentityFile)))
		case target.KnownHostsFile != "" && !exists(target.KnownHostsFile):
			checks = append(checks, warn(name, fmt.Sprintf("known_hosts %s not found", target.KnownHostsFile)))
		default:
			checks = append(checks, ok(name, target.Address()))
		}
	}
	return checks
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
