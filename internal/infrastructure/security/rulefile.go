package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// RulesFile is the YAML schema for user rules.
//
//	disabled: [service-control]
//	rules:
//	  - id: drop-database
//	    pattern: '(?i)\bdrop\s+database\b'
//	    severity: high
//	    description: Drops a whole database
type RulesFile struct {
	Disabled []string   `yaml:"disabled"`
	Rules    []RuleSpec `yaml:"rules"`
}

// RuleSpec is a regexp-backed rule as written in the rules file.
type RuleSpec struct {
	ID          string          `yaml:"id"`
	Pattern     string          `yaml:"pattern"`
	Description string          `yaml:"description"`
	Severity    domain.Severity `yaml:"severity"`
	Examples    []string        `yaml:"examples"`
}

// DefaultRulesPath is where user rules live when none is configured.
func DefaultRulesPath() string {
	return filesystem.AppPath("rules.yaml")
}

// LoadRulesFile reads a rules file. A missing file yields an empty RulesFile.
func LoadRulesFile(path string) (RulesFile, error) {
	var rules RulesFile
	path = filesystem.ExpandPath(path, DefaultRulesPath())
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rules, nil
		}
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RulesFile{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rules, nil
}

// Patterns compiles every rule spec.
func (f RulesFile) Patterns() ([]domain.DangerousPattern, error) {
	out := make([]domain.DangerousPattern, 0, len(f.Rules))
	for i, spec := range f.Rules {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule #%d: id is required", i+1)
		}
		if spec.Pattern == "" {
			return nil, fmt.Errorf("rule %q: pattern is required", spec.ID)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		severity := spec.Severity
		if severity == domain.SeverityNone {
			severity = domain.SeverityMedium
		}
		description := spec.Description
		if description == "" {
			description = "Matches user rule " + spec.ID
		}
		out = append(out, domain.DangerousPattern{
			ID:          spec.ID,
			Description: description,
			Severity:    severity,
			Examples:    spec.Examples,
			Match:       re.MatchString,
		})
	}
	return out, nil
}

// Apply removes disabled rules and upserts the file's rules into c.
func (f RulesFile) Apply(c *Classifier) error {
	patterns, err := f.Patterns()
	if err != nil {
		return err
	}
	for _, id := range f.Disabled {
		c.RemoveRule(id)
	}
	for _, p := range patterns {
		if err := c.AddRule(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadClassifier builds a classifier with the defaults plus the rules file at path.
func LoadClassifier(path string, logger ports.Logger) (*Classifier, error) {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	c := NewClassifier(logger)
	if err := rules.Apply(c); err != nil {
		return nil, err
	}
	return c, nil
}
