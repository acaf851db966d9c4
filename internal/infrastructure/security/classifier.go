// Package security classifies finished shell commands against a registry of
// dangerous-pattern rules.
package security

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// Classifier evaluates commands against an ordered rule registry.
// It is safe for concurrent use; rule changes are visible to the next Classify.
type Classifier struct {
	mu     sync.RWMutex
	rules  []entry
	index  map[string]int
	logger ports.Logger
	parse  func(string) *parsedCommand
}

// entry is a registered rule. Built-in rules also carry a predicate over the
// parsed command so one Classify parses the command once.
type entry struct {
	pattern domain.DangerousPattern
	parsed  func(*parsedCommand) bool
}

// NewClassifier returns a classifier seeded with DefaultRules.
func NewClassifier(logger ports.Logger) *Classifier {
	c := &Classifier{index: make(map[string]int), logger: logger, parse: parseCommand}
	for _, rule := range builtinRules() {
		c.put(entry{pattern: rule.pattern, parsed: rule.parsed})
	}
	return c
}

// AddRule inserts or replaces a rule by ID. A replaced rule keeps its position.
func (c *Classifier) AddRule(rule domain.DangerousPattern) error {
	if rule.ID == "" {
		return errors.New("rule id is required")
	}
	if rule.Match == nil {
		return fmt.Errorf("rule %q has no predicate", rule.ID)
	}
	c.put(entry{pattern: rule})
	return nil
}

func (c *Classifier) put(e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[e.pattern.ID]; ok {
		c.rules[i] = e
		return
	}
	c.index[e.pattern.ID] = len(c.rules)
	c.rules = append(c.rules, e)
}

// RemoveRule deletes a rule by ID; unknown IDs are ignored.
func (c *Classifier) RemoveRule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return
	}
	c.rules = append(c.rules[:i], c.rules[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.rules); j++ {
		c.index[c.rules[j].pattern.ID] = j
	}
}

// Rules returns a snapshot in registration order.
func (c *Classifier) Rules() []domain.DangerousPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.DangerousPattern, 0, len(c.rules))
	for _, e := range c.rules {
		out = append(out, e.pattern)
	}
	return out
}

// Classify never fails: empty input and panicking predicates both count as no match.
func (c *Classifier) Classify(command string) domain.SecurityVerdict {
	c.mu.RLock()
	rules := append([]entry(nil), c.rules...)
	c.mu.RUnlock()

	var parsed *parsedCommand
	blank := strings.TrimSpace(command) == ""
	verdict := domain.SecurityVerdict{Severity: domain.SeverityNone}
	for _, e := range rules {
		match := func() bool { return e.pattern.Match(command) }
		if e.parsed != nil {
			match = func() bool {
				if blank {
					return false
				}
				if parsed == nil {
					parsed = c.parse(command)
				}
				return e.parsed(parsed)
			}
		}
		if !c.safeMatch(e.pattern.ID, match) {
			continue
		}
		rule := e.pattern
		verdict.MatchedPatterns = append(verdict.MatchedPatterns, rule)
		verdict.Warnings = append(verdict.Warnings, rule.Description)
		if rule.Severity > verdict.Severity {
			verdict.Severity = rule.Severity
		}
	}
	verdict.Dangerous = len(verdict.MatchedPatterns) > 0
	verdict.RequiresConfirmation = verdict.Dangerous && verdict.Severity > domain.SeverityLow
	return verdict
}

func (c *Classifier) safeMatch(id string, match func() bool) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			if c.logger != nil {
				c.logger.Warn("rule predicate panicked", map[string]interface{}{
					"rule":  id,
					"panic": fmt.Sprint(r),
				})
			}
		}
	}()
	return match()
}
