// Package redact masks sensitive substrings with reversible placeholders before
// text leaves the process, and restores them in whatever comes back.
//
// Detected categories are file paths, IPv4/IPv6 addresses, secrets in
// key=value or --flag form, API-key shaped tokens and email addresses.
// Overlapping detections are resolved earliest-first, outermost-first, so each
// character of the input is covered by at most one placeholder.
package redact

import (
	"fmt"
	"sort"
	"strings"
)

// Category is the tag embedded in a placeholder.
type Category string

const (
	CategoryPath   Category = "FILE"
	CategoryIP     Category = "IP"
	CategorySecret Category = "SECRET"
	CategoryAPIKey Category = "APIKEY"
	CategoryEmail  Category = "EMAIL"
)

// AllCategories lists every category in matcher order.
var AllCategories = []Category{CategoryPath, CategoryIP, CategorySecret, CategoryAPIKey, CategoryEmail}

var categoryNames = map[string]Category{
	"path":    CategoryPath,
	"file":    CategoryPath,
	"ip":      CategoryIP,
	"secret":  CategorySecret,
	"api_key": CategoryAPIKey,
	"api-key": CategoryAPIKey,
	"apikey":  CategoryAPIKey,
	"email":   CategoryEmail,
}

// ParseCategories maps config names (path, ip, secret, api_key, email) to categories.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	for _, name := range names {
		cat, ok := categoryNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown sanitizer category %q", name)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Mapping maps placeholder to the original substring it replaced.
type Mapping map[string]string

type span struct {
	category Category
	start    int
	end      int
	order    int
}

// Sanitizer is stateless after construction and safe for concurrent use.
type Sanitizer struct {
	matchers []matcher
}

// New returns a sanitizer for the given categories; none means all.
func New(categories ...Category) *Sanitizer {
	enabled := make(map[Category]bool, len(categories))
	for _, c := range categories {
		enabled[c] = true
	}
	var matchers []matcher
	for _, m := range defaultMatchers() {
		if len(enabled) == 0 || enabled[m.category] {
			matchers = append(matchers, m)
		}
	}
	return &Sanitizer{matchers: matchers}
}

// Sanitize masks text and returns the mapping needed to undo it.
func (s *Sanitizer) Sanitize(text string) (string, Mapping) {
	out, mapping := s.SanitizeBatch([]string{text})
	return out[0], mapping
}

// SanitizeBatch masks several texts with one shared mapping; placeholder
// counters continue across texts so no placeholder is reused.
func (s *Sanitizer) SanitizeBatch(texts []string) ([]string, Mapping) {
	mapping := Mapping{}
	alloc := newAllocator(texts)
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = s.mask(text, alloc, mapping)
	}
	return out, mapping
}

// Restore is a convenience alias for the package-level Restore.
func (s *Sanitizer) Restore(text string, mapping Mapping) string {
	return Restore(text, mapping)
}

// Restore literally replaces every known placeholder; unknown ones are left alone.
func Restore(text string, mapping Mapping) string {
	if len(mapping) == 0 || text == "" {
		return text
	}
	placeholders := make([]string, 0, len(mapping))
	for ph := range mapping {
		placeholders = append(placeholders, ph)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if len(placeholders[i]) != len(placeholders[j]) {
			return len(placeholders[i]) > len(placeholders[j])
		}
		return placeholders[i] < placeholders[j]
	})
	for _, ph := range placeholders {
		text = strings.ReplaceAll(text, ph, mapping[ph])
	}
	return text
}

func (s *Sanitizer) mask(text string, alloc *allocator, mapping Mapping) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	spans := resolve(s.detect(text))
	if len(spans) == 0 {
		return text
	}

	// Counters follow text order; substitution runs back to front so earlier offsets stay valid.
	placeholders := make([]string, len(spans))
	for i, sp := range spans {
		placeholders[i] = alloc.next(sp.category)
		mapping[placeholders[i]] = text[sp.start:sp.end]
	}
	masked := text
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		masked = masked[:sp.start] + placeholders[i] + masked[sp.end:]
	}
	return masked
}

func (s *Sanitizer) detect(text string) []span {
	var spans []span
	for order, m := range s.matchers {
		for _, loc := range m.find(text) {
			if loc[0] < 0 || loc[1] > len(text) || loc[0] >= loc[1] {
				continue
			}
			spans = append(spans, span{category: m.category, start: loc[0], end: loc[1], order: order})
		}
	}
	return spans
}

// resolve keeps the earliest, then longest, then first-registered span and
// drops anything overlapping an already kept span.
func resolve(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return la > lb
		}
		return a.order < b.order
	})
	kept := spans[:0]
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		kept = append(kept, sp)
		lastEnd = sp.end
	}
	return kept
}

// allocator hands out per-category placeholders, skipping any that already
// occur literally in the inputs so Restore cannot touch user text.
type allocator struct {
	counters map[Category]int
	inputs   []string
}

func newAllocator(inputs []string) *allocator {
	return &allocator{counters: make(map[Category]int), inputs: inputs}
}

func (a *allocator) next(cat Category) string {
	for {
		a.counters[cat]++
		ph := fmt.Sprintf("<%s_%d>", cat, a.counters[cat])
		if !a.seen(ph) {
			return ph
		}
	}
}

func (a *allocator) seen(ph string) bool {
	for _, in := range a.inputs {
		if strings.Contains(in, ph) {
			return true
		}
	}
	return false
}
