package suggest

import (
	"strings"
	"unicode/utf8"
)

// matchQuality orders fuzzy matches; higher is better.
type matchQuality int

const (
	matchNone matchQuality = iota
	matchSubsequence
	matchSubstring
	matchPrefix
	matchExact
)

func (q matchQuality) bonus() float64 {
	switch q {
	case matchExact:
		return 50
	case matchPrefix:
		return 30
	case matchSubstring:
		return 15
	default:
		return 0
	}
}

// fuzzyMatch compares case-insensitively: exact, prefix, substring, then subsequence.
func fuzzyMatch(query, candidate string) matchQuality {
	if query == "" || candidate == "" {
		return matchNone
	}
	q, c := strings.ToLower(query), strings.ToLower(candidate)
	switch {
	case q == c:
		return matchExact
	case strings.HasPrefix(c, q):
		return matchPrefix
	case strings.Contains(c, q):
		return matchSubstring
	case isSubsequence(q, c):
		return matchSubsequence
	}
	return matchNone
}

// bestMatch returns the strongest match of query against any of the fields.
func bestMatch(query string, fields ...string) matchQuality {
	best := matchNone
	for _, field := range fields {
		if q := fuzzyMatch(query, field); q > best {
			best = q
		}
	}
	return best
}

func isSubsequence(query, candidate string) bool {
	if utf8.RuneCountInString(query) > utf8.RuneCountInString(candidate) {
		return false
	}
	rest := candidate
	for _, r := range query {
		i := strings.IndexRune(rest, r)
		if i < 0 {
			return false
		}
		rest = rest[i+utf8.RuneLen(r):]
	}
	return true
}
