package redact

import (
	"net/netip"
	"regexp"
	"strings"
	"unicode"
)

// matcher finds candidate [start,end) offsets for one category.
type matcher struct {
	category Category
	find     func(text string) [][2]int
}

var (
	// Rooted paths only; group 1 is the path, group 0 includes the boundary character.
	pathPattern = regexp.MustCompile(`(?:^|[\s"'=(,])((?:~|\.{1,2})?/[^\s"'<>|;&(),` + "`" + `]+|[A-Za-z]:\\[^\s"'<>|;&]+)`)

	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Pattern = regexp.MustCompile(`(?i)[0-9a-f]*(?::[0-9a-f]*){2,7}`)

	// Group 2 is the value to mask.
	secretAssignPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|passphrase|secret|token|client_secret|auth_token|access_token)\s*[=:]\s*("[^"]*"|'[^']*'|[^\s"'&;]+)`)
	secretFlagPattern   = regexp.MustCompile(`(?i)(--(?:password|passwd|passphrase|secret|token|api-key|apikey|auth-token))(?:=|\s+)("[^"]*"|'[^']*'|[^\s"']+)`)
	bearerPattern       = regexp.MustCompile(`(?i)\b(bearer)\s+([A-Za-z0-9._~+/=-]{8,})`)
	urlCredentialPat    = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s:/@]+:([^\s@/]+)@`)

	vendorKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
		regexp.MustCompile(`\b[sr]k_live_[0-9A-Za-z]{16,}`),
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}`),
		regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`),
	}
	genericKeyPattern = regexp.MustCompile(`\b[A-Za-z0-9_-]{24,}\b`)

	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}`)
)

func defaultMatchers() []matcher {
	return []matcher{
		{category: CategoryPath, find: findPaths},
		{category: CategoryIP, find: findIPv4},
		{category: CategoryIP, find: findIPv6},
		{category: CategorySecret, find: findSecrets},
		{category: CategoryAPIKey, find: findAPIKeys},
		{category: CategoryEmail, find: findEmails},
	}
}

func findPaths(text string) [][2]int {
	var out [][2]int
	for _, loc := range pathPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		candidate := text[start:end]
		if strings.Contains(candidate, "://") {
			continue
		}
		end -= len(candidate) - len(strings.TrimRight(candidate, ".,:!?"))
		if end-start < 2 {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func findIPv4(text string) [][2]int {
	var out [][2]int
	for _, loc := range ipv4Pattern.FindAllStringIndex(text, -1) {
		// Reject dotted runs longer than four octets, e.g. version strings.
		if loc[0] > 1 && text[loc[0]-1] == '.' && isDigit(text[loc[0]-2]) {
			continue
		}
		if loc[1]+1 < len(text) && text[loc[1]] == '.' && isDigit(text[loc[1]+1]) {
			continue
		}
		addr, err := netip.ParseAddr(text[loc[0]:loc[1]])
		if err != nil || !addr.Is4() {
			continue
		}
		out = append(out, [2]int{loc[0], loc[1]})
	}
	return out
}

func findIPv6(text string) [][2]int {
	var out [][2]int
	for _, loc := range ipv6Pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		candidate := text[start:end]
		if candidate == "::" || strings.Count(candidate, ":") < 2 {
			continue
		}
		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		if end < len(text) && (isWordByte(text[end]) || text[end] == '.') {
			continue
		}
		addr, err := netip.ParseAddr(candidate)
		if err != nil || !addr.Is6() {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func findSecrets(text string) [][2]int {
	var out [][2]int
	for _, pattern := range []*regexp.Regexp{secretAssignPattern, secretFlagPattern, bearerPattern} {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := unquote(text, loc[4], loc[5])
			if end > start {
				out = append(out, [2]int{start, end})
			}
		}
	}
	for _, loc := range urlCredentialPat.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, [2]int{loc[2], loc[3]})
	}
	return out
}

func findAPIKeys(text string) [][2]int {
	var out [][2]int
	for _, pattern := range vendorKeyPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			out = append(out, [2]int{loc[0], loc[1]})
		}
	}
	for _, loc := range genericKeyPattern.FindAllStringIndex(text, -1) {
		if looksLikeKey(text[loc[0]:loc[1]]) {
			out = append(out, [2]int{loc[0], loc[1]})
		}
	}
	return out
}

func findEmails(text string) [][2]int {
	var out [][2]int
	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		// user:pass@host in a URL is a credential, not an address.
		if loc[0] > 0 && (text[loc[0]-1] == ':' || text[loc[0]-1] == '/') {
			continue
		}
		out = append(out, [2]int{loc[0], loc[1]})
	}
	return out
}

// looksLikeKey wants digits plus mixed-case letters, which spares hex digests and identifiers.
func looksLikeKey(token string) bool {
	var digit, upper, lower bool
	for _, r := range token {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	return digit && upper && lower
}

// unquote narrows a quoted value span to its contents.
func unquote(text string, start, end int) (int, int) {
	if end-start >= 2 {
		first, last := text[start], text[end-1]
		if (first == '"' || first == '\'') && first == last {
			return start + 1, end - 1
		}
	}
	return start, end
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isWordByte(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
