package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// fallbackConfidence is reported when the model ignored the JSON contract and
// the command had to be scraped from free text.
const fallbackConfidence = 0.5

type proposal struct {
	Command     string          `json:"command"`
	Explanation string          `json:"explanation"`
	Confidence  json.RawMessage `json:"confidence"`
}

// parseProposal normalizes model output into a BackendResponse. It prefers the
// JSON object the prompt asks for and falls back to code block / "command:" / raw text.
func parseProposal(content string) (domain.BackendResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.BackendResponse{}, malformed("empty completion")
	}

	if obj := extractJSONObject(content); obj != "" {
		var p proposal
		if err := json.Unmarshal([]byte(obj), &p); err == nil && strings.TrimSpace(p.Command) != "" {
			return domain.BackendResponse{
				Command:     strings.TrimSpace(p.Command),
				Explanation: strings.TrimSpace(p.Explanation),
				Confidence:  parseConfidence(p.Confidence),
			}, nil
		}
	}

	command := extractCommand(content)
	if command == "" {
		return domain.BackendResponse{}, malformed("no command in completion")
	}
	return domain.BackendResponse{
		Command:     command,
		Explanation: explanationAround(content, command),
		Confidence:  fallbackConfidence,
	}, nil
}

func malformed(msg string) error {
	return &domain.BackendError{Kind: domain.FailureMalformedResponse, Message: msg, Err: domain.ErrMalformedResponse}
}

// extractJSONObject returns the outermost {...} span, unwrapping a ```json fence if present.
func extractJSONObject(content string) string {
	if code := extractCodeBlock(content); strings.HasPrefix(code, "{") {
		content = code
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// parseConfidence accepts numbers and numeric strings; anything else counts as unknown.
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return fallbackConfidence
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return fallbackConfidence
		}
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if err != nil {
			return fallbackConfidence
		}
		v = parsed
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return fallbackConfidence
	}
	return v
}

// extractCommand attempts to extract a shell command from the model response.
// It tries multiple extraction strategies: code blocks, command prefix, raw text.
func extractCommand(content string) string {
	if code := extractCodeBlock(content); code != "" {
		return code
	}
	if cmd := extractCommandLine(content); cmd != "" {
		return cmd
	}
	return strings.TrimSpace(content)
}

// extractCodeBlock finds and extracts the first markdown code block (```...```).
func extractCodeBlock(content string) string {
	start := strings.Index(content, "```")
	if start == -1 {
		return ""
	}
	suffix := content[start+3:]
	end := strings.Index(suffix, "```")
	if end == -1 {
		return ""
	}

	block := suffix[:end]
	lines := strings.Split(block, "\n")
	// Drop the language marker line (```sh, ```bash, ```json).
	if len(lines) > 1 && !strings.ContainsAny(strings.TrimSpace(lines[0]), " \t") {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractCommandLine looks for lines prefixed with "command:" and extracts the text after it.
func extractCommandLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "command:") {
			return strings.Trim(strings.TrimSpace(line[len("command:"):]), "`")
		}
	}
	return ""
}

// explanationAround keeps whatever prose surrounds the scraped command.
func explanationAround(content, command string) string {
	if content == command {
		return ""
	}
	text := content
	if start := strings.Index(text, "```"); start >= 0 {
		if end := strings.Index(text[start+3:], "```"); end >= 0 {
			text = text[:start] + text[start+3+end+3:]
		}
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(strings.ToLower(trimmed), "command:") {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}

// extractJSONPath extracts a string value from a nested JSON structure using a simple path notation.
// Supported paths: "field", "field.nested", "field[0]", "field[0].nested.field"
func extractJSONPath(data map[string]interface{}, path string) (string, error) {
	parts := parseJSONPath(path)
	var current interface{} = data

	for _, part := range parts {
		switch part.kind {
		case "field":
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("expected object at '%s'", part.value)
			}
			var found bool
			current, found = obj[part.value]
			if !found {
				return "", fmt.Errorf("field '%s' not found", part.value)
			}

		case "index":
			arr, ok := current.([]interface{})
			if !ok {
				return "", fmt.Errorf("expected array at index %s", part.value)
			}
			idx, err := strconv.Atoi(part.value)
			if err != nil {
				return "", fmt.Errorf("bad index %q", part.value)
			}
			if idx < 0 || idx >= len(arr) {
				return "", fmt.Errorf("index %d out of bounds (len=%d)", idx, len(arr))
			}
			current = arr[idx]
		}
	}

	if str, ok := current.(string); ok {
		return str, nil
	}

	return "", fmt.Errorf("final value is not a string: %T", current)
}

type pathPart struct {
	kind  string // "field" or "index"
	value string
}

// parseJSONPath converts "content[0].text" into structured path parts.
// Examples:
//   - "content[0].text" → [{field, "content"}, {index, "0"}, {field, "text"}]
//   - "choices[0].message.content" → [{field, "choices"}, {index, "0"}, {field, "message"}, {field, "content"}]
func parseJSONPath(path string) []pathPart {
	var parts []pathPart
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, pathPart{kind: "field", value: current.String()})
			current.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			flush()
		case '[':
			flush()
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				parts = append(parts, pathPart{kind: "index", value: path[i+1 : j]})
				i = j
			}
		default:
			current.WriteByte(ch)
		}
	}
	flush()

	return parts
}
