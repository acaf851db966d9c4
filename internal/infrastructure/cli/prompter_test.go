package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/shai-bridge/internal/domain"
)

func interactivePrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(input), &out)
	p.interactive = true
	return p, &out
}

func TestPrompterNonInteractive(t *testing.T) {
	p := NewPrompter(strings.NewReader("y\n"), &bytes.Buffer{})
	assert.False(t, p.Interactive())

	ok, err := p.Confirm(domain.InterpretResult{Severity: domain.SeverityLow})
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.False(t, ok)
}

func TestPrompterConfirm(t *testing.T) {
	tests := []struct {
		name     string
		severity domain.Severity
		input    string
		want     bool
	}{
		{"medium yes", domain.SeverityMedium, "y\n", true},
		{"medium full word", domain.SeverityMedium, "YES\n", true},
		{"medium default no", domain.SeverityMedium, "\n", false},
		{"critical needs word", domain.SeverityCritical, "y\n", false},
		{"critical yes", domain.SeverityCritical, "yes\n", true},
		{"no trailing newline", domain.SeverityHigh, "y", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out := interactivePrompter(tt.input)
			ok, err := p.Confirm(domain.InterpretResult{Severity: tt.severity})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NotEmpty(t, out.String())
		})
	}
}

func TestPrompterEOF(t *testing.T) {
	p, _ := interactivePrompter("")
	_, err := p.Confirm(domain.InterpretResult{Severity: domain.SeverityHigh})
	assert.Error(t, err)
}
