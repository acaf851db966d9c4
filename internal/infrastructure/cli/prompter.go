package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// ErrNotInteractive is returned when confirmation is needed but stdin is not a terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// Prompter asks the user to approve commands before they run.
type Prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewPrompter constructs a prompter over stdio. Interactivity is detected on in
// when it is a terminal file descriptor.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Prompter{in: bufio.NewReader(in), out: out, interactive: interactive}
}

// Interactive reports whether the prompter can ask questions.
func (p *Prompter) Interactive() bool {
	return p.interactive
}

// Confirm asks for approval of a classified command. Critical commands need
// the word "yes" typed out; everything else takes y/N.
func (p *Prompter) Confirm(result domain.InterpretResult) (bool, error) {
	if !p.interactive {
		return false, ErrNotInteractive
	}
	if result.Severity >= domain.SeverityCritical {
		fmt.Fprint(p.out, "Type 'yes' to run this command: ")
		line, err := p.readLine()
		if err != nil {
			return false, err
		}
		return line == "yes", nil
	}
	fmt.Fprint(p.out, "Run this command? [y/N]: ")
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	line = strings.ToLower(line)
	return line == "y" || line == "yes", nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
