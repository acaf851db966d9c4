package security

import (
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const maxParseDepth = 3

// parsedCommand is the structural view the default rules inspect.
type parsedCommand struct {
	text      string
	segments  []segment
	pipes     [][2]int // indices into segments: left | right
	redirects []redirect
	nested    []*parsedCommand // sh -c '...' bodies
	forkBomb  bool
	fallback  bool
}

type segment struct {
	raw       string
	exe       string
	args      []string
	flags     map[string]string
	words     []string // everything after exe, unsplit
	elevation string // sudo, doas, pkexec when wrapped
}

type redirect struct {
	op   string
	path string
}

func (s segment) hasFlag(names ...string) bool {
	for _, name := range names {
		if _, ok := s.flags[name]; ok {
			return true
		}
	}
	return false
}

// parseCommand never fails: unparsable input falls back to whitespace and pipe splitting.
func parseCommand(command string) *parsedCommand {
	pc := parseWithDepth(command, 0)
	pc.text = command
	return pc
}

func parseWithDepth(command string, depth int) *parsedCommand {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fallbackParse(command)
	}

	pc := &parsedCommand{}
	index := make(map[*syntax.CallExpr]int)
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Stmt:
			for _, r := range n.Redirs {
				rd := redirect{op: r.Op.String()}
				if r.Word != nil {
					rd.path = wordValue(r.Word)
				}
				pc.redirects = append(pc.redirects, rd)
			}
		case *syntax.FuncDecl:
			if isSelfPiping(n) {
				pc.forkBomb = true
			}
		case *syntax.CallExpr:
			if len(n.Args) == 0 {
				return true
			}
			seg := callToSegment(n)
			index[n] = len(pc.segments)
			pc.segments = append(pc.segments, seg)
			if inner := inlineScript(seg); inner != "" && depth+1 < maxParseDepth {
				pc.nested = append(pc.nested, parseWithDepth(inner, depth+1))
			}
		}
		return true
	})

	syntax.Walk(file, func(node syntax.Node) bool {
		bin, ok := node.(*syntax.BinaryCmd)
		if !ok || (bin.Op != syntax.Pipe && bin.Op != syntax.PipeAll) {
			return true
		}
		left, right := lastCall(bin.X), firstCall(bin.Y)
		li, lok := index[left]
		ri, rok := index[right]
		if lok && rok {
			pc.pipes = append(pc.pipes, [2]int{li, ri})
		}
		return true
	})
	return pc
}

// all returns every segment including nested inline scripts.
func (pc *parsedCommand) all() []segment {
	if pc == nil {
		return nil
	}
	out := append([]segment(nil), pc.segments...)
	for _, sub := range pc.nested {
		out = append(out, sub.all()...)
	}
	return out
}

func (pc *parsedCommand) allRedirects() []redirect {
	if pc == nil {
		return nil
	}
	out := append([]redirect(nil), pc.redirects...)
	for _, sub := range pc.nested {
		out = append(out, sub.allRedirects()...)
	}
	return out
}

// anyPipe reports whether some left | right pair satisfies fn, at any depth.
func (pc *parsedCommand) anyPipe(fn func(left, right segment) bool) bool {
	if pc == nil {
		return false
	}
	for _, p := range pc.pipes {
		if fn(pc.segments[p[0]], pc.segments[p[1]]) {
			return true
		}
	}
	for _, sub := range pc.nested {
		if sub.anyPipe(fn) {
			return true
		}
	}
	return false
}

func (pc *parsedCommand) hasForkBomb() bool {
	if pc == nil {
		return false
	}
	if pc.forkBomb {
		return true
	}
	for _, sub := range pc.nested {
		if sub.hasForkBomb() {
			return true
		}
	}
	return false
}

var elevationWrappers = map[string]bool{"sudo": true, "doas": true, "pkexec": true}

// Wrappers whose next word is the real command.
var transparentWrappers = map[string]bool{"nohup": true, "time": true, "exec": true, "command": true, "builtin": true, "env": true, "nice": true, "ionice": true}

// sudo flags that consume the following word.
var sudoValueFlags = map[string]bool{"-u": true, "-g": true, "-h": true, "-p": true, "-C": true, "-D": true, "-r": true, "-t": true, "-U": true}

func callToSegment(call *syntax.CallExpr) segment {
	words := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		words = append(words, wordValue(w))
	}
	return wordsToSegment(words)
}

func wordsToSegment(words []string) segment {
	seg := segment{raw: strings.Join(words, " "), flags: make(map[string]string)}
	rest := words
	for len(rest) > 0 {
		exe := normalizeExe(rest[0])
		rest = rest[1:]
		switch {
		case elevationWrappers[exe]:
			seg.elevation = exe
			rest = skipWrapperFlags(rest, sudoValueFlags)
			continue
		case transparentWrappers[exe]:
			rest = skipWrapperFlags(rest, map[string]bool{"-n": true, "-c": true, "-u": true})
			continue
		}
		seg.exe = exe
		break
	}
	if seg.exe == "" && seg.elevation != "" {
		seg.exe = seg.elevation
	}

	seg.words = rest
	for _, w := range rest {
		switch {
		case strings.HasPrefix(w, "--") && len(w) > 2:
			flag := w[2:]
			if eq := strings.Index(flag, "="); eq >= 0 {
				seg.flags[flag[:eq]] = flag[eq+1:]
			} else {
				seg.flags[flag] = ""
			}
		case strings.HasPrefix(w, "-") && len(w) > 1:
			for _, ch := range w[1:] {
				seg.flags[string(ch)] = ""
			}
		default:
			seg.args = append(seg.args, w)
		}
	}
	return seg
}

// skipWrapperFlags drops leading flags (and VAR=value words) of a wrapper command.
func skipWrapperFlags(words []string, valueFlags map[string]bool) []string {
	for len(words) > 0 {
		w := words[0]
		switch {
		case w == "--":
			return words[1:]
		case valueFlags[w] && len(words) > 1:
			words = words[2:]
		case strings.HasPrefix(w, "-"):
			words = words[1:]
		case strings.Contains(w, "=") && !strings.HasPrefix(w, "="):
			words = words[1:]
		default:
			return words
		}
	}
	return words
}

func normalizeExe(word string) string {
	word = strings.TrimPrefix(word, "\\")
	return filepath.Base(word)
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"ksh": true, "fish": true, "csh": true, "tcsh": true,
}

var codeInterpreters = map[string]bool{
	"python": true, "python3": true, "node": true, "ruby": true, "perl": true, "php": true,
}

func isShell(exe string) bool {
	return shellInterpreters[exe]
}

func isInterpreter(exe string) bool {
	return shellInterpreters[exe] || codeInterpreters[exe]
}

// inlineScript returns the body of `sh -c '...'`.
func inlineScript(seg segment) string {
	if !isShell(seg.exe) || !seg.hasFlag("c") || len(seg.args) == 0 {
		return ""
	}
	return seg.args[0]
}

// wordValue renders a word with quotes removed where that is unambiguous.
func wordValue(word *syntax.Word) string {
	if lit := word.Lit(); lit != "" {
		return lit
	}
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				} else {
					sb.WriteString(printNode(inner))
				}
			}
		default:
			sb.WriteString(printNode(part))
		}
	}
	return sb.String()
}

func printNode(node syntax.Node) string {
	var sb strings.Builder
	_ = syntax.NewPrinter().Print(&sb, node)
	return sb.String()
}

func firstCall(stmt *syntax.Stmt) *syntax.CallExpr {
	if stmt == nil {
		return nil
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return cmd
	case *syntax.BinaryCmd:
		return firstCall(cmd.X)
	case *syntax.Subshell:
		if len(cmd.Stmts) > 0 {
			return firstCall(cmd.Stmts[0])
		}
	case *syntax.Block:
		if len(cmd.Stmts) > 0 {
			return firstCall(cmd.Stmts[0])
		}
	}
	return nil
}

func lastCall(stmt *syntax.Stmt) *syntax.CallExpr {
	if stmt == nil {
		return nil
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return cmd
	case *syntax.BinaryCmd:
		return lastCall(cmd.Y)
	case *syntax.Subshell:
		if n := len(cmd.Stmts); n > 0 {
			return lastCall(cmd.Stmts[n-1])
		}
	case *syntax.Block:
		if n := len(cmd.Stmts); n > 0 {
			return lastCall(cmd.Stmts[n-1])
		}
	}
	return nil
}

// isSelfPiping detects `f(){ f|f& }`, the classic fork bomb shape under any name.
func isSelfPiping(fn *syntax.FuncDecl) bool {
	name := fn.Name.Value
	found := false
	syntax.Walk(fn.Body, func(node syntax.Node) bool {
		bin, ok := node.(*syntax.BinaryCmd)
		if !ok || bin.Op != syntax.Pipe {
			return true
		}
		l, r := firstCall(bin.X), firstCall(bin.Y)
		if l != nil && r != nil && callName(l) == name && callName(r) == name {
			found = true
			return false
		}
		return true
	})
	return found
}

func callName(call *syntax.CallExpr) string {
	if len(call.Args) == 0 {
		return ""
	}
	return call.Args[0].Lit()
}

func fallbackParse(command string) *parsedCommand {
	pc := &parsedCommand{fallback: true}
	compact := strings.Join(strings.Fields(command), "")
	if strings.Contains(compact, ":(){:|:&};:") {
		pc.forkBomb = true
	}
	parts := strings.Split(command, "|")
	for i, part := range parts {
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		pc.segments = append(pc.segments, wordsToSegment(words))
		if i > 0 && len(pc.segments) > 1 {
			pc.pipes = append(pc.pipes, [2]int{len(pc.segments) - 2, len(pc.segments) - 1})
		}
	}
	return pc
}
