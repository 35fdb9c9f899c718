package sandbox

import (
	"fmt"
	"strings"
)

// Default probe candidates. $HOME is expanded by the sandbox shell.
const (
	DefaultWorkspaceDir = "$HOME/workspace"
	DefaultAlternateDir = "/workspace"
	DefaultBaseDir      = "$HOME"
)

// ProbeDirs lists where a remote session may work, in order of preference.
// Workspace is created when missing; the others are only used if they exist.
// "/" is always the last resort.
type ProbeDirs struct {
	Workspace string
	Alternate string
	Base      string
}

// DefaultProbeDirs returns the stock candidates.
func DefaultProbeDirs() ProbeDirs {
	return ProbeDirs{
		Workspace: DefaultWorkspaceDir,
		Alternate: DefaultAlternateDir,
		Base:      DefaultBaseDir,
	}
}

// Script renders the probe. It prints the chosen absolute directory and exits 0.
func (p ProbeDirs) Script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "if [ -d %[1]s ] || mkdir -p %[1]s 2>/dev/null; then cd %[1]s && pwd && exit 0; fi\n", shellWord(p.Workspace))
	for _, dir := range []string{p.Alternate, p.Base} {
		if dir == "" {
			continue
		}
		fmt.Fprintf(&b, "if [ -d %[1]s ]; then cd %[1]s && pwd && exit 0; fi\n", shellWord(dir))
	}
	b.WriteString("cd / && pwd\n")
	return b.String()
}

// shellWord double-quotes s so $VAR expansion still happens but spaces and
// globs do not split it.
func shellWord(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// shellQuote single-quotes s so the shell passes it through verbatim.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// lastLine returns the last non-empty line of out, trimmed.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
