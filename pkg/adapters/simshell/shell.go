// Package simshell is the local sandbox provider: a tiny shell interpreter over
// an in-memory filesystem. Nothing it does touches the host.
package simshell

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/spf13/afero"
)

// Shell interprets command lines against its filesystem. It is not safe for
// concurrent use; each session gets its own Shell.
type Shell struct {
	fs  afero.Fs
	cwd string
}

// NewShell creates a shell rooted at "/" over fsys.
func NewShell(fsys afero.Fs) *Shell {
	return &Shell{fs: fsys, cwd: "/"}
}

// Cwd returns the current directory.
func (s *Shell) Cwd() string { return s.cwd }

// Run executes a command line. Commands may be chained with "&&", "||" and ";" and
// the output of the last command in a segment may be redirected with > or >>.
func (s *Shell) Run(line string) domain.CommandResult {
	var stdout, stderr strings.Builder
	code := 0

	segments, err := split(line)
	if err != nil {
		return domain.CommandResult{ExitCode: 2, Stderr: "sh: " + err.Error() + "\n"}
	}
	for _, seg := range segments {
		if !seg.runs(code) {
			continue
		}
		code = s.exec(seg, &stdout, &stderr)
	}
	return domain.CommandResult{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

func (s *Shell) exec(seg segment, stdout, stderr *strings.Builder) int {
	if len(seg.argv) == 0 {
		return 0
	}
	out := &strings.Builder{}
	name, args := seg.argv[0], seg.argv[1:]

	var code int
	switch name {
	case "pwd":
		fmt.Fprintln(out, s.cwd)
	case "cd":
		code = s.cd(args, stderr)
	case "echo":
		fmt.Fprintln(out, strings.Join(args, " "))
	case "ls":
		code = s.ls(args, out, stderr)
	case "cat":
		code = s.cat(args, out, stderr)
	case "mkdir":
		code = s.mkdir(args, stderr)
	case "touch":
		code = s.touch(args, stderr)
	case "rm":
		code = s.rm(args, stderr)
	case "true":
	case "false":
		code = 1
	default:
		fmt.Fprintf(stderr, "sh: %s: command not found\n", name)
		return 127
	}

	if seg.redirect == "" {
		stdout.WriteString(out.String())
		return code
	}
	if err := s.write(seg.redirect, out.String(), seg.appendTo); err != nil {
		fmt.Fprintf(stderr, "sh: %s: %v\n", seg.redirect, err)
		return 1
	}
	return code
}

func (s *Shell) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

func (s *Shell) cd(args []string, stderr *strings.Builder) int {
	target := "/"
	if len(args) > 0 {
		target = s.resolve(args[0])
	}
	if ok, _ := afero.DirExists(s.fs, target); !ok {
		fmt.Fprintf(stderr, "cd: %s: No such file or directory\n", target)
		return 1
	}
	s.cwd = target
	return 0
}

func (s *Shell) ls(args []string, out, stderr *strings.Builder) int {
	all, long := false, false
	var targets []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			all = all || strings.ContainsAny(a, "aA")
			long = long || strings.Contains(a, "l")
			continue
		}
		targets = append(targets, a)
	}
	if len(targets) == 0 {
		targets = []string{"."}
	}

	code := 0
	for _, t := range targets {
		p := s.resolve(t)
		info, err := s.fs.Stat(p)
		if err != nil {
			fmt.Fprintf(stderr, "ls: cannot access '%s': No such file or directory\n", t)
			code = 2
			continue
		}
		if !info.IsDir() {
			writeEntry(out, info, long)
			continue
		}
		entries, err := afero.ReadDir(s.fs, p)
		if err != nil {
			fmt.Fprintf(stderr, "ls: %s: %v\n", t, err)
			code = 2
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if !all && strings.HasPrefix(e.Name(), ".") {
				continue
			}
			writeEntry(out, e, long)
		}
	}
	return code
}

func writeEntry(out *strings.Builder, info fs.FileInfo, long bool) {
	name := info.Name()
	if info.IsDir() {
		name += "/"
	}
	if long {
		fmt.Fprintf(out, "%s %8d %s\n", info.Mode().String(), info.Size(), name)
		return
	}
	fmt.Fprintln(out, name)
}

func (s *Shell) cat(args []string, out, stderr *strings.Builder) int {
	code := 0
	for _, a := range args {
		if a == "--" {
			continue
		}
		data, err := afero.ReadFile(s.fs, s.resolve(a))
		if err != nil {
			fmt.Fprintf(stderr, "cat: %s: No such file or directory\n", a)
			code = 1
			continue
		}
		out.Write(data)
	}
	return code
}

func (s *Shell) mkdir(args []string, stderr *strings.Builder) int {
	parents := false
	code := 0
	for _, a := range args {
		if a == "-p" {
			parents = true
			continue
		}
		p := s.resolve(a)
		if !parents {
			if ok, _ := afero.DirExists(s.fs, path.Dir(p)); !ok {
				fmt.Fprintf(stderr, "mkdir: cannot create directory '%s': No such file or directory\n", a)
				code = 1
				continue
			}
			if ok, _ := afero.Exists(s.fs, p); ok {
				fmt.Fprintf(stderr, "mkdir: cannot create directory '%s': File exists\n", a)
				code = 1
				continue
			}
		}
		if err := s.fs.MkdirAll(p, 0o755); err != nil {
			fmt.Fprintf(stderr, "mkdir: %s: %v\n", a, err)
			code = 1
		}
	}
	return code
}

func (s *Shell) touch(args []string, stderr *strings.Builder) int {
	code := 0
	for _, a := range args {
		p := s.resolve(a)
		if ok, _ := afero.Exists(s.fs, p); ok {
			continue
		}
		if err := s.write(a, "", false); err != nil {
			fmt.Fprintf(stderr, "touch: %s: %v\n", a, err)
			code = 1
		}
	}
	return code
}

func (s *Shell) rm(args []string, stderr *strings.Builder) int {
	recursive, force := false, false
	code := 0
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			recursive = recursive || strings.ContainsAny(a, "rR")
			force = force || strings.Contains(a, "f")
			continue
		}
		p := s.resolve(a)
		info, err := s.fs.Stat(p)
		if err != nil {
			if !force {
				fmt.Fprintf(stderr, "rm: cannot remove '%s': No such file or directory\n", a)
				code = 1
			}
			continue
		}
		if info.IsDir() && !recursive {
			fmt.Fprintf(stderr, "rm: cannot remove '%s': Is a directory\n", a)
			code = 1
			continue
		}
		if err := s.fs.RemoveAll(p); err != nil {
			fmt.Fprintf(stderr, "rm: %s: %v\n", a, err)
			code = 1
		}
	}
	return code
}

// write stores content at p (relative to cwd). The parent directory must exist.
func (s *Shell) write(p, content string, appendTo bool) error {
	full := s.resolve(p)
	if ok, _ := afero.DirExists(s.fs, path.Dir(full)); !ok {
		return fmt.Errorf("no such file or directory")
	}
	if appendTo {
		existing, err := afero.ReadFile(s.fs, full)
		if err == nil {
			content = string(existing) + content
		}
	}
	return afero.WriteFile(s.fs, full, []byte(content), 0o644)
}
