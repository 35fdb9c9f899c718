package simshell

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/registry"
	"github.com/aretw0/relay/pkg/sandbox"
	"github.com/spf13/afero"
)

// Provider implements ports.LocalProvider. Every Create starts from a fresh
// in-memory filesystem holding the seed files.
type Provider struct {
	seed map[string]string
}

// Option configures the Provider.
type Option func(*Provider)

// WithFiles seeds every new session with files (path -> content).
func WithFiles(files map[string]string) Option {
	return func(p *Provider) {
		for k, v := range files {
			p.seed[k] = v
		}
	}
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{seed: make(map[string]string)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create builds a tool set over a new simulated shell.
func (p *Provider) Create(ctx context.Context) (*registry.Registry, error) {
	fsys := afero.NewMemMapFs()
	for name, content := range p.seed {
		full := path.Clean("/" + name)
		if err := fsys.MkdirAll(path.Dir(full), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(fsys, full, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return Tools(NewShell(fsys)), nil
}

// Tools exposes sh through the standard sandbox tool names.
func Tools(sh *Shell) *registry.Registry {
	var mu sync.Mutex
	run := func(line string) domain.CommandResult {
		mu.Lock()
		defer mu.Unlock()
		return sh.Run(line)
	}

	reg := registry.NewRegistry()
	for _, def := range sandbox.Definitions() {
		switch def.Name {
		case sandbox.ToolBash:
			reg.Register(def, func(ctx context.Context, args map[string]any) (any, error) {
				command, err := sandbox.StringArg(args, "command", false)
				if err != nil {
					return nil, err
				}
				return run(command), nil
			})
		case sandbox.ToolReadFile:
			reg.Register(def, func(ctx context.Context, args map[string]any) (any, error) {
				p, err := sandbox.StringArg(args, "path", false)
				if err != nil {
					return nil, err
				}
				mu.Lock()
				defer mu.Unlock()
				data, err := afero.ReadFile(sh.fs, sh.resolve(p))
				if err != nil {
					return nil, err
				}
				return string(data), nil
			})
		case sandbox.ToolWriteFile:
			reg.Register(def, func(ctx context.Context, args map[string]any) (any, error) {
				p, err := sandbox.StringArg(args, "path", false)
				if err != nil {
					return nil, err
				}
				content, err := sandbox.StringArg(args, "content", false)
				if err != nil {
					return nil, err
				}
				mu.Lock()
				defer mu.Unlock()
				full := sh.resolve(p)
				if err := sh.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
					return nil, err
				}
				if err := afero.WriteFile(sh.fs, full, []byte(content), 0o644); err != nil {
					return nil, err
				}
				return map[string]any{"path": p, "bytes": len(content)}, nil
			})
		case sandbox.ToolListFiles:
			reg.Register(def, func(ctx context.Context, args map[string]any) (any, error) {
				p, err := sandbox.StringArg(args, "path", true)
				if err != nil {
					return nil, err
				}
				if p == "" {
					p = "."
				}
				var sb strings.Builder
				mu.Lock()
				defer mu.Unlock()
				if code := sh.ls([]string{"-A", p}, &sb, &sb); code != 0 {
					return nil, errors.New(strings.TrimSpace(sb.String()))
				}
				return sb.String(), nil
			})
		}
	}
	return reg
}
