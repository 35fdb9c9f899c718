// Package process is a development stand-in for a remote sandbox provider.
// Each session is a fresh temporary directory on the host; commands run as
// host processes with that directory as HOME and working directory.
//
// It is not an isolation boundary. Use it to exercise the remote session path
// without a hosted sandbox.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/google/uuid"
)

// ErrStopped is returned by RunCommand after Stop.
var ErrStopped = errors.New("sandbox session stopped")

// Provider implements ports.RemoteProvider on host processes.
type Provider struct {
	baseDir  string
	commands map[string]CommandConfig
	env      map[string]string
	logger   *slog.Logger
}

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithCommands registers command aliases, typically from LoadCommands.
func WithCommands(commands map[string]CommandConfig) ProviderOption {
	return func(p *Provider) {
		for name, c := range commands {
			p.commands[name] = c
		}
	}
}

// WithBaseDir sets where session directories are created. Defaults to os.TempDir().
func WithBaseDir(dir string) ProviderOption {
	return func(p *Provider) {
		p.baseDir = dir
	}
}

// WithEnvironment adds variables to every command.
func WithEnvironment(env map[string]string) ProviderOption {
	return func(p *Provider) {
		for k, v := range env {
			p.env[k] = v
		}
	}
}

func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a new process provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		commands: make(map[string]CommandConfig),
		env:      make(map[string]string),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create makes a new session directory. The credential identifiers are exported
// to commands as RELAY_TEAM_ID and RELAY_PROJECT_ID; the token is not.
func (p *Provider) Create(ctx context.Context, creds domain.BearerCredential) (ports.RemoteHandle, error) {
	root, err := os.MkdirTemp(p.baseDir, "relay-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	env := []string{
		"HOME=" + root,
		"TMPDIR=" + root,
		"PATH=" + os.Getenv("PATH"),
		"RELAY_TEAM_ID=" + creds.TeamID,
		"RELAY_PROJECT_ID=" + creds.ProjectID,
	}
	env = append(env, envList(p.env)...)

	h := &Handle{
		id:       uuid.NewString(),
		root:     root,
		env:      env,
		commands: p.commands,
	}
	p.logger.Debug("process sandbox created", "session", h.id, "root", root)
	return h, nil
}

// Handle is a live process session.
type Handle struct {
	id       string
	root     string
	env      []string
	commands map[string]CommandConfig

	mu      sync.Mutex
	stopped bool
}

func (h *Handle) ID() string { return h.id }

// Root is the session directory.
func (h *Handle) Root() string { return h.root }

// RunCommand executes cmd (or the alias of that name) in the session root. A
// non-zero exit is reported in the result, not as an error.
func (h *Handle) RunCommand(ctx context.Context, cmd string, args []string) (domain.CommandResult, error) {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return domain.CommandResult{}, ErrStopped
	}

	env := h.env
	if alias, ok := h.commands[cmd]; ok {
		cmd = alias.Command
		args = append(append([]string{}, alias.Args...), args...)
		env = append(append([]string{}, h.env...), envList(alias.Environment)...)
	}

	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = h.root
	c.Env = env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := domain.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	case errors.Is(err, exec.ErrNotFound):
		result.ExitCode = 127
		result.Stderr += fmt.Sprintf("%s: command not found\n", cmd)
		return result, nil
	default:
		return result, fmt.Errorf("failed to run %s: %w", cmd, err)
	}
}

// Stop removes the session directory. Later calls are no-ops.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	if err := os.RemoveAll(h.root); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
