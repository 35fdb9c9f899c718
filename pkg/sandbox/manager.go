// Package sandbox acquires execution environments for command and agent steps.
//
// A session is either simulated in-process (KindLocal) or provisioned through a
// remote provider (KindRemote). Both come back as a *Session whose Release must
// run on every exit path:
//
//	sess, err := mgr.Acquire(ctx, sandbox.Request{Kind: sandbox.KindRemote, Token: tok})
//	if err != nil {
//		return err
//	}
//	defer sess.Release()
package sandbox

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/credentials"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/google/uuid"
)

// Request asks for a session. Token is only read for KindRemote.
type Request struct {
	Kind  Kind
	Token string
}

// Acquirer is implemented by Local and Remote only.
type Acquirer interface {
	Kind() Kind
	Acquire(ctx context.Context, req Request) (*Session, error)
	sealed()
}

// Local builds sessions from an in-process provider. Releasing them is a no-op.
type Local struct {
	provider ports.LocalProvider
	env      env
}

// Remote provisions sessions through a RemoteProvider and probes them for a
// working directory.
type Remote struct {
	provider ports.RemoteProvider
	resolver *credentials.Resolver
	probe    ProbeDirs
	env      env
}

type env struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (l *Local) Kind() Kind  { return KindLocal }
func (r *Remote) Kind() Kind { return KindRemote }
func (*Local) sealed()       {}
func (*Remote) sealed()      {}

func (l *Local) Acquire(ctx context.Context, req Request) (*Session, error) {
	tools, err := l.provider.Create(ctx)
	if err != nil {
		return nil, domain.ResourceProvisioningError("failed to create local sandbox").WithCause(err)
	}
	return &Session{
		ID:         uuid.NewString(),
		Kind:       KindLocal,
		WorkingDir: "/",
		Tools:      tools,
		logger:     l.env.logger,
		metrics:    l.env.metrics,
	}, nil
}

func (r *Remote) Acquire(ctx context.Context, req Request) (*Session, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, domain.ConfigurationError("an access token is required for the %s sandbox", KindRemote)
	}
	creds, err := r.resolver.Resolve(req.Token)
	if err != nil {
		return nil, err
	}

	handle, err := r.provider.Create(ctx, creds)
	if err != nil {
		return nil, domain.ResourceProvisioningError("failed to create remote sandbox").WithCause(err)
	}

	sess := &Session{
		ID:       handle.ID(),
		Kind:     KindRemote,
		teardown: handle.Stop,
		logger:   r.env.logger.With("team", creds.TeamID, "project", creds.ProjectID),
		metrics:  r.env.metrics,
	}

	workDir, err := r.resolveWorkDir(ctx, handle)
	if err != nil {
		sess.Release()
		return nil, err
	}

	sess.WorkingDir = workDir
	sess.Tools = remoteTools(handle, workDir)
	return sess, nil
}

func (r *Remote) resolveWorkDir(ctx context.Context, handle ports.RemoteHandle) (string, error) {
	res, err := handle.RunCommand(ctx, "sh", []string{"-c", r.probe.Script()})
	if err != nil {
		return "", domain.ResourceProvisioningError("destination probe failed").WithCause(err)
	}
	if res.ExitCode != 0 {
		return "", domain.ResourceProvisioningError("destination probe exited with code %d", res.ExitCode).
			WithDetail("stderr", res.Stderr)
	}
	dir := lastLine(res.Stdout)
	if dir == "" {
		return "", domain.ResourceProvisioningError("destination probe returned no directory")
	}
	return dir, nil
}

// Manager dispatches requests to the Acquirer registered for their kind.
type Manager struct {
	acquirers map[Kind]Acquirer
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures the Manager.
type Option func(*config)

type config struct {
	local    ports.LocalProvider
	remote   ports.RemoteProvider
	resolver *credentials.Resolver
	probe    ProbeDirs
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// WithLocalProvider enables KindLocal.
func WithLocalProvider(p ports.LocalProvider) Option {
	return func(c *config) { c.local = p }
}

// WithRemoteProvider enables KindRemote.
func WithRemoteProvider(p ports.RemoteProvider) Option {
	return func(c *config) { c.remote = p }
}

// WithResolver replaces the default credentials resolver.
func WithResolver(r *credentials.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithProbeDirs overrides the destination probe candidates.
func WithProbeDirs(p ProbeDirs) Option {
	return func(c *config) { c.probe = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// NewManager creates a Manager. Kinds without a provider are rejected at Acquire.
func NewManager(opts ...Option) *Manager {
	c := &config{
		probe:  DefaultProbeDirs(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = credentials.NewResolver()
	}

	e := env{logger: c.logger, metrics: c.metrics}
	m := &Manager{
		acquirers: make(map[Kind]Acquirer),
		logger:    c.logger,
		metrics:   c.metrics,
	}
	if c.local != nil {
		m.acquirers[KindLocal] = &Local{provider: c.local, env: e}
	}
	if c.remote != nil {
		m.acquirers[KindRemote] = &Remote{provider: c.remote, resolver: c.resolver, probe: c.probe, env: e}
	}
	return m
}

// Acquire returns a live session. The caller owns it and must Release it.
func (m *Manager) Acquire(ctx context.Context, req Request) (*Session, error) {
	if req.Kind == "" {
		req.Kind = KindLocal
	}
	acq, ok := m.acquirers[req.Kind]
	if !ok {
		return nil, domain.ConfigurationError("sandbox kind %q is not configured", req.Kind)
	}

	sess, err := acq.Acquire(ctx, req)
	m.metrics.SessionAcquired(string(req.Kind), err)
	if err != nil {
		m.logger.Debug("sandbox acquisition failed", "kind", req.Kind, "error", err)
		return nil, err
	}
	m.logger.Debug("sandbox acquired", "kind", sess.Kind, "session", sess.ID, "dir", sess.WorkingDir)
	return sess, nil
}

// Kinds lists the configured kinds.
func (m *Manager) Kinds() []Kind {
	out := make([]Kind, 0, len(m.acquirers))
	for _, k := range []Kind{KindLocal, KindRemote} {
		if _, ok := m.acquirers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
