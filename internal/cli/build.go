// Package cli turns a loaded configuration into a running relay.Relay and
// holds the helpers shared by the relay commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/config"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/internal/validator"
	"github.com/aretw0/relay/pkg/adapters/fantasy"
	"github.com/aretw0/relay/pkg/adapters/file"
	"github.com/aretw0/relay/pkg/adapters/loam"
	"github.com/aretw0/relay/pkg/adapters/process"
	"github.com/aretw0/relay/pkg/adapters/redis"
	"github.com/aretw0/relay/pkg/adapters/simshell"
	"github.com/aretw0/relay/pkg/adapters/sqlite"
	"github.com/aretw0/relay/pkg/credentials"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/persistence/middleware"
	"github.com/aretw0/relay/pkg/sandbox"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, domain.ConfigurationError("invalid log level").WithCause(err)
	}
	if strings.EqualFold(cfg.Format, "json") {
		return logging.NewJSON(level), nil
	}
	return logging.New(level), nil
}

// Build opens every adapter cfg names and returns the wired Relay. Adapters
// holding connections are closed by Relay.Close. Anything opened before a
// failure is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rl *relay.Relay, err error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts := []relay.Option{relay.WithLogger(logger)}

	storeOpts, closers, err := executionStore(cfg.Store)
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
		}
	}()
	if err != nil {
		return nil, err
	}
	opts = append(opts, storeOpts...)

	mws, err := storeMiddleware(cfg.Store)
	if err != nil {
		return nil, err
	}
	if len(mws) > 0 {
		opts = append(opts, relay.WithStoreMiddleware(mws...))
	}

	workflows, err := loam.Open(cfg.Workflows.Dir)
	if err != nil {
		return nil, domain.ConfigurationError("failed to open workflows in %s", cfg.Workflows.Dir).WithCause(err)
	}
	opts = append(opts,
		relay.WithWorkflowStore(workflows),
		relay.WithValidator(validator.New(validator.WithIntegrations(cfg.Integrations))),
	)

	sandboxOpts, err := sandboxes(cfg.Sandbox, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, sandboxOpts...)

	if cfg.HasModel() {
		model, err := fantasy.Open(ctx, cfg.ModelSettings(nil))
		if err != nil {
			return nil, err
		}
		opts = append(opts, relay.WithModel(model, cfg.Model.ID))
		if cfg.Model.Instructions != "" {
			opts = append(opts, relay.WithInstructions(cfg.Model.Instructions))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts = append(opts, relay.WithMetrics(observability.NewMetrics(reg)))

	for _, c := range closers {
		opts = append(opts, relay.WithCloser(c))
	}

	rl, err = relay.New(opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("relay ready",
		"store", cfg.Store.Driver,
		"workflows", cfg.Workflows.Dir,
		"remote", cfg.Sandbox.RemoteProvider,
		"agent", rl.HasAgent(),
	)
	return rl, nil
}

func executionStore(cfg config.StoreConfig) ([]relay.Option, []io.Closer, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return []relay.Option{relay.WithExecutionStore(file.New(cfg.Path))}, nil, nil
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, domain.ConfigurationError("failed to open sqlite store").WithCause(err)
		}
		return []relay.Option{relay.WithExecutionStore(store)}, []io.Closer{store}, nil
	case config.DriverRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var storeOpts []redis.Option
		if cfg.Redis.Prefix != "" {
			storeOpts = append(storeOpts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(cfg.Redis.TTL))
		}
		store := redis.NewFromClient(client, storeOpts...)
		opts := []relay.Option{relay.WithExecutionStore(store)}
		if cfg.Redis.Lock {
			opts = append(opts, relay.WithLocker(redis.NewLocker(client, lockPrefix(cfg.Redis.Prefix))))
		}
		return opts, []io.Closer{store}, nil
	}
	return nil, nil, nil
}

func lockPrefix(prefix string) string {
	if prefix == "" {
		return "relay:lock:"
	}
	return prefix + "lock:"
}

// storeMiddleware masks before it encrypts, so masked values never reach the
// ciphertext.
func storeMiddleware(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskKeys) > 0 {
		mws = append(mws, middleware.NewMaskingMiddleware(cfg.MaskKeys))
	}
	if cfg.EncryptionKey == "" {
		return mws, nil
	}

	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, s := range cfg.FallbackKeys {
		k, err := middleware.ParseKey(s)
		if err != nil {
			return nil, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, k)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}

func sandboxes(cfg config.SandboxConfig, logger *slog.Logger) ([]relay.Option, error) {
	opts := []relay.Option{
		relay.WithLocalProvider(simshell.New(simshell.WithFiles(cfg.LocalFiles))),
		relay.WithResolver(credentials.NewResolver(credentials.WithEnvNames(cfg.Env.TeamID, cfg.Env.ProjectID))),
	}
	if cfg.Probe != (config.ProbeConfig{}) {
		opts = append(opts, relay.WithProbeDirs(sandbox.ProbeDirs{
			Workspace: cfg.Probe.Workspace,
			Alternate: cfg.Probe.Alternate,
			Base:      cfg.Probe.Base,
		}))
	}

	if cfg.RemoteProvider != "process" {
		return opts, nil
	}
	providerOpts := []process.ProviderOption{process.WithLogger(logger)}
	if cfg.Commands != "" {
		commands, err := process.LoadCommands(cfg.Commands)
		if err != nil {
			return nil, domain.ConfigurationError("failed to load sandbox commands").WithCause(err)
		}
		providerOpts = append(providerOpts, process.WithCommands(commands))
	}
	if cfg.BaseDir != "" {
		if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create sandbox base dir: %w", err)
		}
		providerOpts = append(providerOpts, process.WithBaseDir(cfg.BaseDir))
	}
	return append(opts, relay.WithRemoteProvider(process.NewProvider(providerOpts...))), nil
}
