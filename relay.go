package relay

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/engine"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/internal/validator"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/adapters/simshell"
	"github.com/aretw0/relay/pkg/credentials"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/nested"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/persistence/middleware"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/records"
	"github.com/aretw0/relay/pkg/sandbox"
	"github.com/aretw0/relay/pkg/steps"
	"github.com/aretw0/relay/pkg/toolloop"
)

//go:embed VERSION
var version string

// Version is the release of this module.
var Version = strings.TrimSpace(version)

// Relay wires the stores, the sandbox manager, the tool loop and the three
// step executors into one value.
type Relay struct {
	Executions ports.ExecutionStore
	Workflows  ports.WorkflowStore
	Recorder   *records.Recorder
	Sandboxes  *sandbox.Manager
	Controller *nested.Controller
	Engine     *engine.Engine
	Steps      *steps.Set
	Metrics    *observability.Metrics

	command     *steps.CommandStep
	agent       *steps.AgentStep
	runWorkflow *steps.RunWorkflowStep
	validator   ports.IntegrationValidator
	logger      *slog.Logger
	closers     []io.Closer
}

type options struct {
	executions   ports.ExecutionStore
	middleware   []middleware.Middleware
	workflows    ports.WorkflowStore
	validator    ports.IntegrationValidator
	locker       ports.DistributedLocker
	local        ports.LocalProvider
	remote       ports.RemoteProvider
	resolver     *credentials.Resolver
	probe        *sandbox.ProbeDirs
	model        ports.LanguageModel
	modelID      string
	instructions string
	logger       *slog.Logger
	metrics      *observability.Metrics
	closers      []io.Closer
}

// Option configures New.
type Option func(*options)

// WithExecutionStore replaces the in-memory record store.
func WithExecutionStore(store ports.ExecutionStore) Option {
	return func(o *options) { o.executions = store }
}

// WithStoreMiddleware decorates the record store. The first middleware is the
// outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mws...) }
}

// WithWorkflowStore sets where workflow definitions are read from.
func WithWorkflowStore(store ports.WorkflowStore) Option {
	return func(o *options) { o.workflows = store }
}

// WithValidator replaces the default validator, which knows the built-in node
// types and no integrations.
func WithValidator(v ports.IntegrationValidator) Option {
	return func(o *options) { o.validator = v }
}

// WithLocker serializes record writes across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *options) { o.locker = locker }
}

// WithLocalProvider replaces the simulated shell.
func WithLocalProvider(p ports.LocalProvider) Option {
	return func(o *options) { o.local = p }
}

// WithRemoteProvider enables remote sandboxes.
func WithRemoteProvider(p ports.RemoteProvider) Option {
	return func(o *options) { o.remote = p }
}

func WithResolver(r *credentials.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

func WithProbeDirs(p sandbox.ProbeDirs) Option {
	return func(o *options) { o.probe = &p }
}

// WithModel enables the agent step. modelID is used when a request names none.
func WithModel(model ports.LanguageModel, modelID string) Option {
	return func(o *options) {
		o.model = model
		o.modelID = modelID
	}
}

// WithInstructions replaces the default agent instructions.
func WithInstructions(text string) Option {
	return func(o *options) { o.instructions = text }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCloser registers a resource closed by Relay.Close, after the engine has
// drained.
func WithCloser(c io.Closer) Option {
	return func(o *options) { o.closers = append(o.closers, c) }
}

// New builds a Relay. Without options it keeps records in memory, knows no
// workflows, runs commands in the simulated local shell and has no agent step.
func New(opts ...Option) (*Relay, error) {
	o := &options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	if o.executions == nil {
		o.executions = memory.NewStore()
	}
	if o.workflows == nil {
		wfs, err := memory.NewWorkflowStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create workflow store: %w", err)
		}
		o.workflows = wfs
	}
	if o.validator == nil {
		o.validator = validator.New()
	}
	if o.local == nil {
		o.local = simshell.New()
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics(nil)
	}

	store := middleware.Chain(o.executions, o.middleware...)

	recOpts := []records.Option{records.WithLogger(o.logger)}
	if o.locker != nil {
		recOpts = append(recOpts, records.WithLocker(o.locker))
	}
	recorder := records.NewRecorder(store, recOpts...)

	sbOpts := []sandbox.Option{
		sandbox.WithLocalProvider(o.local),
		sandbox.WithLogger(o.logger),
		sandbox.WithMetrics(o.metrics),
	}
	if o.remote != nil {
		sbOpts = append(sbOpts, sandbox.WithRemoteProvider(o.remote))
	}
	if o.resolver != nil {
		sbOpts = append(sbOpts, sandbox.WithResolver(o.resolver))
	}
	if o.probe != nil {
		sbOpts = append(sbOpts, sandbox.WithProbeDirs(*o.probe))
	}
	manager := sandbox.NewManager(sbOpts...)

	eng := engine.New(recorder, engine.WithLogger(o.logger))
	ctrl := nested.NewController(o.workflows, o.validator, eng, recorder,
		nested.WithLogger(o.logger), nested.WithMetrics(o.metrics))

	stepOpts := []steps.Option{steps.WithLogger(o.logger), steps.WithMetrics(o.metrics)}
	r := &Relay{
		Executions:  store,
		Workflows:   o.workflows,
		Recorder:    recorder,
		Sandboxes:   manager,
		Controller:  ctrl,
		Engine:      eng,
		Metrics:     o.metrics,
		command:     steps.NewCommandStep(manager, stepOpts...),
		runWorkflow: steps.NewRunWorkflowStep(ctrl, stepOpts...),
		validator:   o.validator,
		logger:      o.logger,
		closers:     o.closers,
	}
	set := []steps.Step{r.command, r.runWorkflow}

	if o.model != nil {
		runOpts := []toolloop.Option{
			toolloop.WithModelID(o.modelID),
			toolloop.WithLogger(o.logger),
			toolloop.WithMetrics(o.metrics),
		}
		if o.instructions != "" {
			runOpts = append(runOpts, toolloop.WithInstructions(o.instructions))
		}
		runner := toolloop.NewRunner(toolloop.NewStepLoop(o.model, toolloop.WithStepLogger(o.logger)), runOpts...)
		r.agent = steps.NewAgentStep(manager, runner, stepOpts...)
		set = append(set, r.agent)
	}

	r.Steps = steps.NewSet(set...)
	eng.Bind(r.Steps)
	return r, nil
}

// RunCommand runs a single command in a sandbox session.
func (r *Relay) RunCommand(ctx context.Context, in steps.CommandInput) domain.Result {
	return r.command.Run(ctx, in)
}

// RunAgent runs the tool-calling loop. It fails with a ConfigurationError when
// no model is configured.
func (r *Relay) RunAgent(ctx context.Context, in steps.AgentInput) domain.Result {
	if r.agent == nil {
		return domain.Fail(domain.ConfigurationError("no model is configured for the agent step"))
	}
	return r.agent.Run(ctx, in)
}

// RunWorkflow runs a workflow as a child of inv's execution.
func (r *Relay) RunWorkflow(ctx context.Context, inv steps.Invocation, in steps.RunWorkflowInput) domain.Result {
	return r.runWorkflow.Run(ctx, inv, in)
}

// Execute runs a workflow as a root execution and returns its terminal record.
// The workflow must belong to userID and pass validation.
func (r *Relay) Execute(ctx context.Context, workflowID, userID string, input map[string]any) (*domain.ExecutionRecord, error) {
	wf, err := r.Workflows.Find(ctx, workflowID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError("workflow %s not found", workflowID)
		}
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}
	if err := r.validator.Validate(ctx, wf.Nodes, wf.OwnerID); err != nil {
		return nil, err
	}
	r.logger.Debug("executing workflow", "workflow_id", wf.ID, "user_id", userID)
	return r.Engine.Execute(ctx, wf, userID, input)
}

// Execution returns one record.
func (r *Relay) Execution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return r.Executions.FindByID(ctx, id)
}

// ListExecutions returns records newest first.
func (r *Relay) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	return r.Executions.List(ctx, filter)
}

// HasAgent reports whether the agent step is available.
func (r *Relay) HasAgent() bool {
	return r.agent != nil
}

// Close waits for running executions and then closes registered resources.
func (r *Relay) Close() error {
	errs := []error{r.Engine.Close()}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
