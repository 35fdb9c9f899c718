// Package http serves the step executors and execution records over a JSON
// API described by the embedded openapi.yaml.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/steps"
)

// Service is the part of relay.Relay the API needs.
type Service interface {
	RunCommand(ctx context.Context, in steps.CommandInput) domain.Result
	RunAgent(ctx context.Context, in steps.AgentInput) domain.Result
	RunWorkflow(ctx context.Context, inv steps.Invocation, in steps.RunWorkflowInput) domain.Result
	Execution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error)
}

var _ Service = (*relay.Relay)(nil)

// Server implements ServerInterface.
type Server struct {
	Service Service
	logger  *slog.Logger
}

var _ ServerInterface = (*Server)(nil)

type options struct {
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures NewHandler.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// NewHandler creates the HTTP handler. Requests to API routes are validated
// against the OpenAPI document before they reach a handler.
func NewHandler(svc Service, opts ...Option) (http.Handler, error) {
	o := &options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	validate, err := requestValidator(swagger)
	if err != nil {
		return nil, err
	}

	server := &Server{Service: svc, logger: o.logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		spec, err := rawSpec()
		if err != nil {
			http.Error(w, "Failed to load spec", http.StatusInternalServerError)
			o.logger.Error("failed to load OpenAPI spec", "err", err)
			return
		}
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(spec)
	})
	if o.metrics != nil {
		r.Handle("/metrics", o.metrics)
	}

	r.Group(func(api chi.Router) {
		api.Use(validate)
		HandlerWithOptions(server, ChiServerOptions{
			BaseRouter: api,
			ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
				writeProblem(w, http.StatusBadRequest, domain.ValidationError("%s", err.Error()))
			},
		})
	})
	return r, nil
}

// requestValidator rejects requests that do not match the document. Routes the
// document does not describe pass through.
func requestValidator(doc *openapi3.T) (func(http.Handler) http.Handler, error) {
	doc.Servers = nil
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeProblem(w, http.StatusBadRequest, domain.ValidationError("%s", validationMessage(err)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("parameter %q in %s: %s", reqErr.Parameter.Name, reqErr.Parameter.In, firstLine(reqErr.Err, reqErr.Reason))
		case reqErr.RequestBody != nil:
			return "request body: " + firstLine(reqErr.Err, reqErr.Reason)
		}
	}
	return firstLine(err, "")
}

func firstLine(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}

// GetInfo handles GET /v1/info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "relay-http",
		"version":     relay.Version,
		"api_version": apiVersion,
	})
}

// RunCommand handles POST /v1/steps/command.
func (s *Server) RunCommand(w http.ResponseWriter, r *http.Request) {
	var in steps.CommandInput
	if !s.decode(w, r, &in) {
		return
	}
	s.writeResult(w, "command", s.Service.RunCommand(r.Context(), in))
}

// RunAgent handles POST /v1/steps/agent.
func (s *Server) RunAgent(w http.ResponseWriter, r *http.Request) {
	var in steps.AgentInput
	if !s.decode(w, r, &in) {
		return
	}
	s.writeResult(w, "agent", s.Service.RunAgent(r.Context(), in))
}

type runWorkflowBody struct {
	steps.RunWorkflowInput `mapstructure:",squash"`
	ParentExecutionID      string `mapstructure:"parentExecutionId"`
	ParentWorkflowID       string `mapstructure:"parentWorkflowId"`
}

// RunWorkflow handles POST /v1/steps/run-workflow.
func (s *Server) RunWorkflow(w http.ResponseWriter, r *http.Request, params RunWorkflowParams) {
	var body runWorkflowBody
	if !s.decode(w, r, &body) {
		return
	}
	inv := steps.Invocation{
		UserID:      params.XRelayUser,
		ExecutionID: body.ParentExecutionID,
		WorkflowID:  body.ParentWorkflowID,
	}
	s.writeResult(w, "run_workflow", s.Service.RunWorkflow(r.Context(), inv, body.RunWorkflowInput))
}

// ListExecutions handles GET /v1/executions.
func (s *Server) ListExecutions(w http.ResponseWriter, r *http.Request, params ListExecutionsParams) {
	var filter domain.ExecutionFilter
	if params.WorkflowId != nil {
		filter.WorkflowID = *params.WorkflowId
	}
	if params.Status != nil {
		filter.Status = domain.ExecutionStatus(*params.Status)
	}
	if params.Limit != nil {
		filter.Limit = *params.Limit
	}

	recs, err := s.Service.ListExecutions(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list executions", "err", err)
		writeProblem(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []*domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetExecution handles GET /v1/executions/{id}.
func (s *Server) GetExecution(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.Service.Execution(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, domain.NotFoundError("execution %s not found", id))
			return
		}
		s.logger.Error("failed to load execution", "execution_id", id, "err", err)
		writeProblem(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decode reads a JSON object and maps it onto out the same way node configs
// are, so the API and workflow files accept identical inputs.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeProblem(w, http.StatusBadRequest, domain.ValidationError("invalid request body").WithCause(err))
		return false
	}
	if err := steps.Decode(raw, out); err != nil {
		writeProblem(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) writeResult(w http.ResponseWriter, step string, res domain.Result) {
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Error.Kind)
		s.logger.Debug("step failed", "step", step, "kind", res.Error.Kind, "err", res.Error.Message)
	}
	writeJSON(w, status, res)
}

// statusFor maps a failure kind to a response code. Failures without a kind
// (a command that exited non-zero) are 422.
func statusFor(kind string) int {
	switch kind {
	case "ValidationError":
		return http.StatusBadRequest
	case "NotFoundError":
		return http.StatusNotFound
	case "CycleDetected", "DepthExceeded":
		return http.StatusConflict
	case "ConfigurationError":
		return http.StatusNotImplemented
	case "ResourceProvisioningError", "ToolLoopError":
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func writeProblem(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"message": err.Error(),
		"kind":    domain.KindName(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
