// Package mcp exposes the step executors as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/steps"
)

// ExecutionsURI lists the most recent execution records.
const ExecutionsURI = "relay://executions"

// Service is the part of relay.Relay the MCP server needs.
type Service interface {
	RunCommand(ctx context.Context, in steps.CommandInput) domain.Result
	RunAgent(ctx context.Context, in steps.AgentInput) domain.Result
	RunWorkflow(ctx context.Context, inv steps.Invocation, in steps.RunWorkflowInput) domain.Result
	Execution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error)
}

var _ Service = (*relay.Relay)(nil)

// Server wraps a Service as an MCP server.
type Server struct {
	svc       Service
	logger    *slog.Logger
	agent     bool
	mcpServer *server.MCPServer
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithoutAgent leaves run_agent unregistered, for deployments without a model.
func WithoutAgent() Option {
	return func(s *Server) { s.agent = false }
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		logger:    logging.NewNop(),
		agent:     true,
		mcpServer: server.NewMCPServer("relay-mcp", relay.Version, server.WithToolCapabilities(false), server.WithResourceCapabilities(false, false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout. Logs must go to Stderr.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over Server-Sent Events on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var sandboxTypes = mcp.Enum("local", "remote")

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Run one shell command in a sandbox session and return its output."),
		mcp.WithString("command", mcp.Required(), mcp.Description("The command line to run")),
		mcp.WithString("sandboxType", sandboxTypes, mcp.Description("Where to run it (default local)")),
		mcp.WithString("token", mcp.Description("Bearer token for remote sandboxes")),
	), s.handleRunCommand)

	if s.agent {
		s.mcpServer.AddTool(mcp.NewTool("run_agent",
			mcp.WithDescription("Let a model work on a task with shell and file tools inside a sandbox session."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The task")),
			mcp.WithString("instructions", mcp.Description("System instructions (optional)")),
			mcp.WithString("model", mcp.Description("Model id (optional)")),
			mcp.WithNumber("maxSteps", mcp.Description("Step ceiling, 1 to 50 (default 10)")),
			mcp.WithString("sandboxType", sandboxTypes, mcp.Description("Where to run it (default local)")),
			mcp.WithString("token", mcp.Description("Bearer token for remote sandboxes")),
		), s.handleRunAgent)
	}

	s.mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Run a workflow as a child execution and wait for its result."),
		mcp.WithString("workflowId", mcp.Required(), mcp.Description("The workflow to run")),
		mcp.WithString("userId", mcp.Required(), mcp.Description("The user the workflow belongs to")),
		mcp.WithObject("input", mcp.Description("Input passed to the workflow")),
		mcp.WithString("parentExecutionId", mcp.Description("The execution issuing the call, for cycle detection")),
		mcp.WithString("parentWorkflowId", mcp.Description("The workflow issuing the call")),
	), s.handleRunWorkflow)

	s.mcpServer.AddTool(mcp.NewTool("get_execution",
		mcp.WithDescription("Read an execution record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Execution id")),
	), s.handleGetExecution)
}

func (s *Server) handleRunCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in steps.CommandInput
	if err := steps.Decode(request.GetArguments(), &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.svc.RunCommand(ctx, in))
}

func (s *Server) handleRunAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in steps.AgentInput
	if err := steps.Decode(request.GetArguments(), &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.svc.RunAgent(ctx, in))
}

type runWorkflowArgs struct {
	steps.RunWorkflowInput `mapstructure:",squash"`
	UserID                 string `mapstructure:"userId"`
	ParentExecutionID      string `mapstructure:"parentExecutionId"`
	ParentWorkflowID       string `mapstructure:"parentWorkflowId"`
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args runWorkflowArgs
	if err := steps.Decode(request.GetArguments(), &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.UserID == "" {
		return mcp.NewToolResultError("userId is required"), nil
	}
	inv := steps.Invocation{UserID: args.UserID, ExecutionID: args.ParentExecutionID, WorkflowID: args.ParentWorkflowID}
	return toolResult(s.svc.RunWorkflow(ctx, inv, args.RunWorkflowInput))
}

func (s *Server) handleGetExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Execution(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("execution %s not found", id)), nil
		}
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return jsonResult(rec, false)
}

// toolResult returns the step result as JSON text. Failed steps are flagged
// as tool errors so the calling model sees them as such.
func toolResult(res domain.Result) (*mcp.CallToolResult, error) {
	return jsonResult(res, !res.Success)
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = isError
	return result, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ExecutionsURI, "Recent executions",
		mcp.WithResourceDescription("The 50 most recent execution records, newest first."),
		mcp.WithMIMEType("application/json"),
	), s.handleExecutionsResource)
}

func (s *Server) handleExecutionsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	recs, err := s.svc.ListExecutions(ctx, domain.ExecutionFilter{Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	if recs == nil {
		recs = []*domain.ExecutionRecord{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executions: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ExecutionsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
