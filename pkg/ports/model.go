package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/registry"
)

// ModelRequest is one tool-loop invocation.
type ModelRequest struct {
	ModelID      string
	Instructions string
	Prompt       string
	Tools        *registry.Registry
	StepLimit    int
}

// ModelResponse is the final text and the ordered steps the model took.
type ModelResponse struct {
	Text  string
	Steps []domain.LoopStep
}

// ModelClient runs a complete bounded tool-calling conversation.
type ModelClient interface {
	Invoke(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation sent to a LanguageModel.
type Message struct {
	Role       Role
	Text       string
	ToolCalls  []domain.ToolCall
	ToolResult *domain.ToolResult
}

// TurnRequest is a single model turn.
type TurnRequest struct {
	ModelID  string
	System   string
	Messages []Message
	Tools    []domain.Tool
}

// TurnResponse is what the model produced in one turn.
type TurnResponse struct {
	Text         string
	ToolCalls    []domain.ToolCall
	FinishReason string
}

// LanguageModel generates a single turn.
type LanguageModel interface {
	Generate(ctx context.Context, req TurnRequest) (TurnResponse, error)
}
