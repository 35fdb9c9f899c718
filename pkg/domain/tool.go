package domain

// ToolCall is a model request to invoke a tool from the session's tool set.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`                         // Provider-assigned call id
	Name string         `json:"name" yaml:"name" mapstructure:"name"`                   // Tool name
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"` // Decoded arguments
}

// ToolResult is the outcome of a ToolCall fed back to the model.
type ToolResult struct {
	ID      string `json:"id"` // Must match the ToolCall.ID
	Name    string `json:"name,omitempty"`
	Result  any    `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool describes a tool to the model. Parameters is a JSON schema object.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// LoopStep is one model turn of a tool loop: the text the model produced and
// the tool calls it made, with their results.
type LoopStep struct {
	Index        int          `json:"index"`
	Text         string       `json:"text,omitempty"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults  []ToolResult `json:"toolResults,omitempty"`
	FinishReason string       `json:"finishReason,omitempty"`
}

// CommandResult is the outcome of one shell command in a sandbox session.
type CommandResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}
