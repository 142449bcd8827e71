package engine

// ProgressEvent is the closed set of intermediate events an engine emits.
// Consumers switch over ToolCall, ToolCallResult, AgentOutput and Other.
type ProgressEvent interface {
	progressEvent()
}

// ToolCall announces that the engine is invoking a tool.
type ToolCall struct {
	ToolName   string
	ToolKwargs map[string]any
}

// ToolCallResult carries a tool's raw output.
type ToolCallResult struct {
	ToolName   string
	ToolOutput any
}

// AgentOutput is the model's own output for a reasoning step.
type AgentOutput struct {
	Output string
}

// Other is any backend event without a wire representation.
type Other struct {
	Kind string
}

func (ToolCall) progressEvent()       {}
func (ToolCallResult) progressEvent() {}
func (AgentOutput) progressEvent()    {}
func (Other) progressEvent()          {}
