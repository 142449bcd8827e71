package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockEngine provides deterministic local replies when no backend is configured.
// Each run calls an "echo" tool, reports the output, and remembers the prompt.
type MockEngine struct {
	stepDelay time.Duration
}

func NewMockEngine(stepDelay time.Duration) *MockEngine {
	return &MockEngine{stepDelay: stepDelay}
}

func (e *MockEngine) Run(
	ctx context.Context,
	prompt string,
	execCtx *ExecutionContext,
	onEvent EventHandler,
) (FinalResult, error) {
	text := strings.TrimSpace(prompt)
	if text == "" {
		text = "I am listening."
	}

	var previous string
	if execCtx != nil {
		previous, _ = execCtx.LastContent("user")
	}
	reply := buildMockReply(text, previous)

	steps := []ProgressEvent{
		ToolCall{ToolName: "echo", ToolKwargs: map[string]any{"text": text}},
		ToolCallResult{ToolName: "echo", ToolOutput: text},
		AgentOutput{Output: reply},
	}
	for _, ev := range steps {
		if err := e.pause(ctx); err != nil {
			return FinalResult{}, err
		}
		if onEvent == nil {
			continue
		}
		if err := onEvent(ev); err != nil {
			return FinalResult{}, err
		}
	}
	if err := e.pause(ctx); err != nil {
		return FinalResult{}, err
	}

	if execCtx != nil {
		execCtx.Append("user", text)
		execCtx.Append("assistant", reply)
	}
	return FinalResult{Response: reply}, nil
}

func (e *MockEngine) pause(ctx context.Context) error {
	if e.stepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func buildMockReply(text, previous string) string {
	previous = strings.TrimSpace(previous)
	if previous == "" {
		return fmt.Sprintf("I heard you: %s", text)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s", text, previous)
}
