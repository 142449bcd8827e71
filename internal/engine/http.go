package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type httpClient struct {
	url        string
	client     *http.Client
	maxRetries int
}

func newHTTPClient(url string, timeout time.Duration, maxRetries int) *httpClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &httpClient{
		url:        strings.TrimSpace(url),
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// HTTPEngine forwards runs to an agent backend over HTTP. The backend answers
// with an SSE or NDJSON stream of typed JSON events, or a single JSON object.
type HTTPEngine struct {
	client       *httpClient
	sessionID    string
	systemPrompt string
}

type runRequest struct {
	SessionID    string `json:"session_id"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	History      []Turn `json:"history,omitempty"`
}

func (e *HTTPEngine) Run(
	ctx context.Context,
	prompt string,
	execCtx *ExecutionContext,
	onEvent EventHandler,
) (FinalResult, error) {
	req := runRequest{
		SessionID:    e.sessionID,
		Prompt:       prompt,
		SystemPrompt: e.systemPrompt,
	}
	if execCtx != nil {
		req.History = execCtx.Turns()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return FinalResult{}, fmt.Errorf("marshal request: %w", err)
	}

	res, err := e.client.post(ctx, payload)
	if err != nil {
		return FinalResult{}, err
	}
	defer res.Body.Close()

	var result FinalResult
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		result, err = consumeStream(res.Body, true, onEvent)
	case strings.Contains(ct, "application/x-ndjson"):
		result, err = consumeStream(res.Body, false, onEvent)
	default:
		result, err = consumeBody(res.Body)
	}
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, err
	}

	if execCtx != nil {
		execCtx.Append("user", prompt)
		execCtx.Append("assistant", result.Text())
	}
	return result, nil
}

// post sends the run request, retrying transport failures and retryable
// statuses. Nothing has been delivered to the caller yet, so retries are safe.
func (c *httpClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt-1, retryBaseDelay, retryMaxDelay)); err != nil {
				return nil, err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")

		res, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}

		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		lastErr = fmt.Errorf("engine http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if !isRetryableStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// streamEvent is the backend's wire form of one progress or terminal event.
type streamEvent struct {
	Type       string         `json:"type"`
	ToolName   string         `json:"tool_name"`
	ToolKwargs map[string]any `json:"tool_kwargs"`
	ToolOutput any            `json:"tool_output"`
	Output     any            `json:"output"`
	Response   any            `json:"response"`
	Message    string         `json:"message"`
}

var errStreamDone = errors.New("stream done")

func consumeStream(body io.Reader, sse bool, onEvent EventHandler) (FinalResult, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		final    FinalResult
		hasFinal bool
		outputs  []string
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sse {
			// Only data lines carry payloads; event:, id: and comments are skipped.
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var evt streamEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return FinalResult{}, fmt.Errorf("invalid stream event: %w", err)
		}

		ev, err := evt.progress()
		if errors.Is(err, errStreamDone) {
			final = FinalResult{Response: evt.Response}
			hasFinal = true
			continue
		}
		if err != nil {
			return FinalResult{}, err
		}
		if out, ok := ev.(AgentOutput); ok {
			outputs = append(outputs, out.Output)
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return FinalResult{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return FinalResult{}, fmt.Errorf("stream read: %w", err)
	}

	if !hasFinal && len(outputs) > 0 {
		final = FinalResult{Response: outputs[len(outputs)-1]}
	}
	return final, nil
}

func (e streamEvent) progress() (ProgressEvent, error) {
	switch e.Type {
	case "tool_call":
		return ToolCall{ToolName: e.ToolName, ToolKwargs: e.ToolKwargs}, nil
	case "tool_result":
		return ToolCallResult{ToolName: e.ToolName, ToolOutput: e.ToolOutput}, nil
	case "agent_output":
		return AgentOutput{Output: RenderText(e.Output)}, nil
	case "agent_response", "final":
		return nil, errStreamDone
	case "error":
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = "unknown engine error"
		}
		return nil, fmt.Errorf("engine error: %s", msg)
	default:
		return Other{Kind: e.Type}, nil
	}
}

func consumeBody(body io.Reader) (FinalResult, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return FinalResult{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return FinalResult{Response: strings.TrimSpace(string(raw))}, nil
	}
	for _, k := range []string{"response", "output", "text", "message"} {
		if v, ok := obj[k]; ok {
			return FinalResult{Response: v}, nil
		}
	}
	return FinalResult{Response: obj}, nil
}
