// Package engine is the boundary to the agent reasoning engine. An Engine
// runs one prompt against a per-session ExecutionContext, pushing typed
// progress events to a handler as they happen and returning the final result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventHandler receives progress events in the order the engine produces
// them. A non-nil error aborts the run and is returned from Run.
type EventHandler func(ev ProgressEvent) error

// FinalResult is what a run resolves to once its event stream is exhausted.
type FinalResult struct {
	Response any
}

// Text renders the response for the wire.
func (r FinalResult) Text() string {
	return RenderText(r.Response)
}

// Engine bridges a session to the reasoning backend. Implementations must
// return promptly with ctx.Err() once ctx is cancelled.
type Engine interface {
	Run(ctx context.Context, prompt string, execCtx *ExecutionContext, onEvent EventHandler) (FinalResult, error)
}

var ErrUnsupportedMode = errors.New("unsupported engine mode")

const (
	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

// Config controls engine construction.
type Config struct {
	Mode          string
	HTTPURL       string
	HTTPTimeout   time.Duration
	MaxRetries    int
	MockStepDelay time.Duration
	SystemPrompt  string
}

// Factory builds a fresh Engine for every session.
type Factory struct {
	mode string
	cfg  Config
	http *httpClient
}

func NewFactory(cfg Config) (*Factory, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeAuto
	}
	httpURL := strings.TrimSpace(cfg.HTTPURL)

	switch mode {
	case ModeAuto:
		if httpURL != "" {
			mode = ModeHTTP
		} else {
			mode = ModeMock
		}
	case ModeHTTP:
		if httpURL == "" {
			return nil, errors.New("engine HTTP url is required for http mode")
		}
	case ModeMock:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedMode, cfg.Mode)
	}

	f := &Factory{mode: mode, cfg: cfg}
	if mode == ModeHTTP {
		f.http = newHTTPClient(httpURL, cfg.HTTPTimeout, cfg.MaxRetries)
	}
	return f, nil
}

// Mode reports the resolved backend ("http" or "mock").
func (f *Factory) Mode() string {
	return f.mode
}

// NewEngine returns an engine instance owned by sessionID.
func (f *Factory) NewEngine(_ context.Context, sessionID string) (Engine, error) {
	switch f.mode {
	case ModeHTTP:
		return &HTTPEngine{client: f.http, sessionID: sessionID, systemPrompt: f.cfg.SystemPrompt}, nil
	default:
		return NewMockEngine(f.cfg.MockStepDelay), nil
	}
}

// FactoryFunc adapts a function to the session store's engine factory.
type FactoryFunc func(ctx context.Context, sessionID string) (Engine, error)

func (fn FactoryFunc) NewEngine(ctx context.Context, sessionID string) (Engine, error) {
	return fn(ctx, sessionID)
}
