package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ent0n29/agentcore/internal/config"
	"github.com/ent0n29/agentcore/internal/engine"
	"github.com/ent0n29/agentcore/internal/gateway"
	"github.com/ent0n29/agentcore/internal/history"
	"github.com/ent0n29/agentcore/internal/httpapi"
	"github.com/ent0n29/agentcore/internal/observability"
	"github.com/ent0n29/agentcore/internal/session"
)

const historyModeDisabled = "disabled"

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Gateway     *gateway.Gateway
	Sessions    *session.Store
	Metrics     *observability.Metrics
	EngineMode  string
	HistoryMode string

	// Cleanup flushes pending history writes and closes the history store.
	// Call it after the gateway has been closed.
	Cleanup func() error
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, registry)

	factory, err := engine.NewFactory(engine.Config{
		Mode:          cfg.EngineMode,
		HTTPURL:       cfg.EngineHTTPURL,
		HTTPTimeout:   cfg.EngineHTTPTimeout,
		MaxRetries:    cfg.EngineMaxRetries,
		MockStepDelay: cfg.EngineMockStepDelay,
		SystemPrompt:  cfg.EngineSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	var (
		store       history.Store
		historyMode = historyModeDisabled
	)
	if cfg.HistoryEnabled {
		store, historyMode, err = history.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("history store init failed: %w", err)
		}
	}
	recorder := history.NewRecorder(store, logger)

	sessions := session.NewStore(factory)
	gw := gateway.New(gateway.Config{
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		PingInterval:   cfg.WSPingInterval,
		OutboundBuffer: cfg.WSOutboundBuffer,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, sessions, metrics, recorder, logger)

	api := httpapi.New(cfg, gw, metrics, registry, httpapi.Status{
		EngineMode:  factory.Mode(),
		HistoryMode: historyMode,
		History:     store,
	}, logger)

	cleanup := func() error {
		recorder.Wait()
		if store == nil {
			return nil
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("close history store: %w", err)
		}
		return nil
	}

	logger.Info("components ready",
		"engine_mode", factory.Mode(),
		"history_mode", historyMode,
	)

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Gateway:     gw,
		Sessions:    sessions,
		Metrics:     metrics,
		EngineMode:  factory.Mode(),
		HistoryMode: historyMode,
		Cleanup:     cleanup,
	}, nil
}
