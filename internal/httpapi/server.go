package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/agentcore/internal/config"
	"github.com/ent0n29/agentcore/internal/gateway"
	"github.com/ent0n29/agentcore/internal/history"
	"github.com/ent0n29/agentcore/internal/observability"
)

// Status describes the configured backends. History is nil when transcripts
// are disabled.
type Status struct {
	EngineMode  string
	HistoryMode string
	History     history.Store
}

type Server struct {
	cfg      config.Config
	gateway  *gateway.Gateway
	metrics  *observability.Metrics
	registry *prometheus.Registry
	status   Status
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(
	cfg config.Config,
	gw *gateway.Gateway,
	metrics *observability.Metrics,
	registry *prometheus.Registry,
	status Status,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		gateway:  gw,
		metrics:  metrics,
		registry: registry,
		status:   status,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless any
				// origin is explicitly allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleWS)
	r.Get("/ws", s.handleWS)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", observability.MetricsHandler(s.registry))

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/sessions/{sessionID}/history", s.handleSessionHistory)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"engine_mode":  s.status.EngineMode,
		"history_mode": s.status.HistoryMode,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"connected_clients": s.gateway.ConnectedClients(),
		"active_sessions":   s.gateway.ActiveSessions(),
		"sessions":          s.gateway.Sessions(),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.status.History == nil {
		respondError(w, http.StatusNotFound, "history_disabled", "transcript history is disabled")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := s.status.History.RecentBySession(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   msgs,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		respondError(w, http.StatusBadRequest, "websocket_required", "this endpoint only accepts websocket upgrades")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := s.gateway.ServeConn(r.Context(), conn); err != nil {
		s.logger.Warn("connection ended with error", "remote_addr", r.RemoteAddr, "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
