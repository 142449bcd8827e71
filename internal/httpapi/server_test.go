package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/agentcore/internal/config"
	"github.com/ent0n29/agentcore/internal/engine"
	"github.com/ent0n29/agentcore/internal/gateway"
	"github.com/ent0n29/agentcore/internal/history"
	"github.com/ent0n29/agentcore/internal/observability"
	"github.com/ent0n29/agentcore/internal/session"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *gateway.Gateway) {
	t.Helper()
	return newTestServerWithHistory(t, cfg, history.NewInMemoryStore())
}

func newTestServerWithHistory(t *testing.T, cfg config.Config, store history.Store) (*httptest.Server, *gateway.Gateway) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory, err := engine.NewFactory(engine.Config{Mode: engine.ModeMock})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test_httpapi", registry)
	recorder := history.NewRecorder(store, logger)
	gw := gateway.New(gateway.Config{PingInterval: time.Hour}, session.NewStore(factory), metrics, recorder, logger)
	srv := New(cfg, gw, metrics, registry, Status{
		EngineMode:  factory.Mode(),
		HistoryMode: "memory",
		History:     store,
	}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Close(ctx)
		ts.Close()
		recorder.Wait()
	})
	return ts, gw
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, want %d", url, res.StatusCode, http.StatusOK)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return payload
}

func TestHealthAndReady(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	if got := getJSON(t, ts.URL+"/healthz")["status"]; got != "ok" {
		t.Fatalf("healthz status = %v, want ok", got)
	}
	ready := getJSON(t, ts.URL+"/readyz")
	if ready["engine_mode"] != "mock" || ready["history_mode"] != "memory" {
		t.Fatalf("unexpected readyz payload: %+v", ready)
	}
}

type wireEnvelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wireEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return env
}

func TestWebSocketConversation(t *testing.T) {
	ts, gw := newTestServer(t, config.Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": "login", "data": map[string]any{}}); err != nil {
		t.Fatalf("WriteJSON(login) error = %v", err)
	}
	login := readEnvelope(t, conn)
	if login.Event != "login_response" || login.Data["session_id"] == "" {
		t.Fatalf("unexpected login reply: %+v", login)
	}

	sessionID, _ := login.Data["session_id"].(string)
	status := getJSON(t, ts.URL+"/v1/status")
	if status["connected_clients"] != float64(1) || status["active_sessions"] != float64(1) {
		t.Fatalf("unexpected status: %+v", status)
	}
	sessions, _ := status["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %+v, want one entry", status["sessions"])
	}
	if first, _ := sessions[0].(map[string]any); first["session_id"] != sessionID || first["active_tasks"] != float64(0) {
		t.Fatalf("unexpected session summary: %+v", sessions[0])
	}

	if err := conn.WriteJSON(map[string]any{"event": "agent_request", "data": map[string]any{"message": "ping"}}); err != nil {
		t.Fatalf("WriteJSON(agent_request) error = %v", err)
	}
	ack := readEnvelope(t, conn)
	taskID, _ := ack.Data["task_id"].(string)
	if ack.Event != "agent_request_received" || taskID == "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	var final wireEnvelope
	for final.Event == "" {
		env := readEnvelope(t, conn)
		if env.Data["task_id"] != taskID {
			t.Fatalf("event for unexpected task: %+v", env)
		}
		if env.Event == "agent_response" {
			final = env
		}
	}
	if final.Data["response"] != "I heard you: ping" {
		t.Fatalf("response = %v", final.Data["response"])
	}

	var messages []any
	deadline := time.Now().Add(2 * time.Second)
	for len(messages) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("transcript not recorded: %+v", messages)
		}
		time.Sleep(10 * time.Millisecond)
		messages, _ = getJSON(t, ts.URL+"/v1/sessions/"+sessionID+"/history")["messages"].([]any)
	}
	byRole := map[any]any{}
	for _, m := range messages {
		entry, _ := m.(map[string]any)
		byRole[entry["role"]] = entry["content"]
	}
	if byRole["user"] != "ping" || byRole["assistant"] != "I heard you: ping" {
		t.Fatalf("unexpected transcript: %+v", messages)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline = time.Now().Add(2 * time.Second)
	for gw.ConnectedClients() != 0 || gw.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection not cleaned up: clients=%d sessions=%d", gw.ConnectedClients(), gw.ActiveSessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRootAcceptsWebSocket(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Event != "error" || env.Data["message"] != "Invalid JSON format" {
		t.Fatalf("unexpected reply: %+v", env)
	}
}

func TestPlainGetOnWebSocketRoute(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	res, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCrossOriginRejectedByDefault(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	if err == nil {
		t.Fatalf("Dial() error = nil, want handshake failure")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %+v, want 403", res)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "test_httpapi_connected_clients") {
		t.Fatalf("metrics output missing connected_clients gauge")
	}
}

func TestPerfLatency(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	payload := getJSON(t, ts.URL+"/v1/perf/latency")
	if _, ok := payload["window_size"]; !ok {
		t.Fatalf("missing window_size: %+v", payload)
	}
}

func TestSessionHistoryEndpoint(t *testing.T) {
	store := history.NewInMemoryStore()
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c"} {
		_ = store.SaveMessage(ctx, history.Message{SessionID: "s1", Role: history.RoleUser, Content: content})
	}
	ts, _ := newTestServerWithHistory(t, config.Config{}, store)

	messages, _ := getJSON(t, ts.URL+"/v1/sessions/s1/history?limit=2")["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if first, _ := messages[0].(map[string]any); first["content"] != "b" {
		t.Fatalf("messages[0] = %+v, want content b", messages[0])
	}

	empty, ok := getJSON(t, ts.URL+"/v1/sessions/unknown/history")["messages"].([]any)
	if !ok || len(empty) != 0 {
		t.Fatalf("unknown session messages = %+v, want []", empty)
	}

	res, err := http.Get(ts.URL + "/v1/sessions/s1/history?limit=nope")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestSessionHistoryDisabled(t *testing.T) {
	ts, _ := newTestServerWithHistory(t, config.Config{}, nil)
	res, err := http.Get(ts.URL + "/v1/sessions/s1/history")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
