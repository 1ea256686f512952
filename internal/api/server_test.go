package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ISMS-Agent/internal/eventbus"
	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/llm"
	"ISMS-Agent/internal/router"
	"ISMS-Agent/internal/session"
	"ISMS-Agent/internal/tool"
)

type stubReasoner struct {
	reply string
}

func (s *stubReasoner) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Reply: s.reply}, nil
}

func newTestServer(t *testing.T) (*Server, *session.Manager, *eventbus.MemoryBus) {
	t.Helper()
	sessions := session.NewManager()
	bus := eventbus.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	coordinator := isms.NewMemoryCoordinator()
	reasoner := &stubReasoner{reply: "escalated answer"}
	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry, coordinator, reasoner); err != nil {
		t.Fatalf("注册内置工具失败: %v", err)
	}
	rt, err := router.New(sessions, coordinator, reasoner, registry, bus)
	if err != nil {
		t.Fatalf("创建路由器失败: %v", err)
	}

	server := NewServer(":0", sessions, rt, bus, WithHeartbeat(50*time.Millisecond))
	return server, sessions, bus
}

func TestCreateSession(t *testing.T) {
	server, sessions, _ := newTestServer(t)

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if _, err := sessions.Get(body.SessionID); err != nil {
		t.Fatalf("会话未创建: %v", err)
	}
}

func TestRouteOperationEndpoint(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	sess := sessions.Create()

	payload := strings.NewReader(`{"request": "create scope Headquarters"}`)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/operations", payload)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	var result router.OperationResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if result.Status != "success" || result.Mode != router.ModeFastPath {
		t.Fatalf("result = %+v", result)
	}
}

func TestRouteOperationUnknownSession(t *testing.T) {
	server, _, _ := newTestServer(t)

	request := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/missing/operations",
		strings.NewReader(`{"request": "list assets"}`))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestRouteOperationBadBody(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	sess := sessions.Create()

	request := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/operations",
		strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestEventHistoryEndpoints(t *testing.T) {
	server, sessions, bus := newTestServer(t)
	sess := sessions.Create()
	bus.Push(sess.ID, eventbus.NewEvent("fast_path_start", map[string]any{"operation": "list"}))

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID+"/events/history", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body struct {
		Events []eventbus.Event `json:"events"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Type != "fast_path_start" {
		t.Fatalf("events = %+v", body.Events)
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID+"/events/history", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d", recorder.Code)
	}
	if len(bus.History(sess.ID)) != 0 {
		t.Fatal("历史应已清空")
	}
}

func TestDeleteSession(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	sess := sessions.Create()

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d", recorder.Code)
	}
	if _, err := sessions.Get(sess.ID); err == nil {
		t.Fatal("会话应已删除")
	}
}

func TestEventStream(t *testing.T) {
	server, sessions, bus := newTestServer(t)
	sess := sessions.Create()
	bus.Push(sess.ID, eventbus.NewEvent("operation_done", map[string]any{"status": "success"}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID+"/events", nil).WithContext(ctx)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	body := recorder.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Fatalf("缺少 connected 事件: %q", body)
	}
	if !strings.Contains(body, "event: operation_done") {
		t.Fatalf("缺少 operation_done 事件: %q", body)
	}
	if !strings.Contains(body, "event: heartbeat") {
		t.Fatalf("缺少心跳: %q", body)
	}
	if !strings.HasPrefix(recorder.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Content-Type = %s", recorder.Header().Get("Content-Type"))
	}
}
