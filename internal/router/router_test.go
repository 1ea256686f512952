package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"ISMS-Agent/internal/eventbus"
	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/llm"
	"ISMS-Agent/internal/session"
	"ISMS-Agent/internal/tool"
)

type stubCoordinator struct {
	result *isms.Result
	err    error

	lastOperation  string
	lastObjectType string
	lastMessage    string
}

func (s *stubCoordinator) Dispatch(_ context.Context, operation, objectType, message string) (*isms.Result, error) {
	s.lastOperation = operation
	s.lastObjectType = objectType
	s.lastMessage = message
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubReasoner struct {
	reply string
	err   error
	calls int
}

func (s *stubReasoner) Generate(context.Context, llm.Request) (*llm.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Reply: s.reply}, nil
}

func newTestRouter(t *testing.T, coordinator *stubCoordinator, reasoner *stubReasoner) (*Router, *session.Session, *eventbus.MemoryBus) {
	t.Helper()
	sessions := session.NewManager()
	sess := sessions.Create()
	bus := eventbus.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry, coordinator, reasoner); err != nil {
		t.Fatalf("注册内置工具失败: %v", err)
	}

	router, err := New(sessions, coordinator, reasoner, registry, bus)
	if err != nil {
		t.Fatalf("创建路由器失败: %v", err)
	}
	return router, sess, bus
}

func TestRouteFastPathSuccess(t *testing.T) {
	coordinator := &stubCoordinator{result: &isms.Result{
		Type: "success",
		Text: "created scope \"headquarters\"",
		Data: map[string]any{"id": "s-1", "name": "headquarters"},
	}}
	reasoner := &stubReasoner{reply: "should not be called"}
	router, sess, bus := newTestRouter(t, coordinator, reasoner)

	result := router.Route(context.Background(), sess.ID, "create scope Headquarters")

	if result.Status != "success" || result.Mode != ModeFastPath {
		t.Fatalf("result = %+v", result)
	}
	if result.Type != "tool_result" {
		t.Fatalf("type = %s", result.Type)
	}
	if reasoner.calls != 0 {
		t.Fatal("快速路径不应触发推理协作方")
	}
	if coordinator.lastOperation != "create" || coordinator.lastObjectType != "scope" {
		t.Fatalf("协作方入参 = %s/%s", coordinator.lastOperation, coordinator.lastObjectType)
	}
	if coordinator.lastMessage != "create scope Headquarters" {
		t.Fatalf("message = %q, 期望原始请求", coordinator.lastMessage)
	}

	// 创建成功后对象进入跟踪器。
	if _, ok := sess.Tracker().FindByName("Headquarters"); !ok {
		t.Fatal("创建的对象应被跟踪")
	}

	event, ok := bus.Poll(context.Background(), sess.ID, time.Second)
	if !ok || event.Type != eventbus.TypeFastPathStart {
		t.Fatalf("首个事件 = %+v, 期望 fast_path_start", event)
	}
	if event.Data["operation"] != "create" || event.Data["object_type"] != "scope" {
		t.Fatalf("事件数据 = %+v", event.Data)
	}
}

func TestRouteFastPathCoordinatorError(t *testing.T) {
	coordinator := &stubCoordinator{err: errors.New("backend down")}
	router, sess, _ := newTestRouter(t, coordinator, &stubReasoner{})

	result := router.Route(context.Background(), sess.ID, "list assets")
	if result.Status != "error" || result.Mode != ModeFastPath {
		t.Fatalf("result = %+v", result)
	}
	if result.Result != "backend down" {
		t.Fatalf("result.Result = %v", result.Result)
	}
}

func TestRouteEscalatesUnclassified(t *testing.T) {
	coordinator := &stubCoordinator{}
	reasoner := &stubReasoner{reply: "Here is my summary."}
	router, sess, bus := newTestRouter(t, coordinator, reasoner)

	result := router.Route(context.Background(), sess.ID, "explain the audit findings")

	if result.Status != "success" || result.Mode != ModeEscalated {
		t.Fatalf("result = %+v", result)
	}
	if result.Result != "Here is my summary." {
		t.Fatalf("result.Result = %v", result.Result)
	}
	if reasoner.calls != 1 {
		t.Fatalf("推理调用次数 = %d", reasoner.calls)
	}

	event, ok := bus.Poll(context.Background(), sess.ID, time.Second)
	if !ok || event.Type != eventbus.TypeEscalationStart {
		t.Fatalf("首个事件 = %+v, 期望 escalation_start", event)
	}
}

func TestRouteEscalationRunsChainSpec(t *testing.T) {
	coordinator := &stubCoordinator{result: &isms.Result{
		Type: "success",
		Text: "found 2 asset(s)",
		Data: map[string]any{"names": []any{"laptop", "server"}},
	}}
	reasoner := &stubReasoner{reply: `{"chain":[{"tool":"list_objects","params":{"object_type":"asset"},"store_as":"final"}]}`}
	router, sess, bus := newTestRouter(t, coordinator, reasoner)

	result := router.Route(context.Background(), sess.ID, "tell me everything about our hardware")

	if result.Status != "success" || result.Mode != ModeEscalated {
		t.Fatalf("result = %+v", result)
	}
	final, ok := result.Result.(map[string]any)
	if !ok || final["type"] != "success" {
		t.Fatalf("final = %v", result.Result)
	}
	if result.Data["execution_log"] == nil {
		t.Fatal("链路结果应携带执行日志")
	}

	// escalation_start 之后应有 chain_step 事件。
	types := []string{}
	for {
		event, ok := bus.Poll(context.Background(), sess.ID, 100*time.Millisecond)
		if !ok {
			break
		}
		types = append(types, event.Type)
	}
	wantOrder := []string{eventbus.TypeEscalationStart, eventbus.TypeChainStep, eventbus.TypeOperationDone}
	if len(types) != len(wantOrder) {
		t.Fatalf("事件序列 = %v", types)
	}
	for i, want := range wantOrder {
		if types[i] != want {
			t.Fatalf("事件序列 = %v, 期望 %v", types, wantOrder)
		}
	}
}

func TestRouteEscalationReasonerError(t *testing.T) {
	reasoner := &stubReasoner{err: errors.New("llm unavailable")}
	router, sess, _ := newTestRouter(t, &stubCoordinator{}, reasoner)

	result := router.Route(context.Background(), sess.ID, "explain the audit findings")
	if result.Status != "error" || result.Mode != ModeEscalated {
		t.Fatalf("result = %+v", result)
	}
}

func TestRouteUnknownSession(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubCoordinator{}, &stubReasoner{})
	result := router.Route(context.Background(), "missing", "list assets")
	if result.Status != "error" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRouteAppendsHistory(t *testing.T) {
	coordinator := &stubCoordinator{result: &isms.Result{Type: "success", Text: "ok"}}
	router, sess, _ := newTestRouter(t, coordinator, &stubReasoner{})

	router.Route(context.Background(), sess.ID, "list assets")
	history := sess.History(0)
	if len(history) != 1 {
		t.Fatalf("历史长度 = %d", len(history))
	}
	if history[0].Mode != ModeFastPath || history[0].Reply != "ok" {
		t.Fatalf("历史 = %+v", history[0])
	}
}

func TestRouteTruncatesEventRequest(t *testing.T) {
	coordinator := &stubCoordinator{result: &isms.Result{Type: "success", Text: "ok"}}
	router, sess, bus := newTestRouter(t, coordinator, &stubReasoner{})

	long := "list assets "
	for len(long) < 300 {
		long += "x"
	}
	router.Route(context.Background(), sess.ID, long)

	event, ok := bus.Poll(context.Background(), sess.ID, time.Second)
	if !ok {
		t.Fatal("缺少事件")
	}
	request, _ := event.Data["request"].(string)
	if len([]rune(request)) != 100 {
		t.Fatalf("事件 request 长度 = %d, 期望 100", len([]rune(request)))
	}
}

func TestParseChainSpec(t *testing.T) {
	if _, ok := parseChainSpec("just a sentence"); ok {
		t.Fatal("纯文本不应被当作工具链")
	}
	if _, ok := parseChainSpec(`{"thought":"x"}`); ok {
		t.Fatal("无 chain 字段的对象不应被当作工具链")
	}
	steps, ok := parseChainSpec("```json\n[{\"tool\":\"list_objects\"}]\n```")
	if !ok || len(steps) != 1 || steps[0].Tool != "list_objects" {
		t.Fatalf("steps = %+v", steps)
	}
}
