package ismsagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Session{SessionID: "sess-1", CreatedAt: 1700000000})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	sess, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %s", sess.SessionID)
	}
}

func TestRouteOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/sess-1/operations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if payload["request"] != "create scope Headquarters" {
			t.Fatalf("unexpected request: %q", payload["request"])
		}
		_ = json.NewEncoder(w).Encode(OperationResult{
			Status: "success",
			Result: "已创建 scope Headquarters",
			Type:   "tool_result",
			Mode:   "fast_path",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	result, err := client.RouteOperation(context.Background(), "sess-1", "create scope Headquarters")
	if err != nil {
		t.Fatalf("route operation: %v", err)
	}
	if result.Mode != "fast_path" || result.Status != "success" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEventHistoryAndClear(t *testing.T) {
	cleared := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/sess-1/events/history" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"events": []Event{{Type: "fast_path_start", Timestamp: 1700000000.5}},
			})
		case http.MethodDelete:
			cleared = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	events, err := client.EventHistory(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("event history: %v", err)
	}
	if len(events) != 1 || events[0].Type != "fast_path_start" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := client.ClearEventHistory(context.Background(), "sess-1"); err != nil {
		t.Fatalf("clear history: %v", err)
	}
	if !cleared {
		t.Fatal("history was not cleared")
	}
}

func TestRouteOperationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "会话不存在", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.RouteOperation(context.Background(), "missing", "list scopes")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}
