package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ISMS-Agent/internal/eventbus"
)

// handleEventStream 以 SSE 形式推送会话事件。
// 连接建立先发 connected 事件；随后每取到一条事件推一条，
// 等待超时则发心跳保活。单会话同时只应有一个活跃订阅者。
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "不支持流式响应", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, eventbus.NewEvent(eventbus.TypeConnected, map[string]any{"session_id": id}))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		event, ok := s.bus.Poll(ctx, id, s.heartbeat)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			writeSSE(w, eventbus.NewEvent(eventbus.TypeHeartbeat, nil))
			flusher.Flush()
			continue
		}
		writeSSE(w, event)
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event eventbus.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
}
