package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	xerrors "ISMS-Agent/internal/errors"
	"ISMS-Agent/internal/eventbus"
	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/internal/router"
	"ISMS-Agent/internal/session"
	"ISMS-Agent/internal/storage/mysql"
)

// Server 负责暴露 REST 与 SSE 接口，供外部驱动路由器执行。
type Server struct {
	addr      string
	sessions  *session.Manager
	router    *router.Router
	bus       eventbus.Bus
	audit     mysql.OperationRepository
	heartbeat time.Duration
}

// ServerOption 配置 API 服务。
type ServerOption func(*Server)

// WithAuditRepository 启用审计查询接口。
func WithAuditRepository(repo mysql.OperationRepository) ServerOption {
	return func(s *Server) {
		s.audit = repo
	}
}

// WithHeartbeat 调整 SSE 心跳间隔。
func WithHeartbeat(interval time.Duration) ServerOption {
	return func(s *Server) {
		if interval > 0 {
			s.heartbeat = interval
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, sessions *session.Manager, rt *router.Router, bus eventbus.Bus, opts ...ServerOption) *Server {
	server := &Server{
		addr:      addr,
		sessions:  sessions,
		router:    rt,
		bus:       bus,
		heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	return server
}

// Handler 返回完整的路由表，测试可以直接挂到 httptest 上。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", s.instrument("create_session", s.handleCreateSession))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.instrument("delete_session", s.handleDeleteSession))
	mux.HandleFunc("POST /api/v1/sessions/{id}/operations", s.instrument("route_operation", s.handleOperation))
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.handleEventStream)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events/history", s.instrument("event_history", s.handleEventHistory))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/events/history", s.instrument("clear_history", s.handleClearHistory))
	mux.HandleFunc("GET /api/v1/operations", s.instrument("list_operations", s.handleListOperations))
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt.Unix(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.sessions.Delete(id)
	s.bus.Dispose(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	var req struct {
		Request string `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if req.Request == "" {
		http.Error(w, "request 字段不能为空", http.StatusBadRequest)
		return
	}

	result := s.router.Route(r.Context(), id, req.Request)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	history := s.bus.History(id)
	if history == nil {
		history = []eventbus.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": history})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	s.bus.ClearHistory(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "审计存储未启用", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.audit.ListLatest(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": records})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFromError(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// instrument 包装处理函数，记录请求量与时延指标。
func (s *Server) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
