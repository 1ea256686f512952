package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ISMS-Agent/internal/chain"
	xerrors "ISMS-Agent/internal/errors"
	"ISMS-Agent/internal/eventbus"
	"ISMS-Agent/internal/intent"
	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/knowledge"
	"ISMS-Agent/internal/llm"
	"ISMS-Agent/internal/observability/alerting"
	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/internal/session"
	"ISMS-Agent/internal/storage/mysql"
	"ISMS-Agent/internal/tool"
	"ISMS-Agent/internal/tracker"
	"ISMS-Agent/pkg/logger"
)

// 路由模式。
const (
	ModeFastPath  = "fast_path"
	ModeEscalated = "escalated"
)

// OperationResult 是一次路由请求的统一出参。
type OperationResult struct {
	Status string         `json:"status"`
	Result any            `json:"result"`
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Mode   string         `json:"mode"`
}

const resultType = "tool_result"

// fastPathOperations 是快速路径支持的操作集合。
var fastPathOperations = map[intent.Operation]bool{
	intent.OperationCreate: true,
	intent.OperationList:   true,
	intent.OperationGet:    true,
	intent.OperationUpdate: true,
	intent.OperationDelete: true,
}

// Router 在快速路径与升级路径之间分流请求。
type Router struct {
	sessions    *session.Manager
	coordinator isms.Coordinator
	reasoner    llm.Client
	registry    *tool.Registry
	executor    *chain.Executor
	bus         eventbus.Bus

	knowledge    knowledge.Provider
	audit        mysql.OperationRepository
	alerts       alerting.Dispatcher
	historyLimit int

	log *slog.Logger
}

// Option 配置路由器的可选依赖。
type Option func(*Router)

// WithKnowledge 注入知识库，用于丰富升级提示词。
func WithKnowledge(provider knowledge.Provider) Option {
	return func(r *Router) {
		r.knowledge = provider
	}
}

// WithAuditRepository 注入操作审计仓库。
func WithAuditRepository(repo mysql.OperationRepository) Option {
	return func(r *Router) {
		r.audit = repo
	}
}

// WithAlertDispatcher 注入告警分发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(r *Router) {
		r.alerts = dispatcher
	}
}

// WithHistoryLimit 设定提供给大模型的历史轮数。
func WithHistoryLimit(limit int) Option {
	return func(r *Router) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// New 创建路由器。
func New(sessions *session.Manager, coordinator isms.Coordinator, reasoner llm.Client,
	registry *tool.Registry, bus eventbus.Bus, opts ...Option) (*Router, error) {
	if sessions == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话管理器不能为空")
	}
	if coordinator == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "CRUD 协作方不能为空")
	}
	if reasoner == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "推理协作方不能为空")
	}
	if registry == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具表不能为空")
	}
	if bus == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "事件总线不能为空")
	}

	router := &Router{
		sessions:     sessions,
		coordinator:  coordinator,
		reasoner:     reasoner,
		registry:     registry,
		executor:     chain.NewExecutor(registry),
		bus:          bus,
		historyLimit: 5,
		log:          logger.Named("router"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router, nil
}

// Route 处理一次请求，返回统一结果。任何内部失败都被折算成
// status=error 的结果，绝不向调用方抛出。
func (r *Router) Route(ctx context.Context, sessionID, request string) *OperationResult {
	started := time.Now()

	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return &OperationResult{
			Status: "error",
			Result: fmt.Sprintf("session %q not found", sessionID),
			Type:   resultType,
			Mode:   ModeFastPath,
		}
	}

	in, classified := intent.Classify(request)

	var result *OperationResult
	if classified && fastPathOperations[in.Operation] {
		result = r.routeFastPath(ctx, sess, in)
	} else {
		result = r.routeEscalated(ctx, sess, request, in, classified)
	}

	r.finish(ctx, sess, request, in, result, time.Since(started))
	return result
}

func (r *Router) routeFastPath(ctx context.Context, sess *session.Session, in intent.Intent) *OperationResult {
	r.bus.Push(sess.ID, eventbus.NewEvent(eventbus.TypeFastPathStart, map[string]any{
		"operation":   string(in.Operation),
		"object_type": in.ObjectType,
		"request":     firstChars(in.Message, 100),
	}))

	outcome, err := r.coordinator.Dispatch(ctx, string(in.Operation), in.ObjectType, in.Message)
	if err != nil {
		r.log.Warn("CRUD 协作方调用失败",
			slog.String("session_id", sess.ID),
			slog.String("operation", string(in.Operation)),
			slog.String("error", err.Error()))
		return &OperationResult{
			Status: "error",
			Result: err.Error(),
			Type:   resultType,
			Mode:   ModeFastPath,
		}
	}

	status := "error"
	if outcome.Succeeded() {
		status = "success"
		if in.Operation == intent.OperationCreate {
			r.trackCreation(sess, in.ObjectType, outcome.Data)
		}
	}

	return &OperationResult{
		Status: status,
		Result: outcome.Text,
		Type:   resultType,
		Data:   outcome.Data,
		Mode:   ModeFastPath,
	}
}

func (r *Router) routeEscalated(ctx context.Context, sess *session.Session, request string, in intent.Intent, classified bool) *OperationResult {
	data := map[string]any{
		"operation":   "",
		"object_type": "",
		"request":     firstChars(request, 100),
	}
	if classified {
		data["operation"] = string(in.Operation)
		data["object_type"] = in.ObjectType
	}
	r.bus.Push(sess.ID, eventbus.NewEvent(eventbus.TypeEscalationStart, data))

	req := llm.Request{
		Request:        request,
		TrackerSummary: sess.Tracker().Summary(),
		History:        sess.History(r.historyLimit),
	}
	if classified {
		req.Operation = string(in.Operation)
		req.ObjectType = in.ObjectType
	}
	if r.knowledge != nil {
		for _, snippet := range r.knowledge.Query(request, req.ObjectType) {
			req.Knowledge = append(req.Knowledge, llm.KnowledgeCard{
				Title:   snippet.Title,
				Content: snippet.Content,
			})
		}
	}

	resp, err := r.reasoner.Generate(ctx, req)
	if err != nil {
		r.log.Warn("推理协作方调用失败",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return &OperationResult{
			Status: "error",
			Result: err.Error(),
			Type:   resultType,
			Mode:   ModeEscalated,
		}
	}

	if steps, ok := parseChainSpec(resp.Reply); ok {
		return r.runChain(ctx, sess, steps)
	}

	return &OperationResult{
		Status: "success",
		Result: resp.Reply,
		Type:   resultType,
		Mode:   ModeEscalated,
	}
}

func (r *Router) runChain(ctx context.Context, sess *session.Session, steps []chain.Step) *OperationResult {
	outcome := r.executor.Execute(ctx, steps)

	for _, entry := range outcome.Log {
		r.bus.Push(sess.ID, eventbus.NewEvent(eventbus.TypeChainStep, map[string]any{
			"step":   entry.Step,
			"tool":   entry.Tool,
			"status": entry.Status,
		}))
	}

	result := &OperationResult{
		Status: outcome.Status,
		Type:   resultType,
		Mode:   ModeEscalated,
		Data: map[string]any{
			"execution_log": outcome.Log,
			"results":       outcome.Results,
		},
	}
	if outcome.Status == chain.StatusSuccess {
		result.Result = outcome.Final
	} else {
		result.Result = outcome.Error
	}
	return result
}

// parseChainSpec 尝试把大模型回复解析成工具链。
// 接受 {"chain":[...]} 与裸数组两种形态，围栏代码块会被剥掉。
func parseChainSpec(reply string) ([]chain.Step, bool) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return nil, false
	}

	var wrapped struct {
		Chain []chain.Step `json:"chain"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped.Chain) > 0 {
		return wrapped.Chain, true
	}

	var bare []chain.Step
	if err := json.Unmarshal([]byte(text), &bare); err == nil && len(bare) > 0 {
		return bare, true
	}
	return nil, false
}

func (r *Router) trackCreation(sess *session.Session, objectType string, data map[string]any) {
	if data == nil {
		return
	}
	name, _ := data["name"].(string)
	id, _ := data["id"].(string)
	if name == "" || id == "" {
		return
	}
	containerID, _ := data["container_id"].(string)
	abbreviation, _ := data["abbreviation"].(string)
	sess.Tracker().TrackCreation(tracker.TrackedObject{
		ObjectType:   objectType,
		Name:         name,
		ID:           id,
		ContainerID:  containerID,
		Abbreviation: abbreviation,
	})
}

// finish 收尾：历史、事件、指标、审计、告警。
func (r *Router) finish(ctx context.Context, sess *session.Session, request string, in intent.Intent, result *OperationResult, elapsed time.Duration) {
	sess.AppendHistory(llm.HistoryEntry{
		Request: request,
		Reply:   resultText(result.Result),
		Mode:    result.Mode,
	})

	r.bus.Push(sess.ID, eventbus.NewEvent(eventbus.TypeOperationDone, map[string]any{
		"status": result.Status,
		"mode":   result.Mode,
	}))

	metrics.ObserveOperation(result.Mode, result.Status, elapsed)

	if r.audit != nil {
		record := mysql.OperationRecord{
			SessionID:  sess.ID,
			Request:    request,
			Operation:  string(in.Operation),
			ObjectType: in.ObjectType,
			Mode:       result.Mode,
			Status:     result.Status,
			Result:     resultText(result.Result),
			CreatedAt:  time.Now().Unix(),
		}
		if err := r.audit.Save(ctx, record); err != nil {
			r.log.Warn("写入审计记录失败",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
		}
	}

	if r.alerts != nil && result.Status == "error" {
		_ = r.alerts.Notify(ctx, alerting.Event{
			Code:       xerrors.CodeCollaboratorFailure,
			Message:    resultText(result.Result),
			Severity:   xerrors.SeverityWarning,
			SessionID:  sess.ID,
			Operation:  string(in.Operation),
			OccurredAt: time.Now(),
		})
	}
}

func resultText(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}

func firstChars(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
