package chain

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "ISMS-Agent/internal/errors"
	"ISMS-Agent/internal/tool"
	"ISMS-Agent/pkg/logger"
)

// Step 描述链路中的一次工具调用。
type Step struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	StoreAs   string         `json:"store_as,omitempty"`
	Condition *Condition     `json:"condition,omitempty"`
	// StopOnError 缺省为 true：未显式设置时步骤失败立即终止整条链。
	StopOnError *bool `json:"stop_on_error,omitempty"`
}

func (s *Step) stopOnError() bool {
	return s.StopOnError == nil || *s.StopOnError
}

// LogEntry 记录单个步骤的执行情况。
type LogEntry struct {
	Step     int            `json:"step"`
	Tool     string         `json:"tool"`
	Params   map[string]any `json:"params,omitempty"`
	Status   string         `json:"status"`
	Result   any            `json:"result,omitempty"`
	StoredAs string         `json:"stored_as,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Result 是整条链的执行结果，失败时携带截止失败点的部分日志与结果集。
type Result struct {
	Status  string         `json:"status"`
	Final   any            `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Log     []LogEntry     `json:"execution_log"`
	Results map[string]any `json:"results"`
}

// Executor 按顺序执行工具链。
type Executor struct {
	registry *tool.Registry
	log      *slog.Logger
}

// NewExecutor 创建链路执行器。
func NewExecutor(registry *tool.Registry) *Executor {
	return &Executor{
		registry: registry,
		log:      logger.Named("chain"),
	}
}

// Execute 依次执行每个步骤。
// 步骤结果按 store_as（缺省 step<N>，从 1 计）写入结果集供后续引用。
// 一旦开始执行便不再接受外部取消，链要么跑完要么因 stop_on_error 终止。
func (e *Executor) Execute(ctx context.Context, steps []Step) *Result {
	results := make(map[string]any)
	executionLog := make([]LogEntry, 0, len(steps))

	for i, step := range steps {
		stepNum := i + 1

		if step.Condition != nil && !step.Condition.evaluate(results) {
			executionLog = append(executionLog, LogEntry{
				Step:   stepNum,
				Tool:   step.Tool,
				Status: StatusSkipped,
				Reason: "条件不满足",
			})
			continue
		}

		entry, value, err := e.runStep(ctx, stepNum, step, results)
		executionLog = append(executionLog, entry)
		if err != nil {
			e.log.Warn("链路步骤失败",
				slog.Int("step", stepNum),
				slog.String("tool", step.Tool),
				slog.String("error", err.Error()))
			if step.stopOnError() {
				return &Result{
					Status:  StatusError,
					Error:   fmt.Sprintf("链路在第 %d 步失败: %v", stepNum, err),
					Log:     executionLog,
					Results: results,
				}
			}
			continue
		}

		storeAs := step.StoreAs
		if storeAs == "" {
			storeAs = fmt.Sprintf("step%d", stepNum)
		}
		results[storeAs] = value
	}

	final, ok := results["final"]
	if !ok {
		final, ok = results[fmt.Sprintf("step%d", len(steps))]
		if !ok {
			final = results
		}
	}

	return &Result{
		Status:  StatusSuccess,
		Final:   final,
		Log:     executionLog,
		Results: results,
	}
}

func (e *Executor) runStep(ctx context.Context, stepNum int, step Step, results map[string]any) (LogEntry, any, error) {
	params, err := resolveParams(step.Params, results)
	if err != nil {
		return LogEntry{Step: stepNum, Tool: step.Tool, Status: StatusError, Error: err.Error()}, nil, err
	}

	desc, ok := e.registry.Lookup(step.Tool)
	if !ok {
		err := xerrors.New(CodeToolNotFound, fmt.Sprintf("工具 %q 未注册", step.Tool))
		return LogEntry{Step: stepNum, Tool: step.Tool, Status: StatusError, Error: err.Error()}, nil, err
	}

	value, err := desc.Invoke(ctx, params)
	if err != nil {
		return LogEntry{Step: stepNum, Tool: step.Tool, Params: params, Status: StatusError, Error: err.Error()}, nil, err
	}

	storeAs := step.StoreAs
	if storeAs == "" {
		storeAs = fmt.Sprintf("step%d", stepNum)
	}
	return LogEntry{
		Step:     stepNum,
		Tool:     step.Tool,
		Params:   params,
		Status:   StatusSuccess,
		Result:   value,
		StoredAs: storeAs,
	}, value, nil
}
