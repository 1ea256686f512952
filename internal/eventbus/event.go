package eventbus

import (
	"strings"
	"time"

	xerrors "ISMS-Agent/internal/errors"
)

// Event 是推送给会话观察者的一条进度事件。
// Timestamp 为 Unix 秒，带小数部分。
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// 路由与链路执行过程中产生的事件类型。
const (
	TypeFastPathStart   = "fast_path_start"
	TypeEscalationStart = "escalation_start"
	TypeChainStep       = "chain_step"
	TypeOperationDone   = "operation_done"
	TypeConnected       = "connected"
	TypeHeartbeat       = "heartbeat"
)

// NewEvent 构造一条带当前时间戳的事件。
func NewEvent(eventType string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// Validate 校验事件结构。缺少类型的事件不允许入队。
func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "事件缺少 type 字段")
	}
	return nil
}
