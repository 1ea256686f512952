package eventbus

import (
	"context"
	"time"
)

// HistoryCapacity 是每个会话保留的历史事件上限，超出后淘汰最旧的。
const HistoryCapacity = 100

// Bus 定义会话事件总线。
//
// Push 面向生产者：校验失败或通道已满只记日志并丢弃，绝不阻塞请求路径、
// 绝不向生产者返回错误。Poll 面向消费者：等待下一条事件直到超时，超时
// 返回 false，由调用方决定发心跳还是断开。同一会话的事件按推送顺序投递，
// 不同会话之间没有顺序约束。
type Bus interface {
	Push(sessionID string, event Event)
	Poll(ctx context.Context, sessionID string, timeout time.Duration) (Event, bool)
	History(sessionID string) []Event
	ClearHistory(sessionID string)
	Dispose(sessionID string)
	Close() error
}
