package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/pkg/logger"
)

// RabbitMQBusConfig 描述 RabbitMQ 事件总线的连接参数。
type RabbitMQBusConfig struct {
	URL         string
	QueuePrefix string
}

// RabbitMQBus 通过 RabbitMQ 投递会话事件，每个会话一个自动删除队列。
// 历史环保存在本进程内：MQ 只承担在途投递，历史查询不跨实例。
type RabbitMQBus struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	prefix string
	log    *slog.Logger

	mu      sync.Mutex
	history map[string][]Event
	queues  map[string]bool
}

var _ Bus = (*RabbitMQBus)(nil)

// NewRabbitMQBus 创建 RabbitMQ 事件总线。
func NewRabbitMQBus(cfg RabbitMQBusConfig) (*RabbitMQBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	prefix := cfg.QueuePrefix
	if prefix == "" {
		prefix = "ismsagent.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	return &RabbitMQBus{
		conn:    conn,
		ch:      ch,
		prefix:  prefix,
		log:     logger.Named("eventbus"),
		history: make(map[string][]Event),
		queues:  make(map[string]bool),
	}, nil
}

func (b *RabbitMQBus) queueName(sessionID string) string {
	return b.prefix + "." + sessionID
}

func (b *RabbitMQBus) ensureQueue(sessionID string) error {
	b.mu.Lock()
	declared := b.queues[sessionID]
	b.mu.Unlock()
	if declared {
		return nil
	}
	if _, err := b.ch.QueueDeclare(b.queueName(sessionID), false, true, false, false, nil); err != nil {
		return err
	}
	b.mu.Lock()
	b.queues[sessionID] = true
	b.mu.Unlock()
	return nil
}

func (b *RabbitMQBus) appendHistory(sessionID string, event Event) {
	b.mu.Lock()
	entries := append(b.history[sessionID], event)
	if len(entries) > HistoryCapacity {
		entries = entries[len(entries)-HistoryCapacity:]
	}
	b.history[sessionID] = entries
	b.mu.Unlock()
}

// Push 发布事件。任何失败都只记日志。
func (b *RabbitMQBus) Push(sessionID string, event Event) {
	if err := event.Validate(); err != nil {
		b.log.Warn("丢弃非法事件",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	if err := b.ensureQueue(sessionID); err != nil {
		b.log.Warn("声明会话队列失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}

	metrics.CountEvent(event.Type)
	b.appendHistory(sessionID, event)

	encoded, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("序列化事件失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}
	err = b.ch.PublishWithContext(context.Background(), "", b.queueName(sessionID), false, false,
		amqp.Publishing{ContentType: "application/json", Body: encoded})
	if err != nil {
		b.log.Warn("RabbitMQ 推送事件失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// Poll 轮询会话队列直到取到事件或超时。
func (b *RabbitMQBus) Poll(ctx context.Context, sessionID string, timeout time.Duration) (Event, bool) {
	if err := b.ensureQueue(sessionID); err != nil {
		b.log.Warn("声明会话队列失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return Event{}, false
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		msg, ok, err := b.ch.Get(b.queueName(sessionID), true)
		if err != nil {
			b.log.Warn("RabbitMQ 取事件失败",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			return Event{}, false
		}
		if ok {
			var event Event
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				b.log.Warn("解析事件失败",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
				return Event{}, false
			}
			return event, true
		}
		if time.Now().After(deadline) {
			return Event{}, false
		}
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-ticker.C:
		}
	}
}

// History 返回本实例记录的会话历史。
func (b *RabbitMQBus) History(sessionID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.history[sessionID]
	out := make([]Event, len(entries))
	copy(out, entries)
	return out
}

// ClearHistory 清空会话历史。
func (b *RabbitMQBus) ClearHistory(sessionID string) {
	b.mu.Lock()
	delete(b.history, sessionID)
	b.mu.Unlock()
}

// Dispose 删除会话队列与历史。
func (b *RabbitMQBus) Dispose(sessionID string) {
	b.mu.Lock()
	delete(b.history, sessionID)
	delete(b.queues, sessionID)
	b.mu.Unlock()
	if _, err := b.ch.QueueDelete(b.queueName(sessionID), false, false, false); err != nil {
		b.log.Warn("删除会话队列失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
