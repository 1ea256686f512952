package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/pkg/logger"
)

const defaultChannelSize = 256

// sessionStream 承载单个会话的事件通道与历史环。
// 各会话互不共享锁，避免无关会话互相阻塞。
type sessionStream struct {
	mu      sync.Mutex
	ch      chan Event
	history []Event
}

func (s *sessionStream) appendHistory(event Event) {
	s.mu.Lock()
	s.history = append(s.history, event)
	if len(s.history) > HistoryCapacity {
		s.history = s.history[len(s.history)-HistoryCapacity:]
	}
	s.mu.Unlock()
}

// MemoryBus 是进程内的事件总线实现，每个会话一条有缓冲通道。
type MemoryBus struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionStream
	channelSize int
	log         *slog.Logger
}

var _ Bus = (*MemoryBus)(nil)

// MemoryOption 配置内存总线。
type MemoryOption func(*MemoryBus)

// WithChannelSize 调整每个会话通道的缓冲大小。
func WithChannelSize(size int) MemoryOption {
	return func(b *MemoryBus) {
		if size > 0 {
			b.channelSize = size
		}
	}
}

// NewMemoryBus 创建内存事件总线。
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	bus := &MemoryBus{
		sessions:    make(map[string]*sessionStream),
		channelSize: defaultChannelSize,
		log:         logger.Named("eventbus"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}
	return bus
}

func (b *MemoryBus) stream(sessionID string) *sessionStream {
	b.mu.RLock()
	stream, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if ok {
		return stream
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if stream, ok := b.sessions[sessionID]; ok {
		return stream
	}
	stream = &sessionStream{ch: make(chan Event, b.channelSize)}
	b.sessions[sessionID] = stream
	return stream
}

// Push 向会话推送事件。非法事件或通道已满时丢弃，绝不阻塞。
func (b *MemoryBus) Push(sessionID string, event Event) {
	if err := event.Validate(); err != nil {
		b.log.Warn("丢弃非法事件",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	metrics.CountEvent(event.Type)

	stream := b.stream(sessionID)
	stream.appendHistory(event)

	select {
	case stream.ch <- event:
	default:
		b.log.Warn("会话事件通道已满，丢弃最新事件",
			slog.String("session_id", sessionID),
			slog.String("type", event.Type))
	}
}

// Poll 等待会话的下一条事件，超时或上下文取消返回 false。
func (b *MemoryBus) Poll(ctx context.Context, sessionID string, timeout time.Duration) (Event, bool) {
	stream := b.stream(sessionID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-stream.ch:
		return event, true
	case <-timer.C:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// History 返回会话的历史事件副本，最旧在前。
func (b *MemoryBus) History(sessionID string) []Event {
	b.mu.RLock()
	stream, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	out := make([]Event, len(stream.history))
	copy(out, stream.history)
	return out
}

// ClearHistory 清空会话历史，不影响待消费的事件。
func (b *MemoryBus) ClearHistory(sessionID string) {
	b.mu.RLock()
	stream, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	stream.mu.Lock()
	stream.history = nil
	stream.mu.Unlock()
}

// Dispose 释放一个会话占用的通道与历史。
func (b *MemoryBus) Dispose(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

// Close 释放全部会话。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.sessions = make(map[string]*sessionStream)
	b.mu.Unlock()
	return nil
}
