package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/pkg/logger"
)

// RedisBusConfig 描述 Redis 事件总线的连接参数。
type RedisBusConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisBus 使用 Redis list 承载会话事件，适合多实例部署。
// 每个会话两个 key：待消费队列与历史列表，历史通过 LTRIM 限长。
type RedisBus struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus 创建 Redis 事件总线。
func NewRedisBus(cfg RedisBusConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ismsagent"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisBus{client: client, prefix: prefix, log: logger.Named("eventbus")}, nil
}

func (b *RedisBus) queueKey(sessionID string) string {
	return fmt.Sprintf("%s:events:%s", b.prefix, sessionID)
}

func (b *RedisBus) historyKey(sessionID string) string {
	return fmt.Sprintf("%s:history:%s", b.prefix, sessionID)
}

// Push 将事件写入 Redis。失败时只记日志，不向生产者返回错误。
func (b *RedisBus) Push(sessionID string, event Event) {
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

	encoded, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("序列化事件失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}

	ctx := context.Background()
	pipe := b.client.Pipeline()
	pipe.LPush(ctx, b.queueKey(sessionID), encoded)
	pipe.LPush(ctx, b.historyKey(sessionID), encoded)
	pipe.LTrim(ctx, b.historyKey(sessionID), 0, HistoryCapacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warn("Redis 推送事件失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// Poll 通过 BRPOP 阻塞等待下一条事件。
func (b *RedisBus) Poll(ctx context.Context, sessionID string, timeout time.Duration) (Event, bool) {
	values, err := b.client.BRPop(ctx, timeout, b.queueKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil && !errors.Is(err, context.Canceled) {
			b.log.Warn("Redis 取事件失败",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
		return Event{}, false
	}
	if len(values) != 2 {
		return Event{}, false
	}
	var event Event
	if err := json.Unmarshal([]byte(values[1]), &event); err != nil {
		b.log.Warn("解析事件失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return Event{}, false
	}
	return event, true
}

// History 读取会话历史，最旧在前。
func (b *RedisBus) History(sessionID string) []Event {
	values, err := b.client.LRange(context.Background(), b.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		b.log.Warn("Redis 读取历史失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil
	}
	// LPush 写入导致最新在前，翻转成时间正序。
	out := make([]Event, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(values[i]), &event); err != nil {
			continue
		}
		out = append(out, event)
	}
	return out
}

// ClearHistory 删除会话历史。
func (b *RedisBus) ClearHistory(sessionID string) {
	if err := b.client.Del(context.Background(), b.historyKey(sessionID)).Err(); err != nil {
		b.log.Warn("Redis 清空历史失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// Dispose 删除会话的全部 key。
func (b *RedisBus) Dispose(sessionID string) {
	if err := b.client.Del(context.Background(),
		b.queueKey(sessionID), b.historyKey(sessionID)).Err(); err != nil {
		b.log.Warn("Redis 释放会话失败",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// Close 关闭 Redis 连接。
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
