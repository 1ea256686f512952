package tracker

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ISMS-Agent/pkg/logger"
)

// TrackedObject 是会话内被跟踪的一个 ISMS 对象。
type TrackedObject struct {
	ObjectType   string    `json:"object_type"`
	Name         string    `json:"name"`
	ID           string    `json:"id"`
	ContainerID  string    `json:"container_id,omitempty"`
	Abbreviation string    `json:"abbreviation,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Tracker 记录一个会话中创建过的 ISMS 对象，支持按名称反查。
// 创建记录只追加；名称索引大小写不敏感，同名后写覆盖前写。
type Tracker struct {
	mu      sync.Mutex
	created []TrackedObject
	byName  map[string]TrackedObject
	log     *slog.Logger
}

// New 创建一个空的对象跟踪器。
func New() *Tracker {
	return &Tracker{
		byName: make(map[string]TrackedObject),
		log:    logger.Named("tracker"),
	}
}

// TrackCreation 记录一次对象创建。
func (t *Tracker) TrackCreation(obj TrackedObject) {
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now()
	}

	t.mu.Lock()
	t.created = append(t.created, obj)
	t.byName[strings.ToLower(obj.Name)] = obj
	t.mu.Unlock()

	t.log.Info("记录对象创建",
		slog.String("object_type", obj.ObjectType),
		slog.String("name", obj.Name),
		slog.String("id", obj.ID))
}

// FindByName 按名称查找对象，大小写不敏感。
func (t *Tracker) FindByName(name string) (TrackedObject, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.byName[strings.ToLower(name)]
	return obj, ok
}

// FindByNames 批量查找，未命中的名称被跳过。
func (t *Tracker) FindByNames(names []string) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	found := make([]TrackedObject, 0, len(names))
	for _, name := range names {
		if obj, ok := t.byName[strings.ToLower(name)]; ok {
			found = append(found, obj)
		}
	}
	return found
}

// Recent 返回最近创建的对象，最多 limit 个，按创建顺序排列。
func (t *Tracker) Recent(limit int) []TrackedObject {
	if limit <= 0 {
		limit = 10
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start := 0
	if len(t.created) > limit {
		start = len(t.created) - limit
	}
	out := make([]TrackedObject, len(t.created)-start)
	copy(out, t.created[start:])
	return out
}

// ByType 返回指定类型的全部对象。
func (t *Tracker) ByType(objectType string) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TrackedObject
	for _, obj := range t.created {
		if obj.ObjectType == objectType {
			out = append(out, obj)
		}
	}
	return out
}

// Clear 清空全部跟踪记录。
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.created = nil
	t.byName = make(map[string]TrackedObject)
	t.mu.Unlock()
	t.log.Info("清空对象跟踪器")
}

// Count 返回已跟踪对象数量。
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.created)
}

// Summary 生成面向大模型提示词的对象摘要，最多列出最近 10 个。
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.created) == 0 {
		return "No ISMS objects tracked in this session."
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Tracked %d ISMS object(s):\n", len(t.created))
	start := 0
	if len(t.created) > 10 {
		start = len(t.created) - 10
	}
	for _, obj := range t.created[start:] {
		fmt.Fprintf(&builder, "- %s: %q", obj.ObjectType, obj.Name)
		if obj.Abbreviation != "" {
			fmt.Fprintf(&builder, " (abbr: %s)", obj.Abbreviation)
		}
		builder.WriteString("\n")
	}
	return builder.String()
}
