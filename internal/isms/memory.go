package isms

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryCoordinator 是内存实现，面向本地开发与测试。
// 它只维护对象的名称与标识，不承载任何真实的 ISMS 业务语义。
type MemoryCoordinator struct {
	mu      sync.Mutex
	objects map[string]map[string]string // object_type -> name(lower) -> id
}

var _ Coordinator = (*MemoryCoordinator)(nil)

// NewMemoryCoordinator 创建内存协作方。
func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{objects: make(map[string]map[string]string)}
}

var namePattern = regexp.MustCompile(`^(?:create|update|get|show|view|display|delete|remove)\s+\w+\s+(.+)$`)

// extractName 从原始请求中截取对象名称部分。
func extractName(message string) string {
	match := namePattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(message)))
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// Dispatch 执行一次内存 CRUD 操作。
func (c *MemoryCoordinator) Dispatch(_ context.Context, operation, objectType, message string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.objects[objectType]
	if bucket == nil {
		bucket = make(map[string]string)
		c.objects[objectType] = bucket
	}

	name := extractName(message)
	switch operation {
	case "create":
		if name == "" {
			return &Result{Type: ResultTypeError, Text: fmt.Sprintf("missing %s name", objectType)}, nil
		}
		id := uuid.NewString()
		bucket[name] = id
		return &Result{
			Type: ResultTypeSuccess,
			Text: fmt.Sprintf("created %s %q", objectType, name),
			Data: map[string]any{"id": id, "name": name, "object_type": objectType},
		}, nil
	case "list":
		names := make([]string, 0, len(bucket))
		for n := range bucket {
			names = append(names, n)
		}
		sort.Strings(names)
		return &Result{
			Type: ResultTypeSuccess,
			Text: fmt.Sprintf("found %d %s(s)", len(names), objectType),
			Data: map[string]any{"names": names, "object_type": objectType},
		}, nil
	case "get":
		id, ok := bucket[name]
		if !ok {
			return &Result{Type: ResultTypeError, Text: fmt.Sprintf("%s %q not found", objectType, name)}, nil
		}
		return &Result{
			Type: ResultTypeSuccess,
			Text: fmt.Sprintf("%s %q", objectType, name),
			Data: map[string]any{"id": id, "name": name, "object_type": objectType},
		}, nil
	case "update":
		id, ok := bucket[name]
		if !ok {
			return &Result{Type: ResultTypeError, Text: fmt.Sprintf("%s %q not found", objectType, name)}, nil
		}
		return &Result{
			Type: ResultTypeSuccess,
			Text: fmt.Sprintf("updated %s %q", objectType, name),
			Data: map[string]any{"id": id, "name": name, "object_type": objectType},
		}, nil
	case "delete":
		if _, ok := bucket[name]; !ok {
			return &Result{Type: ResultTypeError, Text: fmt.Sprintf("%s %q not found", objectType, name)}, nil
		}
		delete(bucket, name)
		return &Result{
			Type: ResultTypeSuccess,
			Text: fmt.Sprintf("deleted %s %q", objectType, name),
		}, nil
	default:
		return &Result{Type: ResultTypeError, Text: fmt.Sprintf("unsupported operation %q", operation)}, nil
	}
}
