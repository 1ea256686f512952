package tool

import (
	"context"
	"sort"
	"strings"
	"sync"

	xerrors "ISMS-Agent/internal/errors"
)

// InvokeFunc 是工具的统一调用签名。
type InvokeFunc func(ctx context.Context, params map[string]any) (any, error)

// Descriptor 描述一个已注册的工具。注册后不可变。
type Descriptor struct {
	Name        string
	Description string
	Invoke      InvokeFunc
}

// Registry 保存进程生命周期内的工具表。
// 同名重复注册时后注册者覆盖前者。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry 创建空的工具表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register 注册一个工具。名称与调用函数都不能为空。
func (r *Registry) Register(desc Descriptor) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	if desc.Invoke == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具调用函数不能为空",
			xerrors.WithMetadata("tool", name))
	}
	desc.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = desc
	return nil
}

// Lookup 按名称查找工具。
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.tools[name]
	return desc, ok
}

// Names 返回全部工具名称，按字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 返回已注册工具数量。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
