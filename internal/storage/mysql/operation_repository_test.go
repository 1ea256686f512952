package mysql

import (
	"context"
	"testing"
)

func TestMemoryOperationRepositorySaveAndList(t *testing.T) {
	repo, err := NewMemoryOperationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("创建内存仓库失败: %v", err)
	}

	records := []OperationRecord{
		{SessionID: "s1", Request: "list assets", Operation: "list", ObjectType: "asset", Mode: "fast_path", Status: "success", Result: "ok", CreatedAt: 1},
		{SessionID: "s1", Request: "summarise risks", Mode: "escalated", Status: "success", Result: "done", CreatedAt: 2},
	}
	for _, record := range records {
		if err := repo.Save(context.Background(), record); err != nil {
			t.Fatalf("Save 失败: %v", err)
		}
	}

	latest, err := repo.ListLatest(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListLatest 失败: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("记录数量 = %d, 期望 2", len(latest))
	}
	if latest[0].Request != "summarise risks" {
		t.Fatalf("首条 = %q, 期望时间倒序", latest[0].Request)
	}
}

func TestMemoryOperationRepositoryReload(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewMemoryOperationRepository(dir)
	if err != nil {
		t.Fatalf("创建内存仓库失败: %v", err)
	}
	if err := repo.Save(context.Background(), OperationRecord{SessionID: "s1", Request: "r", Mode: "fast_path", Status: "success", CreatedAt: 1}); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	reloaded, err := NewMemoryOperationRepository(dir)
	if err != nil {
		t.Fatalf("重新加载失败: %v", err)
	}
	latest, err := reloaded.ListLatest(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListLatest 失败: %v", err)
	}
	if len(latest) != 1 || latest[0].SessionID != "s1" {
		t.Fatalf("重载结果 = %+v", latest)
	}
}
