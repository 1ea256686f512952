package tool

import (
	"context"
	"testing"

	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/llm"
)

func noopInvoke(context.Context, map[string]any) (any, error) {
	return nil, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Descriptor{Name: "echo", Invoke: noopInvoke}); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if _, ok := registry.Lookup("echo"); !ok {
		t.Fatal("期望能查到已注册的工具")
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatal("不应查到未注册的工具")
	}
	if registry.Count() != 1 {
		t.Fatalf("Count = %d, 期望 1", registry.Count())
	}
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	registry := NewRegistry()
	first := Descriptor{Name: "echo", Description: "v1", Invoke: noopInvoke}
	second := Descriptor{Name: "echo", Description: "v2", Invoke: noopInvoke}
	if err := registry.Register(first); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if err := registry.Register(second); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	desc, ok := registry.Lookup("echo")
	if !ok {
		t.Fatal("期望能查到工具")
	}
	if desc.Description != "v2" {
		t.Fatalf("Description = %q, 期望后注册者覆盖", desc.Description)
	}
	if registry.Count() != 1 {
		t.Fatalf("Count = %d, 期望 1", registry.Count())
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Descriptor{Name: "", Invoke: noopInvoke}); err == nil {
		t.Fatal("期望空名称注册失败")
	}
	if err := registry.Register(Descriptor{Name: "echo"}); err == nil {
		t.Fatal("期望空调用函数注册失败")
	}
}

type stubReasoner struct {
	reply string
}

func (s *stubReasoner) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Reply: s.reply}, nil
}

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	coordinator := isms.NewMemoryCoordinator()
	if err := RegisterBuiltins(registry, coordinator, &stubReasoner{reply: "ok"}); err != nil {
		t.Fatalf("注册内置工具失败: %v", err)
	}
	for _, name := range []string{
		"create_object", "list_objects", "get_object",
		"update_object", "delete_object", "generate_text",
	} {
		if _, ok := registry.Lookup(name); !ok {
			t.Fatalf("缺少内置工具 %s", name)
		}
	}

	desc, _ := registry.Lookup("create_object")
	out, err := desc.Invoke(context.Background(), map[string]any{
		"object_type": "scope",
		"message":     "create scope Headquarters",
	})
	if err != nil {
		t.Fatalf("调用 create_object 失败: %v", err)
	}
	result, ok := out.(map[string]any)
	if !ok || result["type"] != "success" {
		t.Fatalf("create_object 返回 %v, 期望 success", out)
	}

	gen, _ := registry.Lookup("generate_text")
	reply, err := gen.Invoke(context.Background(), map[string]any{"prompt": "hi"})
	if err != nil {
		t.Fatalf("调用 generate_text 失败: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("generate_text 返回 %v, 期望 ok", reply)
	}
}
