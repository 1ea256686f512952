package plugin

import (
	"context"
	"testing"

	"ISMS-Agent/internal/tool"
)

type stubPlugin struct {
	info    Info
	started bool
	stopped bool
}

func (p *stubPlugin) Info() Info                      { return p.info }
func (p *stubPlugin) Configure(map[string]any) error  { return nil }
func (p *stubPlugin) Start(*ExecutionContext) error   { p.started = true; return nil }
func (p *stubPlugin) Stop(*ExecutionContext) error    { p.stopped = true; return nil }
func (p *stubPlugin) Tools() []tool.Descriptor {
	return []tool.Descriptor{{
		Name:        "stub_tool",
		Description: "stub",
		Invoke: func(context.Context, map[string]any) (any, error) {
			return "stub", nil
		},
	}}
}

func TestManagerLifecycleRegistersTools(t *testing.T) {
	registry := tool.NewRegistry()
	manager, err := NewManager(ManagerConfig{}, WithToolRegistry(registry))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	p := &stubPlugin{info: Info{ID: "stub", Category: TypeTool}}
	if err := manager.Register("stub", p, nil, CapabilityPolicy{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := manager.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if !p.started {
		t.Fatal("plugin not started")
	}
	if _, ok := registry.Lookup("stub_tool"); !ok {
		t.Fatal("plugin tool not registered")
	}

	state, err := manager.State("stub")
	if err != nil || state != StateStarted {
		t.Fatalf("state = %s, err = %v", state, err)
	}

	if err := manager.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if !p.stopped {
		t.Fatal("plugin not stopped")
	}
}

func TestManagerRejectsDeniedCapability(t *testing.T) {
	manager, err := NewManager(ManagerConfig{Defaults: CapabilityPolicy{Denied: []Capability{CapabilityExecution}}})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	p := &stubPlugin{info: Info{ID: "risky", Capabilities: []Capability{CapabilityExecution}}}
	if err := manager.Register("risky", p, nil, CapabilityPolicy{}); err == nil {
		t.Fatal("expected denied capability to be rejected")
	}
}

func TestManagerDuplicateRegistration(t *testing.T) {
	manager, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	p := &stubPlugin{info: Info{ID: "stub"}}
	if err := manager.Register("stub", p, nil, CapabilityPolicy{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := manager.Register("stub", p, nil, CapabilityPolicy{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
