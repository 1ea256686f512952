package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("写配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("Address = %s", cfg.Server.Address)
	}
	if cfg.Server.HeartbeatSeconds != 30 {
		t.Fatalf("HeartbeatSeconds = %d", cfg.Server.HeartbeatSeconds)
	}
	if cfg.Storage.AuditStore.Driver != "memory" {
		t.Fatalf("AuditStore.Driver = %s", cfg.Storage.AuditStore.Driver)
	}
	if cfg.EventBus.Driver != "memory" {
		t.Fatalf("EventBus.Driver = %s", cfg.EventBus.Driver)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("DataDir = %s", cfg.Runtime.DataDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
	  "server": {"address": ":9090"},
	  "event_bus": {"driver": "redis", "redis": {"address": "127.0.0.1:6379"}},
	  "storage": {"audit_store": {"driver": "mysql", "dsn": "user:pass@tcp(localhost)/isms"}},
	  "llm": {"provider": "python_bridge", "python_bridge": {"enabled": true, "script_path": "bridge.py"}}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("写配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("Address = %s", cfg.Server.Address)
	}
	if cfg.EventBus.Driver != "redis" || cfg.EventBus.Redis.Address != "127.0.0.1:6379" {
		t.Fatalf("EventBus = %+v", cfg.EventBus)
	}
	if cfg.Storage.AuditStore.Driver != "mysql" {
		t.Fatalf("AuditStore = %+v", cfg.Storage.AuditStore)
	}
	if cfg.LLM.Python.WorkingDir != dir {
		t.Fatalf("WorkingDir = %s", cfg.LLM.Python.WorkingDir)
	}
}

func TestResolvePrefersEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/ismsagent/config.json")
	if got := Resolve("fallback.json"); got != "/etc/ismsagent/config.json" {
		t.Fatalf("Resolve = %s", got)
	}
	t.Setenv(EnvConfigPath, "")
	if got := Resolve("fallback.json"); got != "fallback.json" {
		t.Fatalf("Resolve = %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("期望读取不存在的文件失败")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("期望空路径失败")
	}
}
