package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ISMS-Agent/internal/api"
	"ISMS-Agent/internal/config"
	"ISMS-Agent/internal/eventbus"
	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/knowledge"
	"ISMS-Agent/internal/llm"
	"ISMS-Agent/internal/llm/openai"
	"ISMS-Agent/internal/llm/pythonbridge"
	"ISMS-Agent/internal/observability/metrics"
	"ISMS-Agent/internal/router"
	"ISMS-Agent/internal/session"
	"ISMS-Agent/internal/storage/mysql"
	"ISMS-Agent/internal/tool"
	"ISMS-Agent/pkg/logger"
	"ISMS-Agent/pkg/plugin"
)

// main 是 ISMS Agent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ismsagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	flagPath := flag.String("config", filepath.Join("configs", "ismsagent.json"), "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(config.Resolve(*flagPath))
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	appLog := logger.Named("ismsagentd")

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	auditRepo, err := createAuditRepository(cfg, dataDir)
	if err != nil {
		return err
	}
	if closer, ok := auditRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	bus, err := createEventBus(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			appLog.Warn("关闭事件总线失败", "error", err)
		}
	}()

	coordinator, err := createCoordinator(cfg)
	if err != nil {
		return err
	}

	reasoner, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry, coordinator, reasoner); err != nil {
		return err
	}

	if cfg.Plugins.ConfigPath != "" {
		pluginCfg, err := plugin.LoadManagerConfig(cfg.Plugins.ConfigPath)
		if err != nil {
			return err
		}
		plugins, err := plugin.NewManager(pluginCfg, plugin.WithToolRegistry(registry))
		if err != nil {
			return err
		}
		if err := plugins.StartAll(ctx); err != nil {
			return err
		}
		defer func() {
			if err := plugins.StopAll(context.Background()); err != nil {
				appLog.Warn("停止插件失败", "error", err)
			}
		}()
	}

	sessions := session.NewManager()

	routerOpts := []router.Option{
		router.WithAuditRepository(auditRepo),
	}
	if cfg.Knowledge.Path != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Path, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, router.WithKnowledge(provider))
	}

	rt, err := router.New(sessions, coordinator, reasoner, registry, bus, routerOpts...)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Warn("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, sessions, rt, bus,
		api.WithAuditRepository(auditRepo),
		api.WithHeartbeat(time.Duration(cfg.Server.HeartbeatSeconds)*time.Second),
	)

	appLog.Info("服务启动", "address", cfg.Server.Address,
		"event_bus", cfg.EventBus.Driver, "isms_backend", cfg.ISMS.Backend)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createAuditRepository(cfg *config.Config, dataDir string) (mysql.OperationRepository, error) {
	switch cfg.Storage.AuditStore.Driver {
	case "", "memory":
		return mysql.NewMemoryOperationRepository(dataDir)
	case "mysql":
		return mysql.NewSQLOperationRepository(cfg.Storage.AuditStore.DSN)
	default:
		return nil, fmt.Errorf("未知的审计存储驱动: %s", cfg.Storage.AuditStore.Driver)
	}
}

func createEventBus(cfg *config.Config) (eventbus.Bus, error) {
	switch cfg.EventBus.Driver {
	case "", "memory":
		return eventbus.NewMemoryBus(), nil
	case "redis":
		return eventbus.NewRedisBus(eventbus.RedisBusConfig{
			Address:   cfg.EventBus.Redis.Address,
			Password:  cfg.EventBus.Redis.Password,
			DB:        cfg.EventBus.Redis.DB,
			KeyPrefix: cfg.EventBus.Redis.KeyPrefix,
		})
	case "rabbitmq":
		return eventbus.NewRabbitMQBus(eventbus.RabbitMQBusConfig{
			URL:         cfg.EventBus.RabbitMQ.URL,
			QueuePrefix: cfg.EventBus.RabbitMQ.QueuePrefix,
		})
	default:
		return nil, fmt.Errorf("未知的事件总线驱动: %s", cfg.EventBus.Driver)
	}
}

func createCoordinator(cfg *config.Config) (isms.Coordinator, error) {
	switch cfg.ISMS.Backend {
	case "", "memory":
		return isms.NewMemoryCoordinator(), nil
	case "http":
		return isms.NewHTTPCoordinator(isms.HTTPConfig{
			BaseURL: cfg.ISMS.BaseURL,
			APIKey:  cfg.ISMS.APIKey,
			Timeout: cfg.ISMS.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的 ISMS 后端: %s", cfg.ISMS.Backend)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "python_bridge":
		scriptPath := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, scriptPath, cfg.LLM.Python.WorkingDir)
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("ISMSAGENT_OPENAI_API_KEY"))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或环境变量 ISMSAGENT_OPENAI_API_KEY")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}
