package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ForesightX/internal/agent"
	"ForesightX/internal/api"
	"ForesightX/internal/auth"
	"ForesightX/internal/character"
	"ForesightX/internal/config"
	"ForesightX/internal/events"
	"ForesightX/internal/knowledge"
	"ForesightX/internal/llm"
	"ForesightX/internal/llm/openai"
	"ForesightX/internal/llm/pythonbridge"
	"ForesightX/internal/observability/alerting"
	"ForesightX/internal/observability/metrics"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/storage/redis"
	"ForesightX/internal/storage/sqldb"
	"ForesightX/internal/task"
	"ForesightX/internal/web3/provider"
	"ForesightX/pkg/logger"
	"ForesightX/pkg/plugin"
)

// Version 是宿主版本，插件的 Requires 约束以它为准。
const Version = "0.1.0"

const (
	fallbackReplyText  = "Sorry, I couldn't process that right now. Please try again later."
	knowledgeMaxResult = 3
)

// App 持有装配完成的运行时组件。
type App struct {
	Config  *config.Config
	Agent   *agent.Agent
	Tasks   *task.Service
	Ledger  ledger.Repository
	Hub     *events.Hub
	Metrics *metrics.Registry
	Auth    *auth.Service
	Plugins *plugin.Manager
	Chains  *provider.Registry

	store     task.Store
	queue     task.Queue
	processor *task.Processor
	alerts    *alerting.FanoutDispatcher
	redis     *goredis.Client
	nats      *events.NATSPublisher

	closers []func() error
	log     *slog.Logger
}

// New 根据配置装配应用。失败时已创建的资源会被释放。
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("配置不能为空")
	}
	a := &App{Config: cfg, log: logger.Named("app")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.initQueue(ctx); err != nil {
		return nil, err
	}

	chains, err := provider.NewRegistry(cfg.Movement)
	if err != nil {
		return nil, err
	}
	a.Chains = chains
	a.closers = append(a.closers, func() error { chains.Close(); return nil })

	llmClient, err := NewLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	char, err := loadCharacter(cfg.Runtime.CharacterFile)
	if err != nil {
		return nil, err
	}
	know, err := loadKnowledge(cfg.Runtime.KnowledgeFile, char)
	if err != nil {
		return nil, err
	}

	a.Hub = events.NewHub()
	a.Metrics = metrics.New()
	observers := []agent.Observer{events.NewLogObserver(), a.Hub, a.Metrics}
	notifiers := []alerting.Notifier{alerting.LogNotifier{}, a.Hub, a.Metrics}
	if cfg.Events.NATSURL != "" {
		pub, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.nats = pub
		a.closers = append(a.closers, pub.Close)
		observers = append(observers, pub)
		notifiers = append(notifiers, pub)
	}
	if cfg.Events.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender: &alerting.WebhookSender{URL: cfg.Events.SlackWebhook},
		})
	}
	a.alerts = alerting.NewFanout(notifiers...)

	if err := a.initPlugins(ctx); err != nil {
		return nil, err
	}

	a.Agent = agent.New(char, llmClient,
		agent.WithMemoryStore(a.memoryStore()),
		agent.WithMemoryDepth(cfg.Runtime.MemoryDepth),
		agent.WithKnowledgeProvider(know),
		agent.WithLLMTimeout(cfg.LLM.OpenAI.Timeout()),
		agent.WithActionTimeout(cfg.Runtime.ActionTimeout()),
		agent.WithJSONRetries(cfg.LLM.JSONRetries),
		agent.WithSettings(cfg),
		agent.WithActionSource(pluginActions{manager: a.Plugins}),
		agent.WithObserver(observers...),
	)

	a.Tasks = task.NewService(a.store, a.queue, cfg.TaskQueue.MaxRetries)
	a.processor = task.NewProcessor(a.Agent, a.store, a.queue, a.queue,
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithRecoveryHandler(task.FallbackReply{Text: fallbackReplyText}),
		task.WithAlertDispatcher(a.alerts),
	)

	if cfg.Auth.Enabled {
		svc, err := auth.NewService(auth.Config{Enabled: true, Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer})
		if err != nil {
			return nil, err
		}
		a.Auth = svc
	}
	return a, nil
}

// initStorage 选择任务存储与交易账本。memory 驱动下账本写入数据目录的 JSONL 文件。
func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config.Storage
	if cfg.Driver == "memory" {
		repo, err := ledger.NewFileRepository(a.Config.Runtime.DataDir)
		if err != nil {
			return err
		}
		a.Ledger = repo
		a.store = task.NewMemoryStore()
		return nil
	}

	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	a.Ledger = ledger.NewSQLRepository(db)
	a.store = task.NewSQLStore(db)
	return nil
}

// initQueue 按驱动创建消息队列。
func (a *App) initQueue(ctx context.Context) error {
	cfg := a.Config.TaskQueue
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		a.queue = task.NewMemoryQueue(cfg.Buffer)
	case "redis":
		q, err := task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		a.queue = q
		a.redis = q.Client()
	case "rabbitmq":
		q, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		a.queue = q
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
	return nil
}

// memoryStore 在使用 Redis 队列时复用同一连接保存房间消息。
func (a *App) memoryStore() agent.MemoryStore {
	if a.redis != nil {
		return redis.NewMemoryStore(a.redis, redis.WithCapacity(a.Config.Runtime.RoomCapacity))
	}
	return agent.NewRingStore(a.Config.Runtime.RoomCapacity)
}

// NewLLMClient 根据配置创建大模型客户端，并套上限流。
func NewLLMClient(cfg *config.Config) (llm.Client, error) {
	var client llm.Client
	switch cfg.LLM.Provider {
	case "python_bridge":
		scriptPath := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		bridge, err := pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, scriptPath, cfg.LLM.Python.WorkingDir)
		if err != nil {
			return nil, err
		}
		client = bridge
	case "", "openai":
		apiKey := cfg.LLM.OpenAI.ResolveAPIKey()
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		oc, err := openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Models: map[llm.ModelClass]string{
				llm.ModelSmall:  cfg.LLM.OpenAI.SmallModel,
				llm.ModelMedium: cfg.LLM.OpenAI.MediumModel,
				llm.ModelLarge:  cfg.LLM.OpenAI.LargeModel,
			},
			Temperature: cfg.LLM.OpenAI.Temperature,
			MaxTokens:   cfg.LLM.OpenAI.MaxTokens,
			Timeout:     cfg.LLM.OpenAI.Timeout(),
			Title:       "ForesightX",
		})
		if err != nil {
			return nil, err
		}
		client = oc
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
	return llm.NewRateLimited(client, cfg.LLM.RequestsPerMinute, cfg.LLM.Burst), nil
}

func loadCharacter(path string) (*character.Character, error) {
	if path == "" {
		return character.Default(), nil
	}
	return character.Load(path)
}

// loadKnowledge 合并知识库文件与人设自带的 knowledge 条目。
func loadKnowledge(path string, char *character.Character) (knowledge.Provider, error) {
	builtin := knowledge.FromLines(char.Knowledge)
	if path == "" {
		return knowledge.NewStaticProvider(builtin, knowledgeMaxResult), nil
	}
	return knowledge.LoadStaticProvider(path, knowledgeMaxResult, builtin...)
}

// Serve 启动事件中心、任务处理器与 HTTP 服务，直到 ctx 结束。
func (a *App) Serve(ctx context.Context) error {
	go a.Hub.Run(ctx)

	processorCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	opts := []api.Option{
		api.WithLedger(a.Ledger),
		api.WithHub(a.Hub),
		api.WithMetrics(a.Metrics),
		api.WithShutdownTimeout(time.Duration(a.Config.Server.ShutdownTimeoutSecs) * time.Second),
	}
	if a.Auth != nil {
		opts = append(opts, api.WithAuth(a.Auth))
	}
	server := api.NewServer(a.Config.Server.Address, a.Tasks, a.Agent, opts...)
	a.log.Info("ForesightX started",
		slog.String("addr", a.Config.Server.Address),
		slog.String("queue", a.Config.TaskQueue.Driver),
		slog.String("storage", a.Config.Storage.Driver),
		slog.Any("alert_channels", a.alerts.Channels()),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close 按创建的逆序释放资源。
func (a *App) Close() error {
	var errs []error
	if a.Plugins != nil {
		errs = append(errs, a.Plugins.StopAll(context.Background()))
	}
	if a.Tasks != nil {
		errs = append(errs, a.Tasks.Close())
	} else {
		if a.queue != nil {
			errs = append(errs, a.queue.Close())
		}
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
	}
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
