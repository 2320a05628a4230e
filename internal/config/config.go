package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "FORESIGHTX_CONFIG"

// 运行时读取的链上设置项名称。
const (
	SettingPrivateKey       = "MOVEMENT_PRIVATE_KEY"
	SettingNetwork          = "MOVEMENT_NETWORK"
	SettingPredictionMarket = "PREDICTION_MARKET_CONTRACT"
)

// Config 描述了 ForesightX 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig      `json:"server"`
	Auth      AuthConfig        `json:"auth"`
	Logging   LoggingConfig     `json:"logging"`
	LLM       LLMConfig         `json:"llm"`
	Movement  MovementConfig    `json:"movement"`
	Storage   StorageConfig     `json:"storage"`
	TaskQueue TaskQueueConfig   `json:"task_queue"`
	Events    EventsConfig      `json:"events"`
	Runtime   RuntimeConfig     `json:"runtime"`
	Plugins   PluginsConfig     `json:"plugins"`
	Settings  map[string]string `json:"settings"`
}

// ServerConfig 控制 HTTP 服务的监听地址。
type ServerConfig struct {
	Address             string `json:"address"`
	ShutdownTimeoutSecs int    `json:"shutdown_timeout_seconds"`
}

// AuthConfig 控制 API 的 JWT 校验。
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	Secret    string `json:"secret"`
	SecretEnv string `json:"secret_env"`
	Issuer    string `json:"issuer"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制链上提交审计日志的落盘方式。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider          string             `json:"provider"`
	OpenAI            OpenAIConfig       `json:"openai"`
	Python            PythonBridgeConfig `json:"python_bridge"`
	RequestsPerMinute int                `json:"requests_per_minute"`
	Burst             int                `json:"burst"`
	JSONRetries       int                `json:"json_retries"`
}

// OpenAIConfig 描述 OpenAI 兼容接口（默认 OpenRouter）的访问参数。
type OpenAIConfig struct {
	BaseURL        string  `json:"base_url"`
	APIKey         string  `json:"api_key"`
	APIKeyEnv      string  `json:"api_key_env"`
	SmallModel     string  `json:"small_model"`
	MediumModel    string  `json:"medium_model"`
	LargeModel     string  `json:"large_model"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Timeout 返回单次请求超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用显式配置的密钥，其次读取环境变量。
func (c OpenAIConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return ""
}

// PythonBridgeConfig 描述通过外部脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// MovementConfig 描述 Movement 网络访问参数。
type MovementConfig struct {
	NetworksFile       string `json:"networks_file"`
	DefaultNetwork     string `json:"default_network"`
	MaxGasAmount       uint64 `json:"max_gas_amount"`
	ExpirationSeconds  int    `json:"expiration_seconds"`
	WaitTimeoutSeconds int    `json:"wait_timeout_seconds"`
	PollIntervalMillis int    `json:"poll_interval_millis"`
}

// Expiration 返回交易的有效期。
func (c MovementConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationSeconds) * time.Second
}

// WaitTimeout 返回等待交易确认的最长时间。
func (c MovementConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// PollInterval 返回轮询交易状态的间隔。
func (c MovementConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// StorageConfig 统一描述任务状态与交易账本的存储后端。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// TaskQueueConfig 控制消息处理队列。
type TaskQueueConfig struct {
	Driver     string         `json:"driver"`
	Buffer     int            `json:"buffer"`
	Workers    int            `json:"workers"`
	MaxRetries int            `json:"max_retries"`
	Redis      RedisConfig    `json:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接信息。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接信息。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// EventsConfig 控制动作回调与告警的外发渠道。
type EventsConfig struct {
	NATSURL       string `json:"nats_url"`
	SubjectPrefix string `json:"subject_prefix"`
	SlackWebhook  string `json:"slack_webhook"`
}

// RuntimeConfig 用于放置智能体运行时的通用参数。
type RuntimeConfig struct {
	DataDir              string `json:"data_dir"`
	CharacterFile        string `json:"character_file"`
	KnowledgeFile        string `json:"knowledge_file"`
	MemoryDepth          int    `json:"memory_depth"`
	RoomCapacity         int    `json:"room_capacity"`
	ActionTimeoutSeconds int    `json:"action_timeout_seconds"`
}

// ActionTimeout 返回单个动作处理的超时时间。
func (c RuntimeConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

// PluginsConfig 指向插件管理器的 YAML 配置。
type PluginsConfig struct {
	ManifestFile string `json:"manifest_file"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Default 返回全部取默认值的配置，基准目录为 baseDir。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// LoadOrDefault 在文件不存在时回落到默认配置。
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return Default(wd), nil
}

// Setting 按 settings 配置、环境变量的顺序查找设置项。
func (c *Config) Setting(key string) string {
	if c != nil {
		if v, ok := c.Settings[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(os.Getenv(key))
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 5
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "foresightx"
	}
	if c.Auth.Secret == "" && c.Auth.SecretEnv != "" {
		c.Auth.Secret = os.Getenv(c.Auth.SecretEnv)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.LLM.OpenAI.APIKey == "" && c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if c.LLM.OpenAI.SmallModel == "" {
		c.LLM.OpenAI.SmallModel = "nousresearch/hermes-3-llama-3.1-405b"
	}
	if c.LLM.OpenAI.MediumModel == "" {
		c.LLM.OpenAI.MediumModel = c.LLM.OpenAI.SmallModel
	}
	if c.LLM.OpenAI.LargeModel == "" {
		c.LLM.OpenAI.LargeModel = c.LLM.OpenAI.MediumModel
	}
	if c.LLM.OpenAI.Temperature == 0 {
		c.LLM.OpenAI.Temperature = 0.7
	}
	if c.LLM.OpenAI.TimeoutSeconds <= 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	c.LLM.Python.WorkingDir = resolvePath(baseDir, c.LLM.Python.WorkingDir, baseDir)
	if c.LLM.RequestsPerMinute <= 0 {
		c.LLM.RequestsPerMinute = 60
	}
	if c.LLM.Burst <= 0 {
		c.LLM.Burst = 5
	}
	if c.LLM.JSONRetries <= 0 {
		c.LLM.JSONRetries = 3
	}

	if c.Movement.DefaultNetwork == "" {
		c.Movement.DefaultNetwork = "bardock"
	}
	if c.Movement.NetworksFile != "" {
		c.Movement.NetworksFile = resolvePath(baseDir, c.Movement.NetworksFile, "")
	}
	if c.Movement.MaxGasAmount == 0 {
		c.Movement.MaxGasAmount = 200000
	}
	if c.Movement.ExpirationSeconds <= 0 {
		c.Movement.ExpirationSeconds = 20
	}
	if c.Movement.WaitTimeoutSeconds <= 0 {
		c.Movement.WaitTimeoutSeconds = 20
	}
	if c.Movement.PollIntervalMillis <= 0 {
		c.Movement.PollIntervalMillis = 500
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Buffer <= 0 {
		c.TaskQueue.Buffer = 1024
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 2
	}
	if c.TaskQueue.MaxRetries < 0 {
		c.TaskQueue.MaxRetries = 0
	} else if c.TaskQueue.MaxRetries == 0 {
		c.TaskQueue.MaxRetries = 2
	}
	if c.TaskQueue.Redis.Queue == "" {
		c.TaskQueue.Redis.Queue = "foresightx:messages"
	}
	if c.TaskQueue.RabbitMQ.Queue == "" {
		c.TaskQueue.RabbitMQ.Queue = "foresightx.messages"
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "foresightx"
	}

	c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir, filepath.Join(baseDir, "data"))
	if c.Runtime.CharacterFile != "" {
		c.Runtime.CharacterFile = resolvePath(baseDir, c.Runtime.CharacterFile, "")
	}
	if c.Runtime.KnowledgeFile != "" {
		c.Runtime.KnowledgeFile = resolvePath(baseDir, c.Runtime.KnowledgeFile, "")
	}
	if c.Runtime.MemoryDepth <= 0 {
		c.Runtime.MemoryDepth = 10
	}
	if c.Runtime.RoomCapacity <= 0 {
		c.Runtime.RoomCapacity = 32
	}
	if c.Runtime.ActionTimeoutSeconds <= 0 {
		c.Runtime.ActionTimeoutSeconds = 90
	}

	if c.Plugins.ManifestFile != "" {
		c.Plugins.ManifestFile = resolvePath(baseDir, c.Plugins.ManifestFile, "")
	}
	if c.Settings == nil {
		c.Settings = map[string]string{}
	}
}

// resolvePath 将相对路径解析到配置文件所在目录，空值返回 fallback。
func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		return fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
