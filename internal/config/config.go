// Package config 提供了函数宿主的配置管理功能。
// 该包负责从 YAML 配置文件与 .env 文件加载配置，并支持通过环境变量覆盖敏感配置项（如连接串和密码）。
// 配置包含了服务器、文档存储、触发器、日志、指标和遥测等多个方面的设置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 是函数宿主的主配置结构体，包含所有子系统的配置。
type Config struct {
	// Server 服务器配置，包括 HTTP 端口、指标端口等
	Server ServerConfig `yaml:"server"`
	// Functions 处理函数自身使用的配置
	Functions FunctionsConfig `yaml:"functions"`
	// DocumentStore 文档存储配置，供 write-function 使用
	DocumentStore DocumentStoreConfig `yaml:"document_store"`
	// Triggers 自托管触发器配置（队列、事件流、定时器）
	Triggers TriggersConfig `yaml:"triggers"`
	// Logging 日志配置，包括日志级别和格式
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置，用于 Prometheus 监控
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 遥测配置，用于分布式追踪
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort 函数 HTTP 端口
	// 默认值：8080；运行在 Azure Functions 自定义处理程序模式下时读取 FUNCTIONS_CUSTOMHANDLER_PORT
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 独立的指标端口，0 表示只在主端口暴露 /metrics
	MetricsPort int `yaml:"metrics_port"`
	// ReadTimeout 读取请求的超时时间
	// 默认值：30 秒
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// ShutdownTimeout 优雅关闭超时时间
	// 默认值：30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FunctionsConfig 处理函数配置结构体。
type FunctionsConfig struct {
	// LogsAppName 日志演示页中展示的函数应用名称
	// 默认值：func-logs-demo
	LogsAppName string `yaml:"logs_app_name"`
	// LogsResourceGroup 日志演示页中展示的资源组名称
	// 默认值：rg-function-logs
	LogsResourceGroup string `yaml:"logs_resource_group"`
}

// 文档存储驱动
const (
	StoreDriverAuto     = ""
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// DocumentStoreConfig 文档存储配置结构体。
type DocumentStoreConfig struct {
	// Driver 存储驱动，可选值：mongo、postgres、memory；为空时按连接串的 scheme 推断
	Driver string `yaml:"driver"`
	// ConnectionString 连接串，可通过环境变量 COSMOS_CONNECTION_STRING 或
	// NIMBUS_DOCUMENT_STORE_CONNECTION_STRING(_FILE) 覆盖
	ConnectionString string `yaml:"connection_string"`
	// ConnectTimeout 建立连接的超时时间
	// 默认值：10 秒
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TriggersConfig 自托管触发器配置结构体。
type TriggersConfig struct {
	// Queue 队列触发器
	Queue QueueTriggerConfig `yaml:"queue"`
	// EventStream 事件流触发器
	EventStream EventStreamConfig `yaml:"event_stream"`
	// Timers 定时触发器列表
	Timers []TimerConfig `yaml:"timers"`
}

// 队列驱动
const (
	QueueDriverNone  = ""
	QueueDriverNATS  = "nats"
	QueueDriverRedis = "redis"
)

// QueueTriggerConfig 队列触发器配置结构体。
type QueueTriggerConfig struct {
	// Driver 队列驱动，可选值：nats、redis；为空表示不启用
	Driver string `yaml:"driver"`
	// Function 接收消息的函数名称
	// 默认值：queue-function
	Function string `yaml:"function"`
	// NATS JetStream 配置
	NATS NATSConfig `yaml:"nats"`
	// Redis 列表队列配置
	Redis RedisConfig `yaml:"redis"`
}

// NATSConfig NATS JetStream 配置结构体。
type NATSConfig struct {
	// URL NATS 服务器地址，如 "nats://localhost:4222"
	URL string `yaml:"url"`
	// Stream JetStream 流名称
	// 默认值：TASKS
	Stream string `yaml:"stream"`
	// Subject 订阅的主题
	// 默认值：tasks.>
	Subject string `yaml:"subject"`
	// Durable 持久化消费者名称
	// 默认值：queue-function
	Durable string `yaml:"durable"`
	// MaxDeliver 最大投递次数，0 表示使用服务端默认值
	MaxDeliver int `yaml:"max_deliver"`
}

// RedisConfig Redis 列表队列配置结构体。
type RedisConfig struct {
	// Address Redis 服务器地址，格式为 "host:port"
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 NIMBUS_REDIS_PASSWORD 或
	// NIMBUS_REDIS_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
	// Queue 列表键名
	// 默认值：tasks
	Queue string `yaml:"queue"`
	// PollTimeout BLPOP 的阻塞时间
	// 默认值：5 秒
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// EventStreamConfig 事件流（Kafka / Event Hubs Kafka 端点）配置结构体。
type EventStreamConfig struct {
	// Enabled 是否启用事件流触发器
	Enabled bool `yaml:"enabled"`
	// Function 接收记录的函数名称
	// 默认值：kafka-function
	Function string `yaml:"function"`
	// Brokers Broker 地址列表；Event Hubs 为 "<namespace>.servicebus.windows.net:9093"
	Brokers []string `yaml:"brokers"`
	// Topic 订阅的主题（Event Hub 名称）
	Topic string `yaml:"topic"`
	// Group 消费者组
	// 默认值：$Default
	Group string `yaml:"group"`
	// Version Kafka 协议版本
	// 默认值：2.1.0
	Version string `yaml:"version"`
	// SASL 认证配置
	SASL SASLConfig `yaml:"sasl"`
	// TLS 是否启用 TLS
	TLS bool `yaml:"tls"`
}

// SASLConfig SASL/PLAIN 认证配置结构体。
type SASLConfig struct {
	Enabled bool   `yaml:"enabled"`
	User    string `yaml:"user"`
	// Password 可通过 EVENTHUB_CONNECTION_STRING 覆盖，此时 User 固定为 $ConnectionString
	Password string `yaml:"password"`
}

// TimerConfig 定时触发器配置结构体。
type TimerConfig struct {
	// Function 被触发的函数名称
	Function string `yaml:"function"`
	// Schedule 六段式 cron 表达式（含秒），如 "0 */5 * * * *"
	Schedule string `yaml:"schedule"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	// 默认值：nimbus_functions
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP 端点地址（如 "tempo:4317"）
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称
	// 默认值：nimbus-functions
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，范围 0.0 到 1.0
	// 默认值：0.1
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识
	// 默认值：development
	Environment string `yaml:"environment"`
}

// Load 从指定路径加载配置文件。
// path 为空或文件不存在时使用默认值；工作目录下的 .env 文件会先被加载到进程环境中。
// 之后依次应用默认值、环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv 加载 .env 文件，已存在的环境变量不会被覆盖。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 支持直接设置环境变量，或通过 _FILE 后缀指定包含密钥的文件路径，_FILE 方式优先级更高。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFileAny(
		[]string{"NIMBUS_DOCUMENT_STORE_CONNECTION_STRING", "COSMOS_CONNECTION_STRING"},
		[]string{"NIMBUS_DOCUMENT_STORE_CONNECTION_STRING_FILE", "COSMOS_CONNECTION_STRING_FILE"},
	); v != "" {
		c.DocumentStore.ConnectionString = v
	}
	if v := readEnvOrFileAny(
		[]string{"NIMBUS_REDIS_PASSWORD"},
		[]string{"NIMBUS_REDIS_PASSWORD_FILE"},
	); v != "" {
		c.Triggers.Queue.Redis.Password = v
	}
	// Event Hubs 的 Kafka 端点使用 $ConnectionString 作为 SASL 用户名
	if v := readEnvOrFileAny(
		[]string{"EVENTHUB_CONNECTION_STRING"},
		[]string{"EVENTHUB_CONNECTION_STRING_FILE"},
	); v != "" {
		c.Triggers.EventStream.SASL.Enabled = true
		c.Triggers.EventStream.SASL.User = "$ConnectionString"
		c.Triggers.EventStream.SASL.Password = v
		c.Triggers.EventStream.TLS = true
	}
	if v := strings.TrimSpace(os.Getenv("NIMBUS_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT")); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Server.HTTPPort = port
		}
	}
}

// readEnvOrFileAny 从环境变量或文件读取配置值。
// 优先从 fileKeys 指定的文件路径读取，如果文件不存在或读取失败，
// 则从 envKeys 指定的环境变量读取。
func readEnvOrFileAny(envKeys []string, fileKeys []string) string {
	for _, fileKey := range fileKeys {
		if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
			if b, err := os.ReadFile(filePath); err == nil {
				return strings.TrimSpace(string(b))
			}
		}
	}

	for _, envKey := range envKeys {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			return v
		}
	}

	return ""
}

// applyDefaults 应用默认配置值。
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Functions.LogsAppName == "" {
		c.Functions.LogsAppName = "func-logs-demo"
	}
	if c.Functions.LogsResourceGroup == "" {
		c.Functions.LogsResourceGroup = "rg-function-logs"
	}
	if c.DocumentStore.ConnectTimeout == 0 {
		c.DocumentStore.ConnectTimeout = 10 * time.Second
	}

	q := &c.Triggers.Queue
	if q.Function == "" {
		q.Function = "queue-function"
	}
	if q.NATS.Stream == "" {
		q.NATS.Stream = "TASKS"
	}
	if q.NATS.Subject == "" {
		q.NATS.Subject = "tasks.>"
	}
	if q.NATS.Durable == "" {
		q.NATS.Durable = "queue-function"
	}
	if q.Redis.Queue == "" {
		q.Redis.Queue = "tasks"
	}
	if q.Redis.PollTimeout == 0 {
		q.Redis.PollTimeout = 5 * time.Second
	}

	es := &c.Triggers.EventStream
	if es.Function == "" {
		es.Function = "kafka-function"
	}
	if es.Group == "" {
		es.Group = "$Default"
	}
	if es.Version == "" {
		es.Version = "2.1.0"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "nimbus_functions"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "nimbus-functions"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
}

// Validate 校验配置的合法性。
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.DocumentStore),
		validation.Field(&c.Triggers),
		validation.Field(&c.Logging),
		validation.Field(&c.Telemetry),
	)
}

// Validate 校验服务器配置。
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.HTTPPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.MetricsPort, validation.Min(0), validation.Max(65535)),
	)
}

// Validate 校验文档存储配置。连接串允许为空，缺失时在调用时报错。
func (d DocumentStoreConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.In(StoreDriverMongo, StoreDriverPostgres, StoreDriverMemory)),
	)
}

// Validate 校验触发器配置。
func (t TriggersConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Queue),
		validation.Field(&t.EventStream),
		validation.Field(&t.Timers),
	)
}

// Validate 校验队列触发器配置。
func (q QueueTriggerConfig) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Driver, validation.In(QueueDriverNATS, QueueDriverRedis)),
		validation.Field(&q.Function, validation.When(q.Driver != QueueDriverNone, validation.Required)),
		validation.Field(&q.NATS, validation.When(q.Driver == QueueDriverNATS, validation.By(func(any) error {
			return validation.ValidateStruct(&q.NATS,
				validation.Field(&q.NATS.URL, validation.Required),
				validation.Field(&q.NATS.Stream, validation.Required),
				validation.Field(&q.NATS.Subject, validation.Required),
			)
		}))),
		validation.Field(&q.Redis, validation.When(q.Driver == QueueDriverRedis, validation.By(func(any) error {
			return validation.ValidateStruct(&q.Redis,
				validation.Field(&q.Redis.Address, validation.Required),
				validation.Field(&q.Redis.Queue, validation.Required),
			)
		}))),
	)
}

// Validate 校验事件流配置，仅在启用时要求 Broker 与主题。
func (e EventStreamConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Brokers, validation.When(e.Enabled, validation.Required)),
		validation.Field(&e.Topic, validation.When(e.Enabled, validation.Required)),
		validation.Field(&e.Group, validation.When(e.Enabled, validation.Required)),
		validation.Field(&e.SASL, validation.When(e.SASL.Enabled, validation.By(func(any) error {
			return validation.ValidateStruct(&e.SASL,
				validation.Field(&e.SASL.User, validation.Required),
				validation.Field(&e.SASL.Password, validation.Required),
			)
		}))),
	)
}

// Validate 校验单个定时器配置。
func (t TimerConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Function, validation.Required),
		validation.Field(&t.Schedule, validation.Required),
	)
}

// Validate 校验日志配置。
func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.Required, validation.In("json", "text")),
	)
}

// Validate 校验遥测配置。
func (t TelemetryConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.SampleRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&t.Endpoint, validation.When(t.Enabled, validation.Required)),
	)
}
