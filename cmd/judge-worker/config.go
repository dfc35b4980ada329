package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/internal/judge/apiclient"
	"arbiter/internal/judge/sandbox"
	"arbiter/pkg/utils/logger"
)

const (
	defaultWorkRoot        = "/tmp/arbiter-judge"
	defaultCompileTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
}

// BucketConfig names the object storage buckets the worker reads and writes.
type BucketConfig struct {
	Source    string `yaml:"source"`
	TestData  string `yaml:"testData"`
	Artifacts string `yaml:"artifacts"`
}

// JudgeConfig holds execution settings for the sandbox side.
type JudgeConfig struct {
	WorkRoot       string        `yaml:"workRoot"`
	CompileTimeout time.Duration `yaml:"compileTimeout"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Logger    logger.Config          `yaml:"logger"`
	Kafka     KafkaConfig            `yaml:"kafka"`
	Database  db.MySQLConfig         `yaml:"database"`
	Redis     cache.RedisConfig      `yaml:"redis"`
	MinIO     storage.MinIOConfig    `yaml:"minio"`
	Buckets   BucketConfig           `yaml:"buckets"`
	Judge     JudgeConfig            `yaml:"judge"`
	Languages []sandbox.LanguageSpec `yaml:"languages"`
	Report    apiclient.Config       `yaml:"report"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Judge.CompileTimeout == 0 {
		cfg.Judge.CompileTimeout = defaultCompileTimeout
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = sandbox.DefaultLanguages()
	}
	if cfg.Buckets.Source == "" {
		cfg.Buckets.Source = cfg.MinIO.Bucket
	}
	if cfg.Buckets.TestData == "" {
		cfg.Buckets.TestData = cfg.MinIO.Bucket
	}
	if cfg.Buckets.Artifacts == "" {
		cfg.Buckets.Artifacts = cfg.MinIO.Bucket
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
