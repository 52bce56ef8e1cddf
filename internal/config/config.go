package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix — префикс переменных окружения. Вложенные ключи разделяются
// через "__": PEDIDOS_POSTGRES__DSN, PEDIDOS_KAFKA__BROKERS.
const EnvPrefix = "PEDIDOS_"

// Config описывает все настройки приложения. Пустые DSN означают
// in-memory реализации соответствующих хранилищ.
type Config struct {
	App struct {
		Name        string `koanf:"name"`
		MetricsAddr string `koanf:"metrics_addr"`
		LogLevel    string `koanf:"log_level"`
	} `koanf:"app"`

	Postgres struct {
		DSN         string `koanf:"dsn"`
		AutoMigrate bool   `koanf:"auto_migrate"`
	} `koanf:"postgres"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		CacheTTL time.Duration `koanf:"cache_ttl"`
	} `koanf:"redis"`

	Kafka struct {
		Brokers []string `koanf:"brokers"`
	} `koanf:"kafka"`

	Outbox struct {
		PollInterval   time.Duration `koanf:"poll_interval"`
		BatchSize      int           `koanf:"batch_size"`
		MaxAttempts    int           `koanf:"max_attempts"`
		RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	} `koanf:"outbox"`

	Idempotency struct {
		CleanupInterval  time.Duration `koanf:"cleanup_interval"`
		CleanupBatchSize int           `koanf:"cleanup_batch_size"`
	} `koanf:"idempotency"`
}

// Default возвращает конфигурацию для локального запуска без внешних
// зависимостей: память вместо баз, Kafka выключен.
func Default() Config {
	var cfg Config
	cfg.App.Name = "pedido-service"
	cfg.App.MetricsAddr = ":9090"
	cfg.App.LogLevel = "info"
	cfg.Postgres.AutoMigrate = true
	cfg.Mongo.Database = "pedidos"
	cfg.Redis.CacheTTL = 5 * time.Minute
	cfg.Outbox.PollInterval = time.Second
	cfg.Outbox.BatchSize = 100
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.RetryBaseDelay = 100 * time.Millisecond
	cfg.Idempotency.CleanupInterval = 10 * time.Minute
	cfg.Idempotency.CleanupBatchSize = 500
	return cfg
}

// Load читает конфигурацию: yaml-файл (опционально, path может быть пустым),
// поверх — переменные окружения с префиксом PEDIDOS_.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых приложение не сможет подняться.
func (c Config) Validate() error {
	if strings.TrimSpace(c.App.MetricsAddr) == "" {
		return fmt.Errorf("app.metrics_addr required")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be > 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be > 0")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be > 0")
	}
	if c.Idempotency.CleanupInterval <= 0 {
		return fmt.Errorf("idempotency.cleanup_interval must be > 0")
	}
	if c.Idempotency.CleanupBatchSize <= 0 {
		return fmt.Errorf("idempotency.cleanup_batch_size must be > 0")
	}
	if c.Mongo.URI != "" && strings.TrimSpace(c.Mongo.Database) == "" {
		return fmt.Errorf("mongo.database required when mongo.uri is set")
	}
	return nil
}
