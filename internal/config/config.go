// Package config 提供配置管理
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	API      APIConfig      `envPrefix:"API_"`
	Ranking  RankingConfig  `envPrefix:"RANKING_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `env:"NAME" envDefault:"hissa"`
	Env       string `env:"ENV" envDefault:"development"`
	Port      int    `env:"PORT" envDefault:"7012"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `env:"DRIVER" envDefault:"postgres"` // postgres/memory
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	Name            string        `env:"NAME" envDefault:"hissa"`
	User            string        `env:"USER" envDefault:"hissa"`
	Password        string        `env:"PASSWORD" envDefault:"hissa123"`
	SSLMode         string        `env:"SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// InMemory 是否使用内存存储
func (c *DatabaseConfig) InMemory() bool {
	return c.Driver == "memory"
}

// CacheConfig 快照缓存配置
type CacheConfig struct {
	SnapshotTTL     time.Duration `env:"SNAPSHOT_TTL" envDefault:"30s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER" envDefault:"hissa"`
}

// APIConfig API配置
type APIConfig struct {
	RateLimit   int           `env:"RATE_LIMIT" envDefault:"100"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// RankingConfig 代课推荐配置
type RankingConfig struct {
	Strategy           string `env:"STRATEGY" envDefault:"simple"`
	ExcludeAdjacent    bool   `env:"EXCLUDE_ADJACENT" envDefault:"true"` // 相邻节次有课者默认视为占用
	RecommendMaxCount  int    `env:"RECOMMEND_MAX_COUNT" envDefault:"2"`
	LightLoadThreshold int    `env:"LIGHT_LOAD_THRESHOLD" envDefault:"15"`
	Locale             string `env:"LOCALE" envDefault:"ar"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

// Load 从环境变量加载配置，存在 .env 文件时先加载
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("加载 .env 失败: %w", err)
		}
	}
	return Parse()
}

// Parse 仅从当前环境变量解析配置
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置组合
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Ranking.Strategy {
	case "simple", "weighted":
	default:
		return fmt.Errorf("不支持的推荐策略: %s", c.Ranking.Strategy)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("启用认证时必须设置 AUTH_JWT_SECRET")
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
