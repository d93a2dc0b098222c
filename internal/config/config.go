package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Docs      DocsConfig      `yaml:"docs" mapstructure:"docs"`
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`
	Retriever RetrieverConfig `yaml:"retriever" mapstructure:"retriever"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig locates the analytics database (the queryable engine).
type DatabaseConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	QueryTimeout int    `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
}

// DocsConfig locates the policy/reference document corpus.
type DocsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// OracleConfig holds Anthropic API settings for the language-model oracle.
type OracleConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Disabled    bool    `yaml:"disabled" mapstructure:"disabled"`

	RetryMaxAttempts        int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetSecs        int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// GeneratorConfig configures the query generation and repair loop.
type GeneratorConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RetrieverConfig configures passage retrieval.
type RetrieverConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// StoreConfig configures the run/answer persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentQuestions int `yaml:"max_concurrent_questions" mapstructure:"max_concurrent_questions"`
}

// ServerConfig configures the HTTP ask endpoint.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("database.path", "data/northwind.sqlite")
	v.SetDefault("database.query_timeout_secs", 10)
	v.SetDefault("docs.dir", "docs")
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.max_tokens", 500)
	v.SetDefault("oracle.timeout_secs", 20)
	v.SetDefault("oracle.rate_per_sec", 2.0)
	v.SetDefault("oracle.retry_max_attempts", 3)
	v.SetDefault("oracle.breaker_failure_threshold", 5)
	v.SetDefault("oracle.breaker_reset_secs", 30)
	v.SetDefault("generator.max_attempts", 3)
	v.SetDefault("retriever.top_k", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.sqlite")
	v.SetDefault("batch.max_concurrent_questions", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
