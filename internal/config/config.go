package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Predict    PredictConfig    `yaml:"predict" mapstructure:"predict"`
	Trainer    TrainerConfig    `yaml:"trainer" mapstructure:"trainer"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	ShutdownSecs   int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig configures the feedback database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the prediction cache.
type CacheConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"`
	RedisAddr          string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB            int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLMinutes         int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	InvalidateOnReload bool   `yaml:"invalidate_on_reload" mapstructure:"invalidate_on_reload"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ClassifierConfig configures model artifact loading.
type ClassifierConfig struct {
	ArtifactRoot string `yaml:"artifact_root" mapstructure:"artifact_root"`
	Version      string `yaml:"version" mapstructure:"version"`
	Watch        bool   `yaml:"watch" mapstructure:"watch"`
}

// PredictConfig configures prediction execution.
type PredictConfig struct {
	TimeoutMS        int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	BatchConcurrency int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// Timeout returns the per-prediction deadline.
func (c PredictConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// TrainerConfig configures the external training backend client.
type TrainerConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	PollSecs     int    `yaml:"poll_secs" mapstructure:"poll_secs"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ReloadOnDone bool   `yaml:"reload_on_done" mapstructure:"reload_on_done"`
}

// PollInterval returns how often running jobs are polled.
func (c TrainerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSecs) * time.Second
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
	v.SetEnvPrefix("NEWSCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.invalidate_on_reload", true)
	v.SetDefault("classifier.artifact_root", "models")
	v.SetDefault("classifier.version", "")
	v.SetDefault("classifier.watch", true)
	v.SetDefault("predict.timeout_ms", 500)
	v.SetDefault("predict.batch_concurrency", 8)
	v.SetDefault("trainer.poll_secs", 30)
	v.SetDefault("trainer.timeout_secs", 15)
	v.SetDefault("trainer.reload_on_done", false)
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
