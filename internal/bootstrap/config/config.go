package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Source    SourceConfig    `mapstructure:"source"`
	Server    ServerConfig    `mapstructure:"server"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	DefaultTTLSeconds   int    `mapstructure:"default_ttl_seconds"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	AllowStaleOnTimeout bool   `mapstructure:"allow_stale_on_timeout"`
	KeyPrefix           string `mapstructure:"key_prefix"`
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

type BatchConfig struct {
	Width int `mapstructure:"width"`
}

type PlannerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// SourceConfig carries boundary credentials for the remote JSON source.
// Token management beyond a static bearer stays outside this process.
type SourceConfig struct {
	BearerToken string `mapstructure:"bearer_token"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	MountPath string `mapstructure:"mount_path"`
}

type EndpointsConfig struct {
	File string `mapstructure:"file"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("XE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if cfg.Database.DSN == "" {
		return Config{}, errors.New("database.dsn is required")
	}
	if cfg.Cache.DefaultTTLSeconds <= 0 {
		return Config{}, errors.New("cache.default_ttl_seconds must be positive")
	}
	if cfg.Cache.FetchTimeoutSeconds <= 0 {
		return Config{}, errors.New("cache.fetch_timeout_seconds must be positive")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("cache_default_ttl_seconds", cfg.Cache.DefaultTTLSeconds),
		slog.Int("batch_width", cfg.Batch.Width),
	)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "xiaoer")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".xiaoer/state/cache.sqlite")
	v.SetDefault("cache.default_ttl_seconds", 300)
	v.SetDefault("cache.fetch_timeout_seconds", 5)
	v.SetDefault("cache.allow_stale_on_timeout", true)
	v.SetDefault("cache.key_prefix", "ep:")
	v.SetDefault("batch.width", 2)
	v.SetDefault("planner.model", "gpt-4o-mini")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mount_path", "/mcp")
	v.SetDefault("endpoints.file", "configs/endpoints.toml")
}
