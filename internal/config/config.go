package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/cache/redis"
	"github.com/davidbz/hearth/internal/messaging/nats"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/dify"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/storage/gormstore"
)

// Config represents the relay configuration.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Log      observability.LogConfig
	Chat     ChatConfig
	Billing  BillingConfig
	Routing  routing.Config
	Dify     dify.Config
	OpenAI   openai.Config
	Echo     echo.Config
	Database gormstore.Config
	Redis    redis.Config
	NATS     nats.Config
}

// ServerConfig contains HTTP server settings.
// WriteTimeout must outlast CHAT_STREAM_TIMEOUT or long streams are cut.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"330"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ChatConfig contains relay behaviour settings.
type ChatConfig struct {
	StreamTimeout  time.Duration `env:"CHAT_STREAM_TIMEOUT"  envDefault:"300s"`
	PersistTimeout time.Duration `env:"CHAT_PERSIST_TIMEOUT" envDefault:"10s"`
	StreamDefault  bool          `env:"CHAT_STREAM_DEFAULT"  envDefault:"true"`
	TextAliases    []string      `env:"CHAT_TEXT_ALIASES"    envSeparator:","`
}

// BillingConfig contains usage estimation and pricing settings.
type BillingConfig struct {
	RatePerMillion   float64 `env:"BILLING_RATE_PER_MILLION"  envDefault:"12"`
	CharsPerToken    int     `env:"BILLING_CHARS_PER_TOKEN"   envDefault:"4"`
	IncludeLifecycle bool    `env:"BILLING_INCLUDE_LIFECYCLE" envDefault:"false"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*observability.LogConfig
	*ChatConfig
	*BillingConfig
	*routing.Config
	Dify     *dify.Config
	OpenAI   *openai.Config
	Echo     *echo.Config
	Database *gormstore.Config
	Redis    *redis.Config
	NATS     *nats.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Out:           dig.Out{},
		ServerConfig:  &cfg.Server,
		CORSConfig:    &cfg.CORS,
		LogConfig:     &cfg.Log,
		ChatConfig:    &cfg.Chat,
		BillingConfig: &cfg.Billing,
		Config:        &cfg.Routing,
		Dify:          &cfg.Dify,
		OpenAI:        &cfg.OpenAI,
		Echo:          &cfg.Echo,
		Database:      &cfg.Database,
		Redis:         &cfg.Redis,
		NATS:          &cfg.NATS,
	}
}
