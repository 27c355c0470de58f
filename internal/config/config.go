// README: Config loader. Defaults, optional config.yaml, .env and TRIPFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TRIPFLOW"

type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Gateway struct {
		Provider       string `mapstructure:"provider"`
		MaxConcurrency int    `mapstructure:"max_concurrency"`
	} `mapstructure:"gateway"`
	Gemini struct {
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		Temperature float32 `mapstructure:"temperature"`
	} `mapstructure:"gemini"`
	OpenAI struct {
		APIKey   string `mapstructure:"api_key"`
		Model    string `mapstructure:"model"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"openai"`
	Flow struct {
		Timeout time.Duration `mapstructure:"timeout"`
		Retries int           `mapstructure:"retries"`
	} `mapstructure:"flow"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Cache struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Quota struct {
		Monthly int `mapstructure:"monthly"`
	} `mapstructure:"quota"`
	Maps struct {
		APIKey   string `mapstructure:"api_key"`
		Language string `mapstructure:"language"`
		Region   string `mapstructure:"region"`
	} `mapstructure:"maps"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("gateway.provider", "gemini")
	v.SetDefault("gateway.max_concurrency", 8)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.4)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("flow.timeout", 30*time.Second)
	v.SetDefault("flow.retries", 2)
	v.SetDefault("redis.addr", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("db.dsn", "")
	v.SetDefault("quota.monthly", 100)
	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.language", "en")
	v.SetDefault("maps.region", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. envFile is optional; a missing default .env is ignored.
// Redis, Postgres and Maps are enabled only when their address, DSN or key is set.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Maps.APIKey == "" {
		cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}

	return cfg, cfg.Validate()
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Gateway.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return errors.New("config: gemini provider selected but no API key (GEMINI_API_KEY)")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return errors.New("config: openai provider selected but no API key (OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("config: unknown gateway provider %q", c.Gateway.Provider)
	}
	if c.Gateway.MaxConcurrency <= 0 {
		return errors.New("config: gateway.max_concurrency must be positive")
	}
	if c.Flow.Timeout <= 0 {
		return errors.New("config: flow.timeout must be positive")
	}
	if c.Flow.Retries < 0 {
		return errors.New("config: flow.retries must not be negative")
	}
	return nil
}
