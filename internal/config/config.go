package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Server  ServerConfig  `mapstructure:"server"`
}

type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Prefix      string        `mapstructure:"prefix"`
	RefreshPath string        `mapstructure:"refresh_path"`
	LoginPath   string        `mapstructure:"login_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type SessionConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	StaleTime time.Duration `mapstructure:"stale_time"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	Prefix    string        `mapstructure:"prefix"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads path (optional, YAML) and WHATIF_* environment overrides on top of
// the defaults. A .env file in the working directory is honoured if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WHATIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		return Config{}, errors.New("api.base_url is empty")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.prefix", "/api")
	v.SetDefault("api.refresh_path", "/api/auth/token/refresh/")
	v.SetDefault("api.login_path", "/api/auth/token/")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.disable_caller", true)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("session.path", defaultSessionPath())
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.stale_time", "5m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "whatif:")
	v.SetDefault("server.addr", ":8088")
}

func defaultSessionPath() string {
	if d := strings.TrimSpace(os.Getenv("WHATIF_HOME")); d != "" {
		return filepath.Join(d, "credentials.json")
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".whatif", "credentials.json")
	}
	return filepath.Join(h, ".whatif", "credentials.json")
}
