package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config конфигурация приложения
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Detector DetectorConfig `mapstructure:"detector"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

// ServerConfig параметры HTTP сервера
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// RedisConfig кэш алертов; пустой Addr отключает кэш
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Retention time.Duration `mapstructure:"retention"`
}

// Enabled включен ли кэш
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// DetectorConfig параметры изоляционного леса
type DetectorConfig struct {
	Trees         int     `mapstructure:"trees"`
	Contamination float64 `mapstructure:"contamination"`
	Seed          uint64  `mapstructure:"seed"`
}

// CORSConfig разрешенные источники
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StreamConfig параметры websocket потока
type StreamConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// EnvPrefix префикс переменных окружения
const EnvPrefix = "HEALTHAI"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.retention", 24*time.Hour)

	v.SetDefault("detector.trees", 100)
	v.SetDefault("detector.contamination", 0.1)
	v.SetDefault("detector.seed", 42)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("stream.interval", 5*time.Second)
}

// Load загружает конфигурацию: значения по умолчанию, healthai.yaml (если есть),
// переменные окружения HEALTHAI_*.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("healthai")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "/etc/healthai/"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if c.Detector.Trees <= 0 {
		return fmt.Errorf("detector.trees must be positive, got %d", c.Detector.Trees)
	}
	if c.Detector.Contamination <= 0 || c.Detector.Contamination > 0.5 {
		return fmt.Errorf("detector.contamination must be in (0, 0.5], got %v", c.Detector.Contamination)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive, got %s", c.Stream.Interval)
	}
	if c.Redis.Enabled() && c.Redis.Retention <= 0 {
		return fmt.Errorf("redis.retention must be positive, got %s", c.Redis.Retention)
	}
	return nil
}
