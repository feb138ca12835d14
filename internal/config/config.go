package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the model store backend. Filesystem is the default for
// local and single-node deployments; S3 for anything that has to survive a
// host loss.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	Filesystem struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"filesystem"`
	S3 struct {
		Bucket    string `mapstructure:"bucket"`
		KeyPrefix string `mapstructure:"key_prefix"`
		Region    string `mapstructure:"region"`
	} `mapstructure:"s3"`
}

type RecommendationConfig struct {
	Training TrainingConfig `mapstructure:"training"`
	Serving  ServingConfig  `mapstructure:"serving"`
	Retrain  RetrainConfig  `mapstructure:"retrain"`
}

type TrainingConfig struct {
	Factors             int     `mapstructure:"factors"`
	Epochs              int     `mapstructure:"epochs"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	Regularization      float64 `mapstructure:"regularization"`
	Seed                int64   `mapstructure:"seed"`
	MaxTrainingExamples int     `mapstructure:"max_training_examples"`
}

type ServingConfig struct {
	DefaultCount int           `mapstructure:"default_count"`
	MaxCount     int           `mapstructure:"max_count"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// RetrainConfig describes the weekly maintenance window. Weekday follows
// time.Weekday numbering (0 = Sunday).
type RetrainConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Weekday     int    `mapstructure:"weekday"`
	TimeOfDay   string `mapstructure:"time_of_day"`
	Concurrency int    `mapstructure:"concurrency"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "filesystem", "s3":
	default:
		return fmt.Errorf("storage.backend must be filesystem or s3, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage.backend is s3")
	}
	if c.Recommendation.Retrain.Weekday < 0 || c.Recommendation.Retrain.Weekday > 6 {
		return fmt.Errorf("recommendation.retrain.weekday must be in [0,6], got %d", c.Recommendation.Retrain.Weekday)
	}
	if _, err := time.Parse("15:04", c.Recommendation.Retrain.TimeOfDay); err != nil {
		return fmt.Errorf("recommendation.retrain.time_of_day must be HH:MM: %w", err)
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults (serving cache)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Storage defaults
	viper.SetDefault("storage.backend", "filesystem")
	viper.SetDefault("storage.filesystem.path", "./data/models")
	viper.SetDefault("storage.s3.key_prefix", "models/")
	viper.SetDefault("storage.s3.region", "us-east-1")

	// Training defaults
	viper.SetDefault("recommendation.training.factors", 8)
	viper.SetDefault("recommendation.training.epochs", 30)
	viper.SetDefault("recommendation.training.learning_rate", 0.05)
	viper.SetDefault("recommendation.training.regularization", 0.01)
	viper.SetDefault("recommendation.training.seed", 42)
	viper.SetDefault("recommendation.training.max_training_examples", 2000000)

	// Serving defaults
	viper.SetDefault("recommendation.serving.default_count", 10)
	viper.SetDefault("recommendation.serving.max_count", 100)
	viper.SetDefault("recommendation.serving.cache_ttl", "15m")

	// Retrain defaults: Sunday 03:00 local time
	viper.SetDefault("recommendation.retrain.enabled", true)
	viper.SetDefault("recommendation.retrain.weekday", 0)
	viper.SetDefault("recommendation.retrain.time_of_day", "03:00")
	viper.SetDefault("recommendation.retrain.concurrency", 4)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
