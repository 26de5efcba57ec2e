package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/db"
)

// Pipeline holds tunables for the import pipeline stages.
type Pipeline struct {
	// Confidence thresholds are configuration, not business logic: 0.7
	// admits a mapping, 0.9 auto-applies it.
	MinConfidence  float64
	HighConfidence float64

	ParseBatchSize    int
	ValidateBatchSize int

	// MemoryThresholdMB triggers a forced GC pass and a performance
	// warning during parsing.
	MemoryThresholdMB int

	MaxFileSizeBytes int64

	StageDelay time.Duration
	Workers    int

	BaseCurrency           string
	DefaultDuplicatePolicy string
}

// Config is the full process configuration.
type Config struct {
	DB       db.Config
	Pipeline Pipeline
	HTTPAddr string
	LogLevel string
	LogJSON  bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:       db.DefaultConfig(),
		HTTPAddr: ":8080",
		LogLevel: "info",
		Pipeline: Pipeline{
			MinConfidence:          0.7,
			HighConfidence:         0.9,
			ParseBatchSize:         500,
			ValidateBatchSize:      200,
			MemoryThresholdMB:      256,
			MaxFileSizeBytes:       50 * 1024 * 1024,
			StageDelay:             2 * time.Second,
			Workers:                4,
			BaseCurrency:           "MKD",
			DefaultDuplicatePolicy: "skip",
		},
	}
}

// Load reads config.yaml from configPath, layering environment overrides
// with the IMPORTD prefix (IMPORTD_DATABASE_HOST and friends).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("IMPORTD")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// No config file is fine; defaults plus env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("http.addr") {
		cfg.HTTPAddr = v.GetString("http.addr")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("log.json") {
		cfg.LogJSON = v.GetBool("log.json")
	}

	if v.IsSet("pipeline.min_confidence") {
		cfg.Pipeline.MinConfidence = v.GetFloat64("pipeline.min_confidence")
	}
	if v.IsSet("pipeline.high_confidence") {
		cfg.Pipeline.HighConfidence = v.GetFloat64("pipeline.high_confidence")
	}
	if v.IsSet("pipeline.parse_batch_size") {
		cfg.Pipeline.ParseBatchSize = v.GetInt("pipeline.parse_batch_size")
	}
	if v.IsSet("pipeline.validate_batch_size") {
		cfg.Pipeline.ValidateBatchSize = v.GetInt("pipeline.validate_batch_size")
	}
	if v.IsSet("pipeline.memory_threshold_mb") {
		cfg.Pipeline.MemoryThresholdMB = v.GetInt("pipeline.memory_threshold_mb")
	}
	if v.IsSet("pipeline.max_file_size_bytes") {
		cfg.Pipeline.MaxFileSizeBytes = v.GetInt64("pipeline.max_file_size_bytes")
	}
	if v.IsSet("pipeline.stage_delay") {
		cfg.Pipeline.StageDelay = v.GetDuration("pipeline.stage_delay")
	}
	if v.IsSet("pipeline.workers") {
		cfg.Pipeline.Workers = v.GetInt("pipeline.workers")
	}
	if v.IsSet("pipeline.base_currency") {
		cfg.Pipeline.BaseCurrency = v.GetString("pipeline.base_currency")
	}
	if v.IsSet("pipeline.default_duplicate_policy") {
		cfg.Pipeline.DefaultDuplicatePolicy = v.GetString("pipeline.default_duplicate_policy")
	}

	return cfg, nil
}
