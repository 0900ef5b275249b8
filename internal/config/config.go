// Package config loads pool configuration from a YAML file (if present)
// layered with environment variable overrides, the same two-phase pattern
// used across the rest of the ecosystem this module was distilled from.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// PoolConfig mirrors the tunables from spec.md §6 / §8 (init_pool config).
type PoolConfig struct {
	ThreadCount           int           `mapstructure:"thread_count" envconfig:"THREAD_COUNT" default:"4"`
	MaxContextsPerRuntime int           `mapstructure:"max_contexts_per_runtime" envconfig:"MAX_CONTEXTS_PER_RUNTIME" default:"256"`
	GlobalQueueSize       int           `mapstructure:"global_queue_size" envconfig:"GLOBAL_QUEUE_SIZE" default:"0"`
	LocalQueueSize        int           `mapstructure:"local_queue_size" envconfig:"LOCAL_QUEUE_SIZE" default:"0"`
	EnableWorkStealing    bool          `mapstructure:"enable_work_stealing" envconfig:"ENABLE_WORK_STEALING" default:"true"`
	IdleThreshold         int           `mapstructure:"idle_threshold" envconfig:"IDLE_THRESHOLD" default:"2"`
	DynamicSizing         bool          `mapstructure:"dynamic_sizing" envconfig:"DYNAMIC_SIZING" default:"false"`
	EnqueueFullWait       time.Duration `mapstructure:"enqueue_full_wait" envconfig:"ENQUEUE_FULL_WAIT" default:"100ms"`
	DequeueEmptyWait      time.Duration `mapstructure:"dequeue_empty_wait" envconfig:"DEQUEUE_EMPTY_WAIT" default:"10ms"`
	WorkerIdleSleep       time.Duration `mapstructure:"worker_idle_sleep" envconfig:"WORKER_IDLE_SLEEP" default:"10ms"`
	AdjusterInterval      time.Duration `mapstructure:"adjuster_interval" envconfig:"ADJUSTER_INTERVAL" default:"1s"`
	MicrotaskDrainCap     int           `mapstructure:"microtask_drain_cap" envconfig:"MICROTASK_DRAIN_CAP" default:"1000"`
	TimerBucketCount      int           `mapstructure:"timer_bucket_count" envconfig:"TIMER_BUCKET_COUNT" default:"64"`
}

// LoggerConfig configures internal/logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig configures internal/telemetry.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME" default:"jsworker"`
	ReportInterval time.Duration `mapstructure:"report_interval" envconfig:"TELEMETRY_REPORT_INTERVAL" default:"30s"`
}

// Config is the root configuration object for an embedding application.
type Config struct {
	Pool      PoolConfig      `mapstructure:"pool"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// Default returns a Config populated with the struct tag defaults, with any
// matching environment variables applied on top (envconfig.Process reads
// both); no config file is read.
func Default() Config {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(fmt.Errorf("config: defaults failed to process: %w", err))
	}
	return cfg
}

// Load reads ./configs/config.yaml (if present) and layers environment
// variable overrides on top, mirroring the teacher service's Load().
func Load() (*Config, error) {
	cfg := Default()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	} else if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process environment: %w", err)
	}

	return &cfg, nil
}
