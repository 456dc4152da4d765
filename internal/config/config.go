package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/health"
	"github.com/tiercache/tiercache/pkg/retry"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIERCACHE_"

// Size estimators selectable with cache.size_estimator.
const (
	SizeEstimatorConstant = "constant"
	SizeEstimatorLayout   = "layout"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig         `yaml:"global"`
	Server  ServerConfig         `yaml:"server"`
	Cache   CacheConfig          `yaml:"cache"`
	Disk    DiskConfig           `yaml:"disk"`
	Network NetworkConfig        `yaml:"network"`
	Health  health.TrackerConfig `yaml:"health"`
	Metrics MetricsConfig        `yaml:"metrics"`
	Preheat PreheatConfig        `yaml:"preheat"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig configures the coordinator.
type CacheConfig struct {
	// MemoryLimit is a byte size such as "64MB".
	MemoryLimit string         `yaml:"memory_limit"`
	Strategy    types.Strategy `yaml:"strategy"`
	// DefaultEntrySize is what the default size estimator charges per value.
	DefaultEntrySize string `yaml:"default_entry_size"`
	// SizeEstimator is "constant" (every value costs DefaultEntrySize) or
	// "layout" (layout results are charged by line count).
	SizeEstimator  string            `yaml:"size_estimator"`
	SweepInterval  time.Duration     `yaml:"sweep_interval"`
	HitHistorySize int               `yaml:"hit_history_size"`
	HealthCheck    HealthCheckConfig `yaml:"health_check"`
}

// HealthCheckConfig holds the thresholds PerformHealthCheck applies.
type HealthCheckConfig struct {
	MinHitRate         float64       `yaml:"min_hit_rate"`
	MinRequests        int64         `yaml:"min_requests"`
	MaxAverageResponse time.Duration `yaml:"max_average_response"`
	MemoryPressure     float64       `yaml:"memory_pressure"`
}

// DiskConfig configures the disk tier.
type DiskConfig struct {
	Enabled bool `yaml:"enabled"`
	// Directory defaults to the platform cache directory when empty.
	Directory string `yaml:"directory"`
	// Compression is "zstd" or "none".
	Compression      string `yaml:"compression"`
	CompressionLevel int    `yaml:"compression_level"`
}

// NetworkConfig configures the network tier source.
type NetworkConfig struct {
	// Source is "none", "valkey" or "s3".
	Source         string         `yaml:"source"`
	Timeout        time.Duration  `yaml:"timeout"`
	Valkey         ValkeyConfig   `yaml:"valkey"`
	S3             S3Config       `yaml:"s3"`
	Retry          retry.Config   `yaml:"retry"`
	CircuitBreaker circuit.Config `yaml:"circuit_breaker"`
}

// ValkeyConfig configures the Valkey source.
type ValkeyConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	Prefix    string   `yaml:"prefix"`
}

// S3Config configures the S3 source.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// PreheatConfig configures preheating requested through the API.
type PreheatConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "console",
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			MemoryLimit:      "64MB",
			Strategy:         types.LRU(1000),
			DefaultEntrySize: "1KB",
			SizeEstimator:    SizeEstimatorConstant,
			SweepInterval:    60 * time.Second,
			HitHistorySize:   1000,
			HealthCheck: HealthCheckConfig{
				MinHitRate:         0.5,
				MinRequests:        100,
				MaxAverageResponse: 100 * time.Millisecond,
				MemoryPressure:     0.9,
			},
		},
		Disk: DiskConfig{
			Enabled:          true,
			Compression:      "zstd",
			CompressionLevel: 3,
		},
		Network: NetworkConfig{
			Source:         "none",
			Timeout:        500 * time.Millisecond,
			Valkey:         ValkeyConfig{Prefix: "tiercache:"},
			S3:             S3Config{Prefix: "tiercache/"},
			Retry:          retry.DefaultConfig(),
			CircuitBreaker: circuit.DefaultConfig(),
		},
		Health: health.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "tiercache",
		},
		Preheat: PreheatConfig{
			MaxConcurrency: 8,
		},
	}
}

// Load builds the effective configuration: defaults, then filename (when
// non-empty), then environment overrides. The result is validated.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithDetail("file", filename)
	}

	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithDetail("file", filename)
	}

	return nil
}

// LoadFromEnv applies TIERCACHE_* environment overrides.
func (c *Configuration) LoadFromEnv() error {
	env := envReader{}

	env.str("LOG_LEVEL", &c.Global.LogLevel)
	env.str("LOG_FORMAT", &c.Global.LogFormat)
	env.str("LOG_FILE", &c.Global.LogFile)
	env.str("ADDRESS", &c.Server.Address)

	env.str("MEMORY_LIMIT", &c.Cache.MemoryLimit)
	if val, ok := os.LookupEnv(EnvPrefix + "STRATEGY"); ok {
		c.Cache.Strategy.Kind = types.StrategyKind(strings.ToLower(strings.TrimSpace(val)))
	}
	env.integer("CAPACITY", &c.Cache.Strategy.Capacity)
	env.duration("TTL", &c.Cache.Strategy.TTL)
	env.duration("SWEEP_INTERVAL", &c.Cache.SweepInterval)
	env.str("SIZE_ESTIMATOR", &c.Cache.SizeEstimator)

	env.boolean("DISK_ENABLED", &c.Disk.Enabled)
	env.str("DISK_DIR", &c.Disk.Directory)
	env.str("COMPRESSION", &c.Disk.Compression)

	env.str("NETWORK_SOURCE", &c.Network.Source)
	env.duration("NETWORK_TIMEOUT", &c.Network.Timeout)
	if val, ok := os.LookupEnv(EnvPrefix + "VALKEY_ADDRESSES"); ok {
		c.Network.Valkey.Addresses = splitList(val)
	}
	env.str("VALKEY_PASSWORD", &c.Network.Valkey.Password)
	env.str("VALKEY_PREFIX", &c.Network.Valkey.Prefix)
	env.str("S3_BUCKET", &c.Network.S3.Bucket)
	env.str("S3_PREFIX", &c.Network.S3.Prefix)
	env.str("S3_REGION", &c.Network.S3.Region)
	env.str("S3_ENDPOINT", &c.Network.S3.Endpoint)

	env.boolean("METRICS_ENABLED", &c.Metrics.Enabled)

	if len(env.errs) > 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, strings.Join(env.errs, "; ")).
			WithComponent("config").WithOperation("load_env")
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to create config directory")
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to write config file")
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Newf(errors.ErrCodeInvalidConfig, format, args...).
			WithComponent("config").WithOperation("validate")
	}

	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("invalid log_level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Global.LogLevel)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("invalid log_format: %s", c.Global.LogFormat)
	}

	if c.Server.Address == "" {
		return invalid("server.address must not be empty")
	}

	if _, err := c.MemoryLimitBytes(); err != nil {
		return invalid("invalid cache.memory_limit: %v", err)
	}
	if _, err := c.DefaultEntrySizeBytes(); err != nil {
		return invalid("invalid cache.default_entry_size: %v", err)
	}
	if err := c.Cache.Strategy.Validate(); err != nil {
		return invalid("invalid cache.strategy: %v", err)
	}
	switch c.Cache.SizeEstimator {
	case "", SizeEstimatorConstant, SizeEstimatorLayout:
	default:
		return invalid("invalid cache.size_estimator: %s (must be constant or layout)", c.Cache.SizeEstimator)
	}
	if c.Cache.SweepInterval <= 0 {
		return invalid("cache.sweep_interval must be positive")
	}
	if c.Cache.HitHistorySize <= 0 {
		return invalid("cache.hit_history_size must be positive")
	}
	hc := c.Cache.HealthCheck
	if hc.MinHitRate < 0 || hc.MinHitRate > 1 {
		return invalid("cache.health_check.min_hit_rate must be within [0, 1]")
	}
	if hc.MemoryPressure <= 0 || hc.MemoryPressure > 1 {
		return invalid("cache.health_check.memory_pressure must be within (0, 1]")
	}

	switch c.Disk.Compression {
	case "zstd", "none", "":
	default:
		return invalid("invalid disk.compression: %s (must be zstd or none)", c.Disk.Compression)
	}

	switch c.Network.Source {
	case "", "none":
	case "valkey":
		if len(c.Network.Valkey.Addresses) == 0 {
			return invalid("network.valkey.addresses is required for the valkey source")
		}
	case "s3":
		if c.Network.S3.Bucket == "" {
			return invalid("network.s3.bucket is required for the s3 source")
		}
	default:
		return invalid("invalid network.source: %s (must be none, valkey or s3)", c.Network.Source)
	}

	if c.Preheat.MaxConcurrency <= 0 {
		return invalid("preheat.max_concurrency must be greater than 0")
	}

	return nil
}

// MemoryLimitBytes parses Cache.MemoryLimit.
func (c *Configuration) MemoryLimitBytes() (int64, error) {
	return utils.ParseBytes(c.Cache.MemoryLimit)
}

// DefaultEntrySizeBytes parses Cache.DefaultEntrySize.
func (c *Configuration) DefaultEntrySizeBytes() (int64, error) {
	return utils.ParseBytes(c.Cache.DefaultEntrySize)
}

type envReader struct {
	errs []string
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := os.LookupEnv(EnvPrefix + name); ok {
		*dst = val
	}
}

func (r *envReader) integer(name string, dst *int) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		return
	}
	*dst = n
}

func (r *envReader) duration(name string, dst *time.Duration) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		return
	}
	*dst = d
}

func (r *envReader) boolean(name string, dst *bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		return
	}
	*dst = b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
