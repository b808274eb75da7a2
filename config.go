package luckydraw

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config is the full engine configuration
type Config struct {
	Engine         *EngineConfig         `mapstructure:"engine"`
	Redis          *RedisConfig          `mapstructure:"redis"`
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Draw           *DrawConfig           `mapstructure:"draw"`
}

func (c *Config) Validate() error {
	if c.Engine.LockTimeout < MinLockTimeout || c.Engine.LockTimeout > MaxLockTimeout {
		return ErrInvalidLockTimeout
	}
	if c.Engine.RetryAttempts < 0 || c.Engine.RetryAttempts > MaxRetryAttempts {
		return ErrInvalidRetryAttempts
	}
	if c.Engine.RetryInterval < 0 {
		return ErrInvalidRetryInterval
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool size must be positive")
	}

	if c.Draw != nil {
		if c.Draw.MultiDrawSize < 1 || c.Draw.MultiDrawSize > MaxDrawBatchSize {
			return ErrInvalidDrawCount
		}
		if c.Draw.ForcedLossDraws < 0 || c.Draw.BatchQuotaMin < 0 {
			return fmt.Errorf("forced draw counts cannot be negative")
		}
		if c.Draw.BatchQuotaMin > c.Draw.MultiDrawSize {
			return fmt.Errorf("batch quota cannot exceed the multi-draw size")
		}
	}

	return nil
}

// EngineConfig holds lock and retry settings for the draw engine
type EngineConfig struct {
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LockTimeout:   DefaultLockTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryInterval: DefaultRetryInterval,
	}
}

// DrawConfig holds the promotional draw rules. ForcedLoss* and BatchQuota*
// configure the outcome policies applied to every draw request.
type DrawConfig struct {
	MultiDrawSize     int    `mapstructure:"multi_draw_size"`
	ForcedLossEntryID string `mapstructure:"forced_loss_entry_id"`
	ForcedLossDraws   int    `mapstructure:"forced_loss_draws"`
	BatchQuotaEntryID string `mapstructure:"batch_quota_entry_id"`
	BatchQuotaMin     int    `mapstructure:"batch_quota_min"`
}

func DefaultDrawConfig() *DrawConfig {
	return &DrawConfig{
		MultiDrawSize: DefaultMultiDrawSize,
	}
}

// OutcomePolicy builds the configured outcome policy chain, or nil when no
// forced outcomes are configured
func (c *DrawConfig) OutcomePolicy() OutcomePolicy {
	var policies []OutcomePolicy
	if c.ForcedLossEntryID != "" && c.ForcedLossDraws > 0 {
		policies = append(policies, NewForcedLossPolicy(c.ForcedLossEntryID, c.ForcedLossDraws))
	}
	if c.BatchQuotaEntryID != "" && c.BatchQuotaMin > 0 {
		policies = append(policies, NewBatchQuotaPolicy(c.BatchQuotaEntryID, c.BatchQuotaMin))
	}

	switch len(policies) {
	case 0:
		return nil
	case 1:
		return policies[0]
	default:
		return ChainPolicies(policies...)
	}
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig returns the default circuit breaker settings
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// ConfigManager loads and watches engine configuration
type ConfigManager struct {
	viper  *viper.Viper
	config *Config
}

// NewConfigManager creates a config manager reading config.yaml from the
// usual locations, with LUCKYDRAW_* environment overrides
func NewConfigManager() *ConfigManager {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/luckydraw")
	v.AddConfigPath("$HOME/.luckydraw")

	v.SetEnvPrefix("LUCKYDRAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigManager{
		viper: v,
	}
}

// LoadConfig reads the configuration file, falling back to defaults when no
// file is found
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	cm.setDefaults()

	if err := cm.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cm.config = config
	return config, nil
}

func (cm *ConfigManager) setDefaults() {
	cm.viper.SetDefault("engine.lock_timeout", "30s")
	cm.viper.SetDefault("engine.retry_attempts", 3)
	cm.viper.SetDefault("engine.retry_interval", "100ms")

	cm.viper.SetDefault("draw.multi_draw_size", DefaultMultiDrawSize)
	cm.viper.SetDefault("draw.forced_loss_entry_id", "")
	cm.viper.SetDefault("draw.forced_loss_draws", 0)
	cm.viper.SetDefault("draw.batch_quota_entry_id", "")
	cm.viper.SetDefault("draw.batch_quota_min", 0)

	cm.viper.SetDefault("redis.addr", DefaultRedisAddr)
	cm.viper.SetDefault("redis.password", "")
	cm.viper.SetDefault("redis.db", 0)
	cm.viper.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	cm.viper.SetDefault("redis.max_retries", DefaultRedisMaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", "5s")
	cm.viper.SetDefault("redis.read_timeout", "3s")
	cm.viper.SetDefault("redis.write_timeout", "3s")
	cm.viper.SetDefault("redis.pool_timeout", "4s")

	cm.viper.SetDefault("circuit_breaker.enabled", true)
	cm.viper.SetDefault("circuit_breaker.name", DefaultCircuitBreakerName)
	cm.viper.SetDefault("circuit_breaker.max_requests", 3)
	cm.viper.SetDefault("circuit_breaker.interval", "60s")
	cm.viper.SetDefault("circuit_breaker.timeout", "30s")
	cm.viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	cm.viper.SetDefault("circuit_breaker.min_requests", 3)
	cm.viper.SetDefault("circuit_breaker.on_state_change", true)
}

// WatchConfig reloads the configuration whenever the file changes. Invalid
// updates are dropped and the previous configuration stays active.
func (cm *ConfigManager) WatchConfig(callback func(*Config)) error {
	cm.viper.WatchConfig()
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config := &Config{}
		if err := cm.viper.Unmarshal(config); err != nil {
			return
		}

		if err := config.Validate(); err != nil {
			return
		}

		cm.config = config
		if callback != nil {
			callback(config)
		}
	})

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config { return cm.config }

// ReloadConfig re-reads the configuration file
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }

// DefaultRedisConfig returns the default Redis settings
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// NewRedisClient creates a Redis client with the default settings
func NewRedisClient() *redis.Client {
	return NewRedisClientFromConfig(DefaultRedisConfig())
}

// NewRedisClientFromConfig creates a Redis client from the given settings
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

// NewDefaultConfigManager creates a config manager preloaded with defaults,
// without reading any file
func NewDefaultConfigManager() *ConfigManager {
	cm := NewConfigManager()
	cm.setDefaults()

	cm.config = &Config{
		Engine:         DefaultEngineConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Draw:           DefaultDrawConfig(),
	}
	return cm
}

// NewConfigManagerFromConfig wraps an already built configuration
func NewConfigManagerFromConfig(config *Config) (*ConfigManager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cm := NewConfigManager()
	cm.config = config
	return cm, nil
}
