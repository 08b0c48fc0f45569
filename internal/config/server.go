package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

// EnvPrefix prefixes environment overrides, e.g. CONTRACT_HOST_WASM_MAX_INSTANCES.
const EnvPrefix = "CONTRACT_HOST"

type ServerConfig struct {
	ContractPaths  []string        `mapstructure:"contract_paths" validate:"required,min=1,dive,required"`
	LogLevel       string          `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ListenAddr     string          `mapstructure:"listen_addr" validate:"required,hostname_port"`
	MetricsEnabled bool            `mapstructure:"metrics_enabled"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Wasm           WasmConfig      `mapstructure:"wasm"`

	// LogLevelSet reports whether log_level came from the config file, the
	// environment or a flag rather than the built-in default.
	LogLevelSet bool `mapstructure:"-"`
}

// RateLimitConfig bounds call throughput per contract. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages" validate:"gte=1,lte=65536"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances" validate:"gte=1"`
	// Module execution timeout per call.
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout" validate:"gte=0"`
	// Calls served by one instance before it is replaced. Zero keeps instances forever.
	MaxCallsPerInstance uint64 `mapstructure:"max_calls_per_instance"`
	// Largest result a contract may return.
	MaxResultBytes uint32 `mapstructure:"max_result_bytes"`
}

// RuntimeConfig converts the wasm section into runtime settings.
func (c WasmConfig) RuntimeConfig() *wasm.RuntimeConfig {
	return &wasm.RuntimeConfig{
		MemoryPages:      c.MemoryPages,
		DebugEnabled:     c.Debug,
		CacheDir:         c.CacheDir,
		MaxInstances:     c.MaxInstances,
		ExecutionTimeout: c.ExecutionTimeout,
		MaxResultBytes:   c.MaxResultBytes,
	}
}

func LoadServerConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("contract_paths", []string{"./contracts"})
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 0)

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", "30s")
	v.SetDefault("wasm.max_calls_per_instance", 0)
	v.SetDefault("wasm.max_result_bytes", 8<<20)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevelSet = v.InConfig("log_level") || os.Getenv(EnvPrefix+"_LOG_LEVEL") != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *ServerConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
