package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	// Network
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`

	// Worker pools
	KVWorkers     int  `mapstructure:"kv_workers"` // 0 = auto-detect cores
	VectorWorkers int  `mapstructure:"vector_workers"`
	PinKVWorkers  bool `mapstructure:"pin_kv_workers"`
	QueueCapacity int  `mapstructure:"queue_capacity"`

	// Store
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxPayload    uint32        `mapstructure:"max_payload"`

	// Semantic cache
	VectorDim          int     `mapstructure:"vector_dim"`
	SemanticThreshold  float64 `mapstructure:"semantic_threshold"`
	SemanticMaxResults int     `mapstructure:"semantic_max_results"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Admin HTTP
	AdminEnabled bool `mapstructure:"admin_enabled"`
	AdminPort    int  `mapstructure:"admin_port"`

	// Persistence
	EnablePersist bool          `mapstructure:"enable_persist"`
	DataDir       string        `mapstructure:"data_dir"`
	AofSync       string        `mapstructure:"aof_sync"`
	SaveInterval  time.Duration `mapstructure:"save_interval"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Bind:               "localhost",
		Port:               6380,
		KVWorkers:          0,
		VectorWorkers:      4,
		PinKVWorkers:       true,
		QueueCapacity:      10000,
		SweepInterval:      10 * time.Second,
		MaxPayload:         DefaultMaxPayload,
		VectorDim:          1536,
		SemanticThreshold:  0.85,
		SemanticMaxResults: 5,
		LogLevel:           "info",
		LogFormat:          "console",
		AdminEnabled:       true,
		AdminPort:          9090,
		EnablePersist:      false,
		DataDir:            "./data",
		AofSync:            "everysec",
		SaveInterval:       300 * time.Second,
	}
}

// LoadConfig layers defaults, an optional celrix.yaml and CELRIX_*
// environment variables under any flag bindings already registered with
// viper.
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("celrix")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/celrix/")
	viper.AddConfigPath("$HOME/.celrix")

	viper.SetEnvPrefix("CELRIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("bind", config.Bind)
	viper.SetDefault("port", config.Port)
	viper.SetDefault("kv_workers", config.KVWorkers)
	viper.SetDefault("vector_workers", config.VectorWorkers)
	viper.SetDefault("pin_kv_workers", config.PinKVWorkers)
	viper.SetDefault("queue_capacity", config.QueueCapacity)
	viper.SetDefault("sweep_interval", config.SweepInterval)
	viper.SetDefault("max_payload", config.MaxPayload)
	viper.SetDefault("vector_dim", config.VectorDim)
	viper.SetDefault("semantic_threshold", config.SemanticThreshold)
	viper.SetDefault("semantic_max_results", config.SemanticMaxResults)
	viper.SetDefault("log_level", config.LogLevel)
	viper.SetDefault("log_format", config.LogFormat)
	viper.SetDefault("admin_enabled", config.AdminEnabled)
	viper.SetDefault("admin_port", config.AdminPort)
	viper.SetDefault("enable_persist", config.EnablePersist)
	viper.SetDefault("data_dir", config.DataDir)
	viper.SetDefault("aof_sync", config.AofSync)
	viper.SetDefault("save_interval", config.SaveInterval)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; flags, env and defaults cover everything.
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.KVWorkers < 0 {
		return fmt.Errorf("kv_workers must be >= 0")
	}
	if c.VectorWorkers < 1 {
		return fmt.Errorf("vector_workers must be at least 1")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1")
	}
	if c.VectorDim < 1 {
		return fmt.Errorf("vector_dim must be at least 1")
	}
	if c.SemanticThreshold < -1 || c.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be in [-1, 1]")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be console or json)", c.LogFormat)
	}

	if _, err := ParseAofSyncMode(c.AofSync); err != nil {
		return fmt.Errorf("invalid aof_sync: %w", err)
	}

	return nil
}

// EffectiveKVWorkers resolves the 0 = auto-detect sentinel.
func (c *Config) EffectiveKVWorkers() int {
	if c.KVWorkers > 0 {
		return c.KVWorkers
	}
	return runtime.NumCPU()
}

// Addr returns the data-plane listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// AdminAddr returns the admin HTTP listen address.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.AdminPort)
}

// String returns a one-line summary for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("celrix config: %s, kv_workers=%d, vector_workers=%d, queue=%d",
		c.Addr(), c.EffectiveKVWorkers(), c.VectorWorkers, c.QueueCapacity)
}
