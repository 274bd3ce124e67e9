// Package config defines the improv server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelsConfig names the models used for page generation and for the
// cheaper utility tasks (summaries, random topics).
type ModelsConfig struct {
	Main    string `yaml:"main"`
	Utility string `yaml:"utility"`
}

// GeneratorConfig tunes page generation.
type GeneratorConfig struct {
	Temperature float64 `yaml:"temperature"`
	// Timeout bounds a single generation; zero means no bound.
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig tunes the in-memory response cache. Zero values mean
// unbounded size and no expiry.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// MemoryConfig holds the site memory settings.
type MemoryConfig struct {
	File string `yaml:"file"`
	// Watch enables clearing the in-process memory when the file is
	// deleted externally.
	Watch bool `yaml:"watch"`
}

// PipelineConfig tunes request orchestration.
type PipelineConfig struct {
	// Coalesce collapses concurrent identical GET requests into a
	// single generation.
	Coalesce bool `yaml:"coalesce"`
}

// Config is the complete improv server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Models    ModelsConfig    `yaml:"models"`
	Generator GeneratorConfig `yaml:"generator"`
	Cache     CacheConfig     `yaml:"cache"`
	Memory    MemoryConfig    `yaml:"memory"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LogLevel  string          `yaml:"log_level"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Models: ModelsConfig{
			Main:    "openrouter/auto",
			Utility: "openrouter/auto",
		},
		Generator: GeneratorConfig{
			Temperature: 0.7,
		},
		Memory: MemoryConfig{
			File:  ".improv_memory.json",
			Watch: true,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file and merges it over the defaults. Fields
// absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Models.Main == "" {
		return fmt.Errorf("models.main must not be empty")
	}
	if c.Models.Utility == "" {
		return fmt.Errorf("models.utility must not be empty")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator.temperature %v out of range [0, 2]", c.Generator.Temperature)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if c.Memory.File == "" {
		return fmt.Errorf("memory.file must not be empty")
	}
	return nil
}
