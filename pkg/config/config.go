package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kacperjurak/goedxcore"
)

// Config holds all configuration settings for the refinement tools
type Config struct {
	Refinement goedxcore.Config `toml:"refinement"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string   `toml:"port"`
	WorkerCount     int      `toml:"worker_count"`
	QueueSize       int      `toml:"queue_size"`
	WebhookURL      string   `toml:"webhook_url"`
	WebhookTimeout  Duration `toml:"webhook_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	EnableProfiling bool     `toml:"enable_profiling"`
	ProfilingPort   string   `toml:"profiling_port"`
}

// LogConfig selects the zap logger built by the commands
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration written as "30s" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Refinement: goedxcore.DefaultConfig(),
		Server: ServerConfig{
			Port:            "8080",
			WorkerCount:     5,
			QueueSize:       1000,
			WebhookURL:      "",
			WebhookTimeout:  Duration{30 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
			MaxBodyBytes:    64 << 20,
			ProfilingPort:   "6060",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML file on top of the defaults
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Refinement.Validate(); err != nil {
		return fmt.Errorf("refinement: %w", err)
	}
	if c.Server.WorkerCount < 1 {
		return fmt.Errorf("server: worker_count %d < 1", c.Server.WorkerCount)
	}
	if c.Server.QueueSize < 1 {
		return fmt.Errorf("server: queue_size %d < 1", c.Server.QueueSize)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Logger builds the zap logger described by the log section
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
