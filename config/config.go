// Package config loads the engine configuration from a YAML or JSON file
// with optional PLAN_-prefixed environment overrides
// (PLAN_SERVER__PORT=9090 overrides server.port).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Leave    LeaveConfig    `json:"leave"`
}

type ServerConfig struct {
	Port        int      `json:"port"`
	CORSOrigins []string `json:"corsOrigins"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory
	// store (dev mode, nothing survives a restart).
	Path string `json:"path"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// LeaveConfig holds the organization-wide default quotas used when an
// allocation is lazily created.
type LeaveConfig struct {
	DefaultAnnualDays float64 `json:"defaultAnnualDays"`
	DefaultSickDays   float64 `json:"defaultSickDays"`
	DefaultOtherDays  float64 `json:"defaultOtherDays"`
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Leave.DefaultAnnualDays == 0 {
		c.Leave.DefaultAnnualDays = 25
	}
	if c.Leave.DefaultSickDays == 0 {
		c.Leave.DefaultSickDays = 10
	}
	if c.Leave.DefaultOtherDays == 0 {
		c.Leave.DefaultOtherDays = 5
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Leave.DefaultAnnualDays < 0 || c.Leave.DefaultSickDays < 0 || c.Leave.DefaultOtherDays < 0 {
		return fmt.Errorf("leave defaults must not be negative")
	}
	return nil
}

// AnnualDays returns the annual quota as a decimal.
func (c LeaveConfig) AnnualDays() decimal.Decimal { return decimal.NewFromFloat(c.DefaultAnnualDays) }

// SickDays returns the sick quota as a decimal.
func (c LeaveConfig) SickDays() decimal.Decimal { return decimal.NewFromFloat(c.DefaultSickDays) }

// OtherDays returns the other-leave quota as a decimal.
func (c LeaveConfig) OtherDays() decimal.Decimal { return decimal.NewFromFloat(c.DefaultOtherDays) }

// Load reads the file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := loadEnv(k); err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// Default returns the configuration with no file, honoring environment
// overrides only.
func Default() (*Config, error) {
	k := koanf.New(".")
	if err := loadEnv(k); err != nil {
		return nil, err
	}
	return unmarshal(k)
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider("PLAN_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "plan_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
