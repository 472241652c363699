package config

import (
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/infra/ai"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/blob"
	redisclient "github.com/NehoraiHadad/podcasto-engine/internal/infra/redis"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Blob      blob.Config        `yaml:"blob"`
	Providers ai.Config          `yaml:"providers"`
	Billing   BillingConfig      `yaml:"billing"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BillingConfig holds cost tracking settings.
type BillingConfig struct {
	RollupInterval    time.Duration `yaml:"rollup_interval"`
	AllowMissingPrice bool          `yaml:"allow_missing_price"`
}

// UnmarshalYAML decodes the rollup interval from duration strings like "10m".
func (c *BillingConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		RollupInterval    string `yaml:"rollup_interval"`
		AllowMissingPrice bool   `yaml:"allow_missing_price"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	c.AllowMissingPrice = raw.AllowMissingPrice
	if raw.RollupInterval != "" {
		d, err := time.ParseDuration(raw.RollupInterval)
		if err != nil {
			return err
		}
		c.RollupInterval = d
	}
	return nil
}

// PipelineConfig holds episode generation settings.
type PipelineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UnmarshalYAML decodes the poll interval from duration strings like "5s".
func (c *PipelineConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		PollInterval string `yaml:"poll_interval"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return err
		}
		c.PollInterval = d
	}
	return nil
}
