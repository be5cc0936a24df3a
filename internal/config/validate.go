package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	switch c.RateLimit.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("ratelimit.backend: unsupported value %q (expected memory or sqlite)", c.RateLimit.Backend)
	}
	if c.RateLimit.MinDelayMS > c.RateLimit.MaxDelayMS {
		return fmt.Errorf("ratelimit.min_delay_ms (%d) exceeds ratelimit.max_delay_ms (%d)",
			c.RateLimit.MinDelayMS, c.RateLimit.MaxDelayMS)
	}
	if c.RateLimit.BaseDelayMS < c.RateLimit.MinDelayMS || c.RateLimit.BaseDelayMS > c.RateLimit.MaxDelayMS {
		return fmt.Errorf("ratelimit.base_delay_ms (%d) outside [min_delay_ms, max_delay_ms]", c.RateLimit.BaseDelayMS)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Strategy {
	case "wide", "deep":
	default:
		return fmt.Errorf("pipeline.strategy: unsupported value %q (expected wide or deep)", c.Pipeline.Strategy)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Daemon.PassSchedule); err != nil {
		return fmt.Errorf("daemon.pass_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
