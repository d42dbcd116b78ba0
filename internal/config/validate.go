package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/robfig/cron/v3"

	"vconv/internal/formats"
)

var (
	offsetPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(\.\d+)?$`)
	sizePattern   = regexp.MustCompile(`^\d+x\d+$`)
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.MaxInputMiB <= 0 {
		return errors.New("conversion.max_input_mib must be positive")
	}
	if !formats.IsSupported(c.Conversion.DefaultTarget) {
		return fmt.Errorf("conversion.default_target: unsupported format %q (want one of %v)", c.Conversion.DefaultTarget, formats.Supported())
	}
	if !offsetPattern.MatchString(c.Conversion.ThumbnailOffset) {
		return fmt.Errorf("conversion.thumbnail_offset: expected HH:MM:SS, got %q", c.Conversion.ThumbnailOffset)
	}
	if !sizePattern.MatchString(c.Conversion.ThumbnailSize) {
		return fmt.Errorf("conversion.thumbnail_size: expected WIDTHxHEIGHT, got %q", c.Conversion.ThumbnailSize)
	}
	return nil
}

func (c *Config) validateHistory() error {
	switch c.History.Driver {
	case "sqlite":
	case "postgres":
		if c.History.DSN == "" {
			return errors.New("history.dsn must be set when history.driver is postgres (or set VCONV_HISTORY_DSN)")
		}
	default:
		return fmt.Errorf("history.driver: unsupported value %q (want sqlite or postgres)", c.History.Driver)
	}
	switch c.History.Fallback {
	case "pebble":
	case "redis":
		if c.History.RedisAddr == "" {
			return errors.New("history.redis_addr must be set when history.fallback is redis")
		}
		if c.History.RedisDB < 0 {
			return errors.New("history.redis_db must be >= 0")
		}
	default:
		return fmt.Errorf("history.fallback: unsupported value %q (want pebble or redis)", c.History.Fallback)
	}
	if c.History.FallbackLimit <= 0 {
		return errors.New("history.fallback_limit must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

// validateMaintenance accepts an empty schedule, which disables housekeeping.
func (c *Config) validateMaintenance() error {
	if c.Maintenance.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
		return fmt.Errorf("maintenance.schedule: %w", err)
	}
	return nil
}
