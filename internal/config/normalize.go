package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vconv/internal/formats"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizeConversion()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Maintenance.Schedule = strings.TrimSpace(c.Maintenance.Schedule)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.DataDir, "staging")
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.FFmpegBinary = strings.TrimSpace(c.Engine.FFmpegBinary)
	if c.Engine.FFmpegBinary == "" {
		if value, ok := os.LookupEnv("VCONV_FFMPEG"); ok && strings.TrimSpace(value) != "" {
			c.Engine.FFmpegBinary = strings.TrimSpace(value)
		} else {
			c.Engine.FFmpegBinary = defaultFFmpegBinary
		}
	}
	var err error
	if c.Engine.WorkDir, err = expandPath(strings.TrimSpace(c.Engine.WorkDir)); err != nil {
		return fmt.Errorf("engine.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeConversion() {
	if c.Conversion.MaxInputMiB <= 0 {
		c.Conversion.MaxInputMiB = defaultMaxInputMiB
	}
	c.Conversion.DefaultTarget = formats.Normalize(c.Conversion.DefaultTarget)
	if c.Conversion.DefaultTarget == "" {
		c.Conversion.DefaultTarget = formats.MP4
	}
	c.Conversion.ThumbnailOffset = strings.TrimSpace(c.Conversion.ThumbnailOffset)
	if c.Conversion.ThumbnailOffset == "" {
		c.Conversion.ThumbnailOffset = defaultThumbnailOffset
	}
	c.Conversion.ThumbnailSize = strings.ToLower(strings.TrimSpace(c.Conversion.ThumbnailSize))
	if c.Conversion.ThumbnailSize == "" {
		c.Conversion.ThumbnailSize = defaultThumbnailSize
	}
}

func (c *Config) normalizeHistory() error {
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	if c.History.Driver == "" {
		c.History.Driver = defaultHistoryDriver
	}
	c.History.DSN = strings.TrimSpace(c.History.DSN)
	if c.History.DSN == "" {
		if value, ok := os.LookupEnv("VCONV_HISTORY_DSN"); ok {
			c.History.DSN = strings.TrimSpace(value)
		}
	}
	if c.History.Driver == "sqlite" && c.History.DSN != "" && !strings.HasPrefix(c.History.DSN, "file:") {
		expanded, err := expandPath(c.History.DSN)
		if err != nil {
			return fmt.Errorf("history.dsn: %w", err)
		}
		c.History.DSN = expanded
	}

	c.History.Fallback = strings.ToLower(strings.TrimSpace(c.History.Fallback))
	if c.History.Fallback == "" {
		c.History.Fallback = defaultHistoryFallback
	}
	if strings.TrimSpace(c.History.FallbackPath) == "" {
		c.History.FallbackPath = filepath.Join(c.Paths.DataDir, defaultFallbackDirName)
	}
	var err error
	if c.History.FallbackPath, err = expandPath(c.History.FallbackPath); err != nil {
		return fmt.Errorf("history.fallback_path: %w", err)
	}
	if c.History.FallbackLimit <= 0 {
		c.History.FallbackLimit = defaultFallbackLimit
	}

	if value, ok := os.LookupEnv("VCONV_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.History.RedisAddr = strings.TrimSpace(value)
	}
	c.History.RedisAddr = strings.TrimSpace(c.History.RedisAddr)
	if c.History.RedisAddr == "" {
		c.History.RedisAddr = defaultRedisAddr
	}
	if c.History.RedisPassword == "" {
		if value, ok := os.LookupEnv("VCONV_REDIS_PASSWORD"); ok {
			c.History.RedisPassword = value
		}
	}
	c.History.RedisKey = strings.TrimSpace(c.History.RedisKey)
	if c.History.RedisKey == "" {
		c.History.RedisKey = defaultRedisKey
	}
	if c.History.HandleTTLSeconds <= 0 {
		c.History.HandleTTLSeconds = defaultHandleTTLSeconds
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
