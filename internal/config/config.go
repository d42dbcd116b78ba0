package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Engine contains configuration for the transcoding engine.
type Engine struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	// WorkDir is the parent of the per-job scratch namespaces. Empty uses the
	// system temp directory.
	WorkDir string `toml:"work_dir"`
}

// Conversion contains upload limits and thumbnail settings.
type Conversion struct {
	MaxInputMiB     int    `toml:"max_input_mib"`
	DefaultTarget   string `toml:"default_target"`
	ThumbnailOffset string `toml:"thumbnail_offset"`
	ThumbnailSize   string `toml:"thumbnail_size"`
}

// History contains configuration for both history tiers.
type History struct {
	// Driver selects the primary tier: "sqlite" or "postgres".
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	// Fallback selects the flat metadata tier: "pebble" or "redis".
	Fallback         string `toml:"fallback"`
	FallbackPath     string `toml:"fallback_path"`
	FallbackLimit    int    `toml:"fallback_limit"`
	RedisAddr        string `toml:"redis_addr"`
	RedisPassword    string `toml:"redis_password"`
	RedisDB          int    `toml:"redis_db"`
	RedisKey         string `toml:"redis_key"`
	HandleTTLSeconds int    `toml:"handle_ttl_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Maintenance contains the cron schedule for daemon housekeeping.
type Maintenance struct {
	Schedule string `toml:"schedule"`
}

// Config encapsulates all configuration values for vconv.
//
// Configuration sections by subsystem:
//   - Paths: data, staging, and log directories plus the API bind address
//   - Engine: ffmpeg binary and scratch directory
//   - Conversion: upload cap, default target, thumbnail recipe
//   - History: primary SQL tier and flat fallback tier
//   - Logging: log format, level, and retention
//   - Maintenance: housekeeping schedule
type Config struct {
	Paths       Paths       `toml:"paths"`
	Engine      Engine      `toml:"engine"`
	Conversion  Conversion  `toml:"conversion"`
	History     History     `toml:"history"`
	Logging     Logging     `toml:"logging"`
	Maintenance Maintenance `toml:"maintenance"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vconv.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir}
	if c.Engine.WorkDir != "" {
		dirs = append(dirs, c.Engine.WorkDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxInputBytes returns the upload cap in bytes.
func (c *Config) MaxInputBytes() int64 {
	return int64(c.Conversion.MaxInputMiB) * 1024 * 1024
}

// LockPath returns the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vconv.lock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "vconv.pid")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "vconv.log")
}

// HistoryDSN returns the primary history DSN, defaulting to a sqlite file in
// the data directory when none is configured.
func (c *Config) HistoryDSN() string {
	if dsn := strings.TrimSpace(c.History.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// FallbackPath returns the pebble directory for the fallback history tier.
func (c *Config) FallbackPath() string {
	if path := strings.TrimSpace(c.History.FallbackPath); path != "" {
		return path
	}
	return filepath.Join(c.Paths.DataDir, defaultFallbackDirName)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
