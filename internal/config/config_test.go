package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vconv/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VCONV_HISTORY_DSN", "")
	t.Setenv("VCONV_REDIS_ADDR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vconv")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7497" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Conversion.MaxInputMiB != 500 {
		t.Fatalf("unexpected max input: %d", cfg.Conversion.MaxInputMiB)
	}
	if cfg.MaxInputBytes() != 500*1024*1024 {
		t.Fatalf("unexpected max input bytes: %d", cfg.MaxInputBytes())
	}
	if cfg.History.Driver != "sqlite" || cfg.History.Fallback != "pebble" {
		t.Fatalf("unexpected history tiers: %s/%s", cfg.History.Driver, cfg.History.Fallback)
	}
	if cfg.History.FallbackLimit != 50 {
		t.Fatalf("unexpected fallback limit: %d", cfg.History.FallbackLimit)
	}
	if cfg.History.FallbackPath != filepath.Join(wantData, "history-fallback") {
		t.Fatalf("unexpected fallback path: %q", cfg.History.FallbackPath)
	}
	if cfg.HistoryDSN() != filepath.Join(wantData, "history.db") {
		t.Fatalf("unexpected history dsn: %q", cfg.HistoryDSN())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vconv.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Conversion struct {
			MaxInputMiB   int    `toml:"max_input_mib"`
			DefaultTarget string `toml:"default_target"`
		} `toml:"conversion"`
		History struct {
			Fallback string `toml:"fallback"`
		} `toml:"history"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Conversion.MaxInputMiB = 64
	custom.Conversion.DefaultTarget = "WEBM"
	custom.History.Fallback = "redis"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Conversion.MaxInputMiB != 64 {
		t.Fatalf("expected max input 64, got %d", cfg.Conversion.MaxInputMiB)
	}
	if cfg.Conversion.DefaultTarget != "webm" {
		t.Fatalf("expected normalized default target, got %q", cfg.Conversion.DefaultTarget)
	}
	if cfg.History.Fallback != "redis" {
		t.Fatalf("expected redis fallback, got %q", cfg.History.Fallback)
	}
	if cfg.LockPath() != filepath.Join(tempDir, "data", "vconv.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VCONV_HISTORY_DSN", "postgres://vconv@db/vconv?sslmode=disable")
	t.Setenv("VCONV_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("VCONV_REDIS_PASSWORD", "hunter2")

	configPath := filepath.Join(t.TempDir(), "vconv.toml")
	contents := "[history]\ndriver = \"postgres\"\nredis_addr = \"file:6379\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.History.DSN != "postgres://vconv@db/vconv?sslmode=disable" {
		t.Fatalf("expected dsn from env, got %q", cfg.History.DSN)
	}
	if cfg.History.RedisAddr != "redis.internal:6380" {
		t.Fatalf("expected env redis addr to win, got %q", cfg.History.RedisAddr)
	}
	if cfg.History.RedisPassword != "hunter2" {
		t.Fatalf("expected redis password from env, got %q", cfg.History.RedisPassword)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"driver", func(c *config.Config) { c.History.Driver = "mysql" }, "history.driver"},
		{"postgres without dsn", func(c *config.Config) { c.History.Driver = "postgres"; c.History.DSN = "" }, "history.dsn"},
		{"fallback", func(c *config.Config) { c.History.Fallback = "memcached" }, "history.fallback"},
		{"target", func(c *config.Config) { c.Conversion.DefaultTarget = "gif" }, "conversion.default_target"},
		{"offset", func(c *config.Config) { c.Conversion.ThumbnailOffset = "1s" }, "conversion.thumbnail_offset"},
		{"size", func(c *config.Config) { c.Conversion.ThumbnailSize = "small" }, "conversion.thumbnail_size"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"schedule", func(c *config.Config) { c.Maintenance.Schedule = "every day" }, "maintenance.schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestEmptyScheduleDisablesMaintenance(t *testing.T) {
	cfg := config.Default()
	cfg.Maintenance.Schedule = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VCONV_HISTORY_DSN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Conversion.ThumbnailSize != "160x120" {
		t.Fatalf("unexpected thumbnail size: %q", cfg.Conversion.ThumbnailSize)
	}
}
