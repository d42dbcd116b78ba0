package config

import "vconv/internal/formats"

const (
	defaultConfigPath       = "~/.config/vconv/config.toml"
	defaultDataDir          = "~/.local/share/vconv"
	defaultStagingDir       = "~/.local/share/vconv/staging"
	defaultLogDir           = "~/.local/share/vconv/logs"
	defaultAPIBind          = "127.0.0.1:7497"
	defaultFFmpegBinary     = "ffmpeg"
	defaultMaxInputMiB      = 500
	defaultThumbnailOffset  = "00:00:01"
	defaultThumbnailSize    = "160x120"
	defaultHistoryDriver    = "sqlite"
	defaultHistoryFallback  = "pebble"
	defaultFallbackDirName  = "history-fallback"
	defaultFallbackLimit    = 50
	defaultRedisAddr        = "127.0.0.1:6379"
	defaultRedisKey         = "vconv:history"
	defaultHandleTTLSeconds = 3600
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultMaintenanceCron  = "*/15 * * * *"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Engine: Engine{
			FFmpegBinary: defaultFFmpegBinary,
		},
		Conversion: Conversion{
			MaxInputMiB:     defaultMaxInputMiB,
			DefaultTarget:   formats.MP4,
			ThumbnailOffset: defaultThumbnailOffset,
			ThumbnailSize:   defaultThumbnailSize,
		},
		History: History{
			Driver:           defaultHistoryDriver,
			Fallback:         defaultHistoryFallback,
			FallbackLimit:    defaultFallbackLimit,
			RedisAddr:        defaultRedisAddr,
			RedisKey:         defaultRedisKey,
			HandleTTLSeconds: defaultHandleTTLSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Maintenance: Maintenance{
			Schedule: defaultMaintenanceCron,
		},
	}
}
