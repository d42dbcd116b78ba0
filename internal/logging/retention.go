package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory whose stale files are pruned.
type RetentionTarget struct {
	// Kind labels the files in log output, for example "log" or "upload".
	Kind    string
	Dir     string
	Pattern string
	// MaxAge overrides the age passed to Prune for this target.
	MaxAge time.Duration
	// Keep reports files that must survive regardless of age, such as the
	// active log file or uploads still referenced by a queued job.
	Keep func(path string) bool
}

// PruneResult summarizes one Prune pass.
type PruneResult struct {
	Removed int
	Bytes   int64
}

// Prune removes files older than maxAge from every target. A non-positive
// maxAge disables targets that do not set their own MaxAge.
func Prune(logger *slog.Logger, maxAge time.Duration, targets ...RetentionTarget) PruneResult {
	var result PruneResult
	now := time.Now()
	for _, target := range targets {
		age := maxAge
		if target.MaxAge > 0 {
			age = target.MaxAge
		}
		dir := strings.TrimSpace(target.Dir)
		if age <= 0 || dir == "" {
			continue
		}
		pattern := target.Pattern
		if pattern == "" {
			pattern = "*"
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		cutoff := now.Add(-age)
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if target.Keep != nil && target.Keep(path) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "stale file not removed", "retention_failed",
					String("kind", target.Kind),
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of "+dir),
					String(FieldImpact, "file remains on disk"),
				)
				continue
			}
			result.Removed++
			result.Bytes += info.Size()
			if logger != nil {
				logger.Info("stale file pruned",
					String("kind", target.Kind),
					String("path", path),
					Bytes("freed_bytes", info.Size()),
					String(FieldEventType, "retention_pruned"),
				)
			}
		}
	}
	return result
}

// KeepPaths returns a Keep func matching the given paths after cleaning.
func KeepPaths(paths ...string) func(string) bool {
	keep := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			keep[filepath.Clean(p)] = true
		}
	}
	return func(path string) bool { return keep[filepath.Clean(path)] }
}

// Days converts a retention setting in days to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
