package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"vconv/internal/config"
	"vconv/internal/deps"
	"vconv/internal/history"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPrimaryHistory opens and closes the primary history database.
func CheckPrimaryHistory(ctx context.Context, cfg *config.Config) Result {
	name := "History (" + cfg.History.Driver + ")"
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := history.OpenSQL(checkCtx, cfg.History.Driver, cfg.HistoryDSN())
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err) + " (history will use the fallback tier)"}
	}
	_ = store.Close()
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckRedis verifies the redis fallback tier answers a ping.
func CheckRedis(ctx context.Context, cfg *config.Config) Result {
	const name = "History fallback (redis)"
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	backend, err := history.OpenRedis(checkCtx, history.RedisOptions{
		Addr:     cfg.History.RedisAddr,
		Password: cfg.History.RedisPassword,
		DB:       cfg.History.RedisDB,
		Key:      cfg.History.RedisKey,
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	_ = backend.Close()
	return Result{Name: name, Passed: true, Detail: cfg.History.RedisAddr}
}

// CheckSystemDeps evaluates all system-level dependencies for the given config.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return []deps.Status{deps.CheckFFmpeg(cfg.Engine.FFmpegBinary)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (unreachable)"
	}
	return err.Error()
}
