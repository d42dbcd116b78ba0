package preflight

import (
	"context"

	"vconv/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Engine.WorkDir != "" {
		results = append(results, CheckDirectoryAccess("Engine work directory", cfg.Engine.WorkDir))
	}

	results = append(results, CheckPrimaryHistory(ctx, cfg))
	if cfg.History.Fallback == "redis" {
		results = append(results, CheckRedis(ctx, cfg))
	}
	return results
}
