package preflight

import (
	"context"

	"tabsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable checks for the given config. Optional
// checks are only run when the corresponding feature is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckQueueDB(ctx, cfg),
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// RequiredPassed reports whether every non-optional check succeeded.
func RequiredPassed(results []Result) bool {
	for _, result := range results {
		if !result.Optional && !result.Passed {
			return false
		}
	}
	return true
}
