package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tabsync/internal/config"
	"tabsync/internal/outbox"
)

const ntfyCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable, writable, and traversable by the current user.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name}
	if path == "" {
		result.Detail = "path is not configured"
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s does not exist", path)
		} else {
			result.Detail = fmt.Sprintf("cannot stat %s: %v", path, err)
		}
		return result
	}
	if !info.IsDir() {
		result.Detail = fmt.Sprintf("%s is not a directory", path)
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("insufficient permissions on %s: %v", path, err)
		return result
	}

	result.Passed = true
	result.Detail = path
	return result
}

// CheckQueueDB opens the outbox database and runs a probe query against it.
func CheckQueueDB(ctx context.Context, cfg *config.Config) Result {
	result := Result{Name: "Queue database"}

	store, err := outbox.Open(cfg)
	if err != nil {
		result.Detail = fmt.Sprintf("open failed: %v", err)
		return result
	}
	defer store.Close()

	pending, err := store.CountPending(ctx)
	if err != nil {
		result.Detail = fmt.Sprintf("probe failed: %v", err)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%s (%d pending)", store.Path(), pending)
	return result
}

// CheckNtfy verifies the configured ntfy topic URL is reachable. The check
// is optional; a failure degrades the report without blocking startup.
func CheckNtfy(ctx context.Context, topic string) Result {
	result := Result{Name: "ntfy topic", Optional: true}

	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.Detail = fmt.Sprintf("invalid topic URL %q", topic)
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, ntfyCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, topic, nil)
	if err != nil {
		result.Detail = fmt.Sprintf("request setup failed: %v", err)
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Detail = fmt.Sprintf("unreachable: %v", err)
		return result
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		result.Detail = fmt.Sprintf("server error: %s", resp.Status)
		return result
	}

	result.Passed = true
	result.Detail = parsed.Host
	return result
}
