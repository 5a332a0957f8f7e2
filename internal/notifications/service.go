package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tabsync/internal/config"
)

const userAgent = "Tabsync-Go/0.1.0"

// Service defines the push notification surface exposed to the sync worker
// and resolver.
type Service interface {
	NotifyConflictDetected(ctx context.Context, tableLabel string, entryID int64) error
	NotifyRetriesExhausted(ctx context.Context, entity string, entryID int64, retries int) error
	NotifyConflictResolved(ctx context.Context, entryID int64, decision string) error
	NotifySyncFailure(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		conflicts:  cfg.Notifications.Conflicts,
		exhaustion: cfg.Notifications.Exhaustion,
		errors:     cfg.Notifications.Errors,
	}
}

// Noop returns a Service that drops every notification.
func Noop() Service {
	return noopService{}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	conflicts  bool
	exhaustion bool
	errors     bool
}

func (n *ntfyService) NotifyConflictDetected(ctx context.Context, tableLabel string, entryID int64) error {
	if !n.conflicts {
		return nil
	}
	tableLabel = strings.TrimSpace(tableLabel)
	if tableLabel == "" {
		tableLabel = "unknown table"
	}
	data := payload{
		title:    "Tabsync - Conflict",
		message:  fmt.Sprintf("Queued order for %s collides with a live order (entry %d). Staff review required.", tableLabel, entryID),
		tags:     []string{"tabsync", "conflict", "review"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetriesExhausted(ctx context.Context, entity string, entryID int64, retries int) error {
	if !n.exhaustion {
		return nil
	}
	entity = strings.TrimSpace(entity)
	if entity == "" {
		entity = "unknown"
	}
	data := payload{
		title:    "Tabsync - Sync Stalled",
		message:  fmt.Sprintf("Entry %d (%s) failed %d times and left the retry rotation. Manual retry required.", entryID, entity, retries),
		tags:     []string{"tabsync", "queue", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyConflictResolved(ctx context.Context, entryID int64, decision string) error {
	if !n.conflicts {
		return nil
	}
	data := payload{
		title:   "Tabsync - Conflict Resolved",
		message: fmt.Sprintf("Entry %d resolved with %s", entryID, strings.TrimSpace(decision)),
		tags:    []string{"tabsync", "conflict", "resolved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncFailure(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Sync error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Tabsync - Error",
		message:  builder.String(),
		tags:     []string{"tabsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Tabsync - Test",
		message:  "Notification system test",
		tags:     []string{"tabsync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyConflictDetected(context.Context, string, int64) error       { return nil }
func (noopService) NotifyRetriesExhausted(context.Context, string, int64, int) error  { return nil }
func (noopService) NotifyConflictResolved(context.Context, int64, string) error       { return nil }
func (noopService) NotifySyncFailure(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
