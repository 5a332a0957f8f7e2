package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeRealtime()
	c.normalizeNotifier()
	c.normalizeNotifications()
	c.normalizeLogging()
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
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
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

func (c *Config) normalizeSync() {
	if c.Sync.IntervalSeconds <= 0 {
		c.Sync.IntervalSeconds = defaultSyncIntervalSeconds
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = defaultSyncMaxRetries
	}
	if c.Sync.ConflictWindowMinutes <= 0 {
		c.Sync.ConflictWindowMinutes = defaultConflictWindowMinutes
	}
	if c.Sync.ApplyTimeoutSeconds < 0 {
		c.Sync.ApplyTimeoutSeconds = 0
	}
}

func (c *Config) normalizeRealtime() {
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = defaultRealtimeSendBuffer
	}
	origins := c.Realtime.AllowedOrigins[:0]
	for _, origin := range c.Realtime.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Realtime.AllowedOrigins = origins
}

func (c *Config) normalizeNotifier() {
	if c.Notifier.SetupBackoffSeconds <= 0 {
		c.Notifier.SetupBackoffSeconds = defaultNotifierSetupBackoff
	}
	if c.Notifier.ResubscribeBackoffSeconds <= 0 {
		c.Notifier.ResubscribeBackoffSeconds = defaultNotifierResubBackoff
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind: %q is not a host:port address", c.Paths.APIBind)
	}
	return nil
}
