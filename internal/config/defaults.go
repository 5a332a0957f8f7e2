package config

const (
	defaultDataDir                   = "~/.local/share/tabsync/data"
	defaultLogDir                    = "~/.local/share/tabsync/logs"
	defaultAPIBind                   = "127.0.0.1:7610"
	defaultSyncIntervalSeconds       = 30
	defaultSyncMaxRetries            = 5
	defaultConflictWindowMinutes     = 60
	defaultRealtimeSendBuffer        = 64
	defaultNotifierSetupBackoff      = 10
	defaultNotifierResubBackoff      = 5
	defaultNotifyRequestTimeout      = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Sync: Sync{
			IntervalSeconds:       defaultSyncIntervalSeconds,
			MaxRetries:            defaultSyncMaxRetries,
			ConflictWindowMinutes: defaultConflictWindowMinutes,
		},
		Realtime: Realtime{
			SendBuffer: defaultRealtimeSendBuffer,
		},
		Notifier: Notifier{
			SetupBackoffSeconds:       defaultNotifierSetupBackoff,
			ResubscribeBackoffSeconds: defaultNotifierResubBackoff,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Conflicts:      true,
			Exhaustion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
