package config

const (
	defaultDataDir               = "~/.local/share/punchsync"
	defaultLogDir                = "~/.local/share/punchsync/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultDevicePort            = 4370
	defaultConnectTimeoutSeconds = 10
	defaultMaxRetries            = 3
	defaultRetryDelaySeconds     = 2
	defaultDeviceConcurrency     = 4
	defaultDriver                = DriverBridge
	defaultBridgeURL             = "http://127.0.0.1:8089"
	defaultTimezone              = "Local"
	defaultRecentLimit           = 10
	defaultSyncSchedule          = "@every 15m"
	defaultLookbackDays          = 2
	defaultBackfillSchedule      = "30 0 * * *"
	defaultLateNoticeSchedule    = "0 11 * * *"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 20
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 60
)

// DriverBridge selects the HTTP device gateway driver.
const DriverBridge = "bridge"

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Devices: Devices{
			DefaultPort:           defaultDevicePort,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			MaxRetries:            defaultMaxRetries,
			RetryDelaySeconds:     defaultRetryDelaySeconds,
			Concurrency:           defaultDeviceConcurrency,
			Driver:                defaultDriver,
			BridgeURL:             defaultBridgeURL,
		},
		Attendance: Attendance{
			Timezone:    defaultTimezone,
			RecentLimit: defaultRecentLimit,
		},
		Schedule: Schedule{
			Sync:          defaultSyncSchedule,
			LookbackDays:  defaultLookbackDays,
			AutoAggregate: true,
			Backfill:      defaultBackfillSchedule,
			LateNotices:   defaultLateNoticeSchedule,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			LateArrival:    true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
