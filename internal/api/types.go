package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Device describes one configured terminal.
type Device struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Address string `json:"address"`
}

// DevicesResponse wraps the configured terminals.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// DeviceStats is one terminal's ingestion outcome.
type DeviceStats struct {
	Device            string         `json:"device"`
	Address           string         `json:"address"`
	Fetched           int            `json:"fetched"`
	Inserted          int            `json:"inserted"`
	Duplicates        int            `json:"duplicates"`
	Invalid           int            `json:"invalid"`
	UnmatchedEmployee int            `json:"unmatchedEmployee"`
	Errors            int            `json:"errors"`
	InvalidReasons    map[string]int `json:"invalidReasons,omitempty"`
	Error             string         `json:"error,omitempty"`
	ErrorKind         string         `json:"errorKind,omitempty"`
	DurationMillis    int64          `json:"durationMs"`
}

// AggregationStats summarizes one aggregation pass.
type AggregationStats struct {
	ProcessedLogs int `json:"processedLogs"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Errors        int `json:"errors"`
}

// SyncReport is the consolidated result of a sync run.
type SyncReport struct {
	RunID                  string            `json:"runId"`
	StartedAt              string            `json:"startedAt,omitempty"`
	FinishedAt             string            `json:"finishedAt,omitempty"`
	DevicesSynced          int               `json:"devicesSynced"`
	DevicesFailed          int               `json:"devicesFailed"`
	TotalFetched           int               `json:"totalFetched"`
	TotalInserted          int               `json:"totalInserted"`
	TotalDuplicates        int               `json:"totalDuplicates"`
	TotalInvalid           int               `json:"totalInvalid"`
	TotalUnmatchedEmployee int               `json:"totalUnmatchedEmployee"`
	TotalErrors            int               `json:"totalErrors"`
	Devices                []DeviceStats     `json:"devices"`
	Aggregation            *AggregationStats `json:"aggregation,omitempty"`
	AggregationError       string            `json:"aggregationError,omitempty"`
}

// AttendanceRow is one employee's computed day.
type AttendanceRow struct {
	EmployeeCode      string `json:"employeeCode"`
	Date              string `json:"date"`
	Status            string `json:"status"`
	CheckIn           string `json:"checkIn,omitempty"`
	CheckOut          string `json:"checkOut,omitempty"`
	WorkHours         string `json:"workHours"`
	LateMinutes       int    `json:"lateMinutes"`
	EarlyLeaveMinutes int    `json:"earlyLeaveMinutes"`
	OvertimeHours     string `json:"overtimeHours"`
}

// SyncStatus reports the unprocessed backlog and recent activity.
type SyncStatus struct {
	UnprocessedCount  int             `json:"unprocessedCount"`
	LastSyncTime      string          `json:"lastSyncTime,omitempty"`
	LastRun           *SyncReport     `json:"lastRun,omitempty"`
	DevicesConfigured int             `json:"devicesConfigured"`
	RecentAttendance  []AttendanceRow `json:"recentAttendance"`
}

// Job describes one scheduled daemon job.
type Job struct {
	Name      string `json:"name"`
	Spec      string `json:"spec"`
	Next      string `json:"next,omitempty"`
	LastRun   string `json:"lastRun,omitempty"`
	LastError string `json:"lastError,omitempty"`
	Runs      int    `json:"runs"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	DatabasePath string     `json:"databasePath"`
	LockFilePath string     `json:"lockFilePath"`
	Sync         SyncStatus `json:"sync"`
	Jobs         []Job      `json:"jobs"`
}

// SyncRequest is the optional body of POST /api/sync. A nil Days uses the
// configured lookback and a nil AutoAggregate the configured default.
type SyncRequest struct {
	Device        string `json:"device,omitempty"`
	Days          *int   `json:"days,omitempty"`
	AutoAggregate *bool  `json:"autoAggregate,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
