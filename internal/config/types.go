package config

// Config is the single on-disk configuration file.
//
// The file may be JSON or YAML (by extension); both are decoded strictly,
// unknown fields are rejected. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Watcher drives the remote-config change detection loop.
	Watcher WatcherConfig `json:"watcher"`

	// Bulletin drives the in-game announcement poller.
	// If the section is omitted the poller stays off.
	Bulletin *BulletinConfig `json:"bulletin,omitempty"`

	// Storage holds the subscription registry.
	Storage StorageConfig `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// WatcherConfig controls the remote-config poller.
//
// Defaults (when fields are omitted/zero):
//   - interval: "10s"
//   - request_timeout: "30s"
//   - platforms: ["default", "android"]
//   - history_file: "./data/config_history.json"
type WatcherConfig struct {
	// Enabled is a pointer so we can distinguish "omitted" (default true)
	// from an explicit false.
	Enabled        *bool    `json:"enabled,omitempty"`
	Interval       string   `json:"interval,omitempty"`
	RequestTimeout string   `json:"request_timeout,omitempty"`
	Platforms      []string `json:"platforms,omitempty"`
	// Oversea selects the overseas text-config decryption key.
	Oversea     bool   `json:"oversea,omitempty"`
	HistoryFile string `json:"history_file,omitempty"`
}

type BulletinConfig struct {
	Enabled       bool   `json:"enabled"`
	Interval      string `json:"interval,omitempty"`       // default "60s"
	AggregateFile string `json:"aggregate_file,omitempty"` // default "./data/bulletin.aggregate.json"
}

// StorageConfig controls the subscription registry backend.
//
// Driver values:
//   - "file": dependency-free JSON snapshot (default)
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", subscriptions are kept in memory only.
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

func (w WatcherConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}
