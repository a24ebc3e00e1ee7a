// Package config loads and watches the waterminder configuration file.
// Both YAML and JSON are accepted; YAML is converted to JSON so a single
// strict decoder (DisallowUnknownFields) covers both formats.
package config

// Config is the root configuration.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// Listen is the HTTP API bind address. Default: "127.0.0.1:3000".
	Listen string `json:"listen,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Path to the SQLite database file. Default: "./waterminder.db".
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// Timezone is the IANA wall-clock frame for all schedules,
	// e.g. "Asia/Jakarta". Empty means system local time.
	Timezone  string `json:"timezone,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// NotifierConfig controls the async notification pipeline and selects the
// delivery channel.
type NotifierConfig struct {
	// Channel is "log" (default), "webhook" or "telegram".
	Channel       string `json:"channel,omitempty"`
	WebhookURL    string `json:"webhook_url,omitempty"`
	TelegramToken string `json:"telegram_token,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:3000",
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Storage: StorageConfig{
			Path:        "./waterminder.db",
			BusyTimeout: "2s",
		},
		Notifier: NotifierConfig{
			Channel: "log",
		},
	}
}

// applyDefaults fills the fields a partial file left empty.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.BusyTimeout == "" {
		c.Storage.BusyTimeout = def.Storage.BusyTimeout
	}
	if c.Notifier.Channel == "" {
		c.Notifier.Channel = def.Notifier.Channel
	}
}
