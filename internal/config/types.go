package config

import "time"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Menu     MenuConfig     `json:"menu"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`

	// People are the users offered in "view another's schedule".
	People []Person `json:"people,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`

	// BroadcastChats receive the periodic menu card.
	BroadcastChats []ChatRef `json:"broadcast_chats,omitempty"`
}

type ChatRef struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects where the schedule document lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/schedbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file (default) | sqlite | memory
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MenuConfig controls the periodic menu broadcast.
//
// Spec accepts a cron expression ("0 */6 * * *"), a descriptor
// ("@every 6h", "@daily"), a bare duration ("6h") or a daily clock ("08:00").
type MenuConfig struct {
	Enabled         bool   `json:"enabled"`
	Spec            string `json:"spec,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	AnnounceOnStart bool   `json:"announce_on_start,omitempty"`
}

type Person struct {
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
}

// MetricsConfig controls the HTTP server exposing /metrics, /healthz and
// optionally pprof.
//
// Prefer binding to localhost. A non-loopback address needs a token or
// allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
	Path          string `json:"path,omitempty"` // default: "/metrics"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultMenuSpec    = "@every 6h"
	DefaultMenuRate    = 1
	DefaultMetricsAddr = "127.0.0.1:9090"
	DefaultMetricsPath = "/metrics"
)
