package config

import (
	"errors"
	"fmt"
	"strings"
)

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if strings.TrimSpace(cfg.Menu.Spec) == "" {
		cfg.Menu.Spec = DefaultMenuSpec
	}
	if cfg.Menu.RatePerSec <= 0 {
		cfg.Menu.RatePerSec = DefaultMenuRate
	}
	if strings.TrimSpace(cfg.Metrics.Addr) == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks static constraints. Schedule expressions are checked by
// the caller since their grammar lives with the scheduler.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	for i, c := range cfg.Telegram.BroadcastChats {
		if c.ChatID == 0 {
			errs = append(errs, fmt.Errorf("telegram.broadcast_chats[%d].chat_id is required", i))
		}
	}

	switch cfg.Storage.Driver {
	case "", "file", "json", "sqlite", "sqlite3", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	seen := map[int64]bool{}
	for i, p := range cfg.People {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("people[%d].name is required", i))
		}
		if p.UserID == 0 {
			errs = append(errs, fmt.Errorf("people[%d].user_id is required", i))
		}
		if seen[p.UserID] {
			errs = append(errs, fmt.Errorf("people[%d]: duplicate user_id %d", i, p.UserID))
		}
		seen[p.UserID] = true
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, errors.New("metrics.path must start with /"))
		}
		if _, err := ParseDurationField("metrics.read_timeout", cfg.Metrics.ReadTimeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("metrics.idle_timeout", cfg.Metrics.IdleTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
