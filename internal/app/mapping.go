package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/bot"
	"schedbot/internal/config"
	"schedbot/internal/observability/metrics"
	"schedbot/internal/reminder"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logChat parses telegram.group_log. An empty value yields 0.
func logChat(cfg *config.Config) (int64, error) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return id, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	switch sc.Driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapReminderConfig(cfg *config.Config) reminder.Config {
	targets := make([]kit.ChatTarget, 0, len(cfg.Telegram.BroadcastChats))
	for _, c := range cfg.Telegram.BroadcastChats {
		targets = append(targets, kit.ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID})
	}
	return reminder.Config{
		Enabled:         cfg.Menu.Enabled,
		Spec:            cfg.Menu.Spec,
		Timezone:        cfg.Menu.Timezone,
		RatePerSec:      cfg.Menu.RatePerSec,
		AnnounceOnStart: cfg.Menu.AnnounceOnStart,
		Targets:         targets,
		RetryMax:        2,
	}
}

func mapServerConfig(cfg *config.Config) (metrics.ServerConfig, error) {
	mc := cfg.Metrics
	read, err := config.ParseDurationOrDefault("metrics.read_timeout", mc.ReadTimeout, 10*time.Second)
	if err != nil {
		return metrics.ServerConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("metrics.idle_timeout", mc.IdleTimeout, 60*time.Second)
	if err != nil {
		return metrics.ServerConfig{}, err
	}
	return metrics.ServerConfig{
		Addr:          mc.Addr,
		Path:          mc.Path,
		Token:         mc.Token,
		AllowInsecure: mc.AllowInsecure,
		Pprof:         mc.Pprof,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}

func mapPeople(cfg *config.Config) []bot.Person {
	out := make([]bot.Person, 0, len(cfg.People))
	for _, p := range cfg.People {
		out = append(out, bot.Person{Name: strings.TrimSpace(p.Name), ID: schedule.OwnerID(p.UserID)})
	}
	return out
}

// validateConfig gates hot reloads on the checks config.Validate leaves to
// its callers.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if cfg.Menu.Enabled {
		if _, err := reminder.ParseSpec(cfg.Menu.Spec); err != nil {
			return fmt.Errorf("menu.spec: %w", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Menu.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("menu.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := logChat(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	return nil
}
