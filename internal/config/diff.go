package config

import (
	"reflect"
	"strings"

	logx "schedbot/pkg/logx"
)

// Change describes what a reload touched. RestartRequired lists sections
// whose new values only apply after a restart.
type Change struct {
	Sections        []string
	RestartRequired []string
	Fields          []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeChange compares two configs. Fields never include secrets.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		ch.RestartRequired = append(ch.RestartRequired, "telegram")
	}
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		!reflect.DeepEqual(oldCfg.Telegram.BroadcastChats, newCfg.Telegram.BroadcastChats) {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Int("telegram.broadcast_chats", len(newCfg.Telegram.BroadcastChats)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		ch.RestartRequired = append(ch.RestartRequired, "storage")
	}

	if oldCfg.Menu != newCfg.Menu {
		ch.Sections = append(ch.Sections, "menu")
		ch.Fields = append(ch.Fields,
			logx.Bool("menu.enabled", newCfg.Menu.Enabled),
			logx.String("menu.spec", newCfg.Menu.Spec),
		)
	}

	if !reflect.DeepEqual(oldCfg.People, newCfg.People) {
		ch.Sections = append(ch.Sections, "people")
		ch.Fields = append(ch.Fields, logx.Int("people.count", len(newCfg.People)))
	}

	if oldCfg.Metrics != newCfg.Metrics {
		ch.RestartRequired = append(ch.RestartRequired, "metrics")
	}
	return ch
}
