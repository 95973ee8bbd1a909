package app

import (
	"context"
	"strings"

	"schedbot/internal/config"
	logx "schedbot/pkg/logx"
)

// reloadLoop applies published configs until ctx is done. Bursts are
// coalesced so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			next = drainLatest(sub, next)
			a.applyConfig(last, next)
			last = next
		}
	}
}

func drainLatest(sub chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	if len(ch.Sections) == 0 {
		a.metrics.ObserveReload(nil)
		a.log.Info("config reloaded (no live changes)")
		return
	}

	var failed error
	if ch.Has("telegram") || ch.Has("logging") {
		// Target first so Apply does not warn about a missing log chat.
		chatID, _ := logChat(next)
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
		a.logs.Apply(mapLogConfig(next))
	}
	if ch.Has("telegram") {
		a.router.SetOwners(next.Telegram.OwnerUserIDs)
	}
	if ch.Has("people") {
		a.bot.SetPeople(mapPeople(next))
	}
	if ch.Has("telegram") || ch.Has("menu") {
		if err := a.menu.Apply(mapReminderConfig(next)); err != nil {
			failed = err
			a.log.Warn("menu broadcast config not applied", logx.Err(err))
		}
	}
	a.metrics.ObserveReload(failed)

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
