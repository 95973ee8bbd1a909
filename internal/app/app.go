package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"schedbot/internal/bot"
	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/observability/metrics"
	"schedbot/internal/reminder"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	blob  storage.Blob
	store *schedule.Store

	adapter kit.Adapter
	router  *router.Router
	bot     *bot.Bot
	menu    *reminder.Service

	metrics *metrics.Metrics
	server  *metrics.Server

	raw     chan kit.Update
	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	// Chat logging stays off until the target is set, otherwise Apply warns
	// about a missing log chat.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, _ := logChat(cfg); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	// Components tag themselves with "comp"; appLog is only for this package.
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	blob, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}

	var store *schedule.Store
	m := metrics.New(func() schedule.Stats { return store.Stats() })
	store = schedule.New(blob,
		schedule.WithLogger(log),
		schedule.WithObserver(m),
	)
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = store.Load(loadCtx)
	cancel()
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	st := store.Stats()
	appLog.Info("schedule loaded", logx.String("driver", sc.Driver), logx.Int("tasks", st.Tasks), logx.Int("owners", st.Owners))

	bus := eventbus.New()
	r := router.New(ad, log, router.WithOwners(cfg.Telegram.OwnerUserIDs))
	b := bot.New(store,
		bot.WithLogger(log),
		bot.WithBus(bus),
		bot.WithPeople(mapPeople(cfg)),
	)
	r.SetRegistry(b.Routes())

	menu := reminder.New(mapReminderConfig(cfg), ad,
		func() tgui.Message { return bot.MenuCard(true) },
		log, reminder.WithObserver(m))

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		blob:    blob,
		store:   store,
		adapter: ad,
		router:  r,
		bot:     b,
		menu:    menu,
		metrics: m,
		raw:     make(chan kit.Update, 256),
		updates: make(chan kit.Update, 256),
	}

	if cfg.Metrics.Enabled {
		srvCfg, err := mapServerConfig(cfg)
		if err != nil {
			_ = blob.Close()
			return nil, err
		}
		a.server = metrics.NewServer(srvCfg, m, a.health, log)
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil || a.sup.Context().Err() != nil {
		return errors.New("not running")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if err := a.adapter.Start(a.sup.Context(), a.raw); err != nil {
		return err
	}
	if err := a.router.PublishMenu(a.sup.Context()); err != nil {
		a.log.Warn("command menu publish failed", logx.Err(err))
	}

	a.sup.Go0("updates.count", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up := <-a.raw:
				a.metrics.ObserveUpdate(string(up.Kind))
				select {
				case a.updates <- up:
				case <-c.Done():
					return
				}
			}
		}
	})
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if err := a.menu.Start(a.sup.Context()); err != nil {
		a.log.Warn("menu broadcast not started", logx.Err(err))
	}
	if a.server != nil {
		if err := a.server.Start(a.sup.Context()); err != nil {
			a.log.Error("metrics server not started", logx.Err(err))
		}
	}

	sub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer sub.Close()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				a.log.Debug("event",
					logx.String("kind", string(e.Kind)),
					logx.Int64("owner", e.Owner),
					logx.Int("task_id", e.TaskID),
					logx.Int("count", e.Count),
					logx.Int64("actor", e.Actor),
				)
			}
		}
	})

	cfgSub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, cfgSub) })
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.logs.Logger().With(logx.String("comp", "systemd")), func() bool { return a.health() == nil })
	})

	notify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Int("owners", len(a.cfgm.Get().Telegram.OwnerUserIDs)),
		logx.Bool("metrics", a.server != nil),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	notify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.runStep(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("menu", 2*time.Second, a.menu.Stop)
	step("metrics", time.Second, func(c context.Context) error {
		if a.server == nil {
			return nil
		}
		return a.server.Stop(c)
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	// Handlers are drained now; nothing else writes to the store.
	step("schedule.flush", 2*time.Second, a.store.Flush)
	step("storage", time.Second, func(context.Context) error { return a.blob.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// runStep bounds one shutdown step so a stuck component cannot stall the
// rest. The caller's deadline is never extended.
func (a *App) runStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return context.DeadlineExceeded
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			return err
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		return nil
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
		return stepCtx.Err()
	}
}
