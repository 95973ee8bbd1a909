package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"schedbot/internal/bot"
	"schedbot/internal/config"
	"schedbot/internal/observability/metrics"
	"schedbot/internal/reminder"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/transport/transporttest"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

func baseConfig() *config.Config {
	cfg := &config.Config{Telegram: config.TelegramConfig{Token: "t"}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      config.StorageConfig
		want    storage.Config
		wantErr bool
	}{
		{name: "default file", in: config.StorageConfig{}, want: storage.Config{Driver: "file"}},
		{name: "json alias", in: config.StorageConfig{Driver: "json", Path: " ./x.json "}, want: storage.Config{Driver: "file", Path: "./x.json"}},
		{name: "sqlite", in: config.StorageConfig{Driver: "sqlite3", Path: "db", BusyTimeout: "3s"}, want: storage.Config{Driver: "sqlite", Path: "db", BusyTimeout: 3 * time.Second}},
		{name: "sqlite default busy", in: config.StorageConfig{Driver: "sqlite"}, want: storage.Config{Driver: "sqlite", BusyTimeout: time.Second}},
		{name: "memory", in: config.StorageConfig{Driver: "mem"}, want: storage.Config{Driver: "memory"}},
		{name: "bad busy", in: config.StorageConfig{Driver: "sqlite", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			cfg.Storage = tt.in
			got, err := mapStorageConfig(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapReminderAndPeople(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Menu.Enabled = true
	cfg.Telegram.BroadcastChats = []config.ChatRef{{ChatID: -100}, {ChatID: -200, ThreadID: 7}}
	cfg.People = []config.Person{{Name: " Rain ", UserID: 11}}

	rc := mapReminderConfig(cfg)
	if !rc.Enabled || rc.Spec != config.DefaultMenuSpec || len(rc.Targets) != 2 || rc.Targets[1].ThreadID != 7 {
		t.Fatalf("reminder config = %+v", rc)
	}
	people := mapPeople(cfg)
	if len(people) != 1 || people[0].Name != "Rain" || people[0].ID != schedule.OwnerID(11) {
		t.Fatalf("people = %+v", people)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{name: "ok", mutate: func(*config.Config) {}},
		{name: "disabled menu ignores spec", mutate: func(c *config.Config) { c.Menu.Spec = "whenever" }},
		{name: "bad spec", mutate: func(c *config.Config) { c.Menu.Enabled = true; c.Menu.Spec = "whenever" }, want: "menu.spec"},
		{name: "bad timezone", mutate: func(c *config.Config) { c.Menu.Timezone = "Mars/Olympus" }, want: "menu.timezone"},
		{name: "bad log chat", mutate: func(c *config.Config) { c.Telegram.GroupLog = "@logs" }, want: "group_log"},
		{name: "bad metrics timeout", mutate: func(c *config.Config) { c.Metrics.ReadTimeout = "fast" }, want: "metrics.read_timeout"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tt.mutate(cfg)
			err := validateConfig(context.Background(), cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func testApp(t *testing.T) *App {
	t.Helper()
	ad := transporttest.New()
	logs, log := logx.New(logx.Config{Level: "error"}, nil)
	t.Cleanup(func() { _ = logs.Close() })
	store := schedule.New(storage.NewMemory())
	return &App{
		cfgm:    config.NewManager("unused.json"),
		log:     log,
		logs:    logs,
		store:   store,
		router:  router.New(ad, log),
		bot:     bot.New(store),
		menu:    reminder.New(reminder.Config{}, ad, func() tgui.Message { return bot.MenuCard(true) }, log),
		metrics: metrics.New(nil),
	}
}

func TestApplyConfigCountsReloads(t *testing.T) {
	t.Parallel()
	a := testApp(t)
	reg := a.metrics.Registry()

	prev := baseConfig()
	next := baseConfig()
	next.People = []config.Person{{Name: "Rain", UserID: 11}}
	next.Telegram.OwnerUserIDs = []int64{1}
	a.applyConfig(prev, next)

	bad := baseConfig()
	bad.Menu.Enabled = true
	bad.Menu.Spec = "whenever"
	// Apply only parses the schedule once the service runs.
	if err := a.menu.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.menu.Stop(context.Background()) })
	a.applyConfig(next, bad)

	const want = `
# HELP schedbot_config_reloads_total Configuration reload attempts by result.
# TYPE schedbot_config_reloads_total counter
schedbot_config_reloads_total{result="error"} 1
schedbot_config_reloads_total{result="ok"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "schedbot_config_reloads_total"); err != nil {
		t.Fatal(err)
	}
}

func TestRunStepBoundsSlowStep(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}

	start := time.Now()
	err := a.runStep(context.Background(), "slow", 20*time.Millisecond, func(context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) || time.Since(start) > 500*time.Millisecond {
		t.Fatalf("err=%v took=%v", err, time.Since(start))
	}

	boom := errors.New("boom")
	if err := a.runStep(context.Background(), "fail", time.Second, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if err := a.runStep(context.Background(), "panic", time.Second, func(context.Context) error { panic("x") }); err == nil {
		t.Fatal("expected panic error")
	}
}
