// Package reminder periodically posts the menu card to the configured
// broadcast chats. It only sends messages and never reads or writes tasks.
package reminder

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	rtsup "schedbot/internal/runtime/supervisor"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

type Config struct {
	Enabled         bool
	Spec            string
	Timezone        string
	RatePerSec      int
	AnnounceOnStart bool
	Targets         []kit.ChatTarget
	RetryMax        int
}

// Observer receives the outcome of every broadcast round.
type Observer interface {
	ObserveBroadcast(sent, failed int)
}

type Option func(*Service)

func WithObserver(o Observer) Option { return func(s *Service) { s.obs = o } }

// WithRetryDelay overrides the base delay between send attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	adapter kit.Adapter
	render  func() tgui.Message
	log     logx.Logger
	obs     Observer

	limiter    *rate.Limiter
	retryDelay time.Duration

	cron *cron.Cron
	sup  *rtsup.Supervisor
	kick chan struct{}

	rounds atomic.Uint64
}

// New builds the service. render produces the card for each round.
func New(cfg Config, adapter kit.Adapter, render func() tgui.Message, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:        cfg,
		adapter:    adapter,
		render:     render,
		log:        log.With(logx.String("comp", "reminder")),
		limiter:    newLimiter(cfg.RatePerSec),
		retryDelay: 200 * time.Millisecond,
		kick:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

// Rounds reports how many broadcast rounds completed.
func (s *Service) Rounds() uint64 { return s.rounds.Load() }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go0("reminder.worker", s.worker)
	if err := s.scheduleLocked(); err != nil {
		return err
	}
	if s.cfg.Enabled && s.cfg.AnnounceOnStart {
		s.Trigger()
	}
	return nil
}

// Apply swaps the configuration. The cron entry is rebuilt only when the
// schedule itself changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if prev.RatePerSec != cfg.RatePerSec {
		s.limiter = newLimiter(cfg.RatePerSec)
	}
	if s.sup == nil {
		return nil
	}
	if prev.Enabled != cfg.Enabled || strings.TrimSpace(prev.Spec) != strings.TrimSpace(cfg.Spec) || prev.Timezone != cfg.Timezone {
		return s.scheduleLocked()
	}
	return nil
}

// Trigger queues a round. Calls made while a round is already queued are
// merged into it.
func (s *Service) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, sup := s.cron, s.sup
	s.cron, s.sup = nil, nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (s *Service) scheduleLocked() error {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if !s.cfg.Enabled {
		s.log.Info("menu broadcast disabled")
		return nil
	}
	sched, err := ParseSpec(s.cfg.Spec)
	if err != nil {
		return err
	}
	loc := loadLocation(s.cfg.Timezone, s.log)
	c := cron.New(cron.WithLocation(loc))
	c.Schedule(sched, cron.FuncJob(s.Trigger))
	c.Start()
	s.cron = c

	var next []string
	for _, t := range NextRuns(sched, time.Now().In(loc), 3) {
		next = append(next, t.Format("2006-01-02 15:04"))
	}
	s.log.Info("menu broadcast scheduled",
		logx.String("spec", s.cfg.Spec),
		logx.String("tz", loc.String()),
		logx.Int("targets", len(s.cfg.Targets)),
		logx.Strings("next", next),
	)
	return nil
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce posts the card to every target now.
func (s *Service) RunOnce(ctx context.Context) (sent, failed int) {
	s.mu.Lock()
	targets := append([]kit.ChatTarget(nil), s.cfg.Targets...)
	lim, retry := s.limiter, s.cfg.RetryMax
	s.mu.Unlock()

	if len(targets) == 0 || s.render == nil {
		return 0, 0
	}
	start := time.Now()
	msg := s.render()
	for _, t := range targets {
		if err := lim.Wait(ctx); err != nil {
			failed += len(targets) - sent - failed
			break
		}
		if err := s.sendOne(ctx, t, msg, retry); err != nil {
			failed++
			continue
		}
		sent++
	}
	s.rounds.Add(1)
	if s.obs != nil {
		s.obs.ObserveBroadcast(sent, failed)
	}

	fields := []logx.Field{logx.Int("sent", sent), logx.Int("failed", failed), logx.Duration("dur", time.Since(start))}
	if failed > 0 {
		s.log.Warn("menu broadcast finished with failures", fields...)
	} else {
		s.log.Debug("menu broadcast finished", fields...)
	}
	return sent, failed
}

func (s *Service) sendOne(ctx context.Context, t kit.ChatTarget, msg tgui.Message, retry int) error {
	var last error
	for i := 0; i <= retry; i++ {
		_, err := msg.Send(ctx, s.adapter, t)
		if err == nil {
			return nil
		}
		last = err
		if i == retry {
			break
		}
		delay := s.retryDelay + time.Duration(i)*s.retryDelay/2
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	s.log.Warn("menu broadcast send failed", logx.Int64("chat_id", t.ChatID), logx.Int("thread_id", t.ThreadID), logx.Err(last))
	return last
}
