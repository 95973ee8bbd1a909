// Package bot implements the chat surface of the schedule tracker: the
// menu card, the text commands and the inline add/edit/delete flows.
// Every state change goes through schedule.Store.
package bot

import (
	"strconv"
	"sync"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

const (
	MaxTitleRunes    = 100
	MaxAddDescRunes  = 200
	MaxEditDescRunes = 400

	// pickerDays is how many days the add flow offers, starting today.
	pickerDays = 20
	// maxSelectable bounds the task-selection keyboard under /list.
	maxSelectable = 25

	defaultSessionTTL = 10 * time.Minute
)

// Person is a user whose schedule may be viewed by others.
type Person struct {
	Name string
	ID   schedule.OwnerID
}

type Option func(*Bot)

func WithLogger(log logx.Logger) Option { return func(b *Bot) { b.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(b *Bot) { b.bus = bus } }

func WithPeople(p []Person) Option {
	return func(b *Bot) { b.people = append([]Person(nil), p...) }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

func WithSessionTTL(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.sessionTTL = d
		}
	}
}

type Bot struct {
	store *schedule.Store
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	mu     sync.RWMutex
	people []Person

	sessionTTL time.Duration
	sessions   *tgui.StateStore[session]
}

func New(store *schedule.Store, opts ...Option) *Bot {
	b := &Bot{
		store:      store,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, o := range opts {
		o(b)
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	b.log = b.log.With(logx.String("comp", "bot"))
	b.sessions = tgui.NewStateStore[session](b.sessionTTL).WithClock(b.now)
	return b
}

// SetPeople replaces the "view another's schedule" list.
func (b *Bot) SetPeople(p []Person) {
	cp := append([]Person(nil), p...)
	b.mu.Lock()
	b.people = cp
	b.mu.Unlock()
}

func (b *Bot) peopleSnapshot() []Person {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Person(nil), b.people...)
}

func (b *Bot) personName(id schedule.OwnerID) (string, bool) {
	for _, p := range b.peopleSnapshot() {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// Routes returns the registry consumed by router.SetRegistry.
func (b *Bot) Routes() ([]router.Command, []router.CallbackRoute, []router.TextRoute) {
	return b.commands(), b.callbacks(), []router.TextRoute{{
		Match:  b.awaitingInput,
		Handle: b.handleInput,
	}}
}

func (b *Bot) publish(kind eventbus.Kind, owner schedule.OwnerID, actor int64, taskID, count int) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(eventbus.Event{
		Kind:   kind,
		Time:   b.now(),
		Owner:  int64(owner),
		TaskID: taskID,
		Count:  count,
		Actor:  actor,
	})
}

func ownerOf(req *router.Request) schedule.OwnerID { return schedule.OwnerID(req.FromID) }

func itoa(n int) string { return strconv.Itoa(n) }
