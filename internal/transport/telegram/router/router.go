// Package router dispatches Telegram updates to command and callback
// handlers on a bounded worker pool.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string   // without the leading slash
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Hidden      bool          // left out of help and the Telegram menu
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Namespace string
	Action    string
	Access    Access
	Timeout   time.Duration
	Handle    CallbackHandlerFunc
}

// TextRoute receives plain (non-command) messages for which Match
// returns true. Used for multi-step input.
type TextRoute struct {
	Match  func(msg *kit.Message) bool
	Handle HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	Command  string
	Text     string // full message text for text routes

	Args      []string // positionals
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool

	// Callback fields.
	CallbackID string
	MessageID  int
	Payload    string

	ReqID   string
	IsOwner bool
	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends an HTML message to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

type Option func(*Router)

func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.jobs = make(chan func(), n)
		}
	}
}

func WithOwners(ids []int64) Option {
	return func(r *Router) { r.owners = append([]int64(nil), ids...) }
}

// WithDefaultTimeout bounds handlers that set no Timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) { r.defaultTimeout = d }
}

type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases
	ordered  []*Command
	text     []TextRoute
	owners   []int64

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // namespace -> action -> route

	log     logx.Logger
	adapter kit.Adapter

	workers        int
	defaultTimeout time.Duration
	jobs           chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(adapter kit.Adapter, log logx.Logger, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		commands:       map[string]*Command{},
		callbacks:      map[string]map[string]CallbackRoute{},
		log:            log.With(logx.String("comp", "telegram.router")),
		adapter:        adapter,
		workers:        4,
		defaultTimeout: 30 * time.Second,
		jobs:           make(chan func(), 256),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetRegistry replaces all routes. A /help command is added unless one is
// registered.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute, text []TextRoute) {
	commands := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds)+1)

	add := func(c Command) {
		name := normalizeName(c.Name)
		if name == "" || c.Handle == nil {
			return
		}
		if _, dup := commands[name]; dup {
			r.log.Warn("duplicate command ignored", logx.String("cmd", name))
			return
		}
		c.Name = name
		cc := &c
		commands[name] = cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			if a = normalizeName(a); a != "" {
				if _, exists := commands[a]; !exists {
					commands[a] = cc
				}
			}
		}
	}
	for _, c := range cmds {
		add(c)
	}
	if _, ok := commands["help"]; !ok {
		add(Command{
			Name:        "help",
			Description: "Show available commands",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Reply(ctx, r.HelpHTML(req.IsOwner), nil)
				return err
			},
		})
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, c := range cbs {
		ns, action := strings.TrimSpace(c.Namespace), strings.TrimSpace(c.Action)
		if ns == "" || action == "" || c.Handle == nil {
			continue
		}
		if cb[ns] == nil {
			cb[ns] = map[string]CallbackRoute{}
		}
		cb[ns][action] = c
	}

	r.mu.Lock()
	r.commands = commands
	r.ordered = ordered
	r.text = append([]TextRoute(nil), text...)
	r.mu.Unlock()

	r.cbMu.Lock()
	r.callbacks = cb
	r.cbMu.Unlock()
}

// PublishMenu pushes the visible commands to the adapter's command menu,
// if it supports one.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(cctx, r.MenuCommands())
}

func (r *Router) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

func (r *Router) textRoute(msg *kit.Message) (TextRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.text {
		if t.Match != nil && t.Handle != nil && t.Match(msg) {
			return t, true
		}
	}
	return TextRoute{}, false
}

func (r *Router) callback(ns, action string) (CallbackRoute, bool) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	route, ok := r.callbacks[ns][action]
	return route, ok
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/"))
}
