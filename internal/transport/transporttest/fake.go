// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "schedbot/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  kit.SendOptions
}

type Edited struct {
	Ref  kit.MessageRef
	Text string
	Opt  kit.SendOptions
}

type Answer struct {
	CallbackID string
	Text       string
}

// Adapter records every outgoing call. SendErr, when set, fails SendText.
type Adapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []Sent
	edited  []Edited
	answers []Answer
	menu    []kit.BotCommand

	lastWasEdit bool

	SendErr error
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return kit.MessageRef{}, a.SendErr
	}
	a.nextID++
	a.lastWasEdit = false
	a.sent = append(a.sent, Sent{To: to, Text: text, Opt: deref(opt)})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastWasEdit = true
	a.edited = append(a.edited, Edited{Ref: ref, Text: text, Opt: deref(opt)})
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, Answer{CallbackID: callbackID, Text: text})
	return nil
}

func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	return nil
}

func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// LastText returns the text of the most recent send or edit.
func (a *Adapter) LastText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var lastSend, lastEdit string
	if n := len(a.sent); n > 0 {
		lastSend = a.sent[n-1].Text
	}
	if n := len(a.edited); n > 0 {
		lastEdit = a.edited[n-1].Text
	}
	if a.lastWasEdit {
		return lastEdit
	}
	return lastSend
}

func (a *Adapter) Edited() []Edited {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Edited(nil), a.edited...)
}

func (a *Adapter) Answers() []Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Answer(nil), a.answers...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent, a.edited, a.answers = nil, nil, nil
}

func deref(opt *kit.SendOptions) kit.SendOptions {
	if opt == nil {
		return kit.SendOptions{}
	}
	return *opt
}
