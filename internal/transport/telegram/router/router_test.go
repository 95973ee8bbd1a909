package router

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	kit "schedbot/internal/transport"
	"schedbot/internal/transport/transporttest"
	logx "schedbot/pkg/logx"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{`/add "Team sync" 2024-12-25 09:30`, []string{"/add", "Team sync", "2024-12-25", "09:30"}},
		{`/edit 3 --desc 'bring notes'`, []string{"/edit", "3", "--desc", "bring notes"}},
		{`/add “Smart quotes” x`, []string{"/add", "Smart quotes", "x"}},
		{`/add a\ b`, []string{"/add", "a b"}},
		{`/x ""`, []string{"/x", ""}},
		{"   ", nil},
	}
	for _, tc := range cases {
		got := tokenizeCommandLine(tc.in)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Fatalf("tokenize(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseFlags([]string{"Title", "--category", "work", "--desc=notes", "-", "-5", "--dry"})
	if strings.Join(pos, "|") != "Title|-|-5" {
		t.Fatalf("pos=%q", pos)
	}
	if flags["category"] != "work" || flags["desc"] != "notes" {
		t.Fatalf("flags=%v", flags)
	}
	if !bools["dry"] {
		t.Fatalf("bools=%v", bools)
	}
}

func TestBase36(t *testing.T) {
	t.Parallel()
	if base36(0) != "0" || base36(35) != "z" || base36(36) != "10" {
		t.Fatal("base36 mismatch")
	}
	if newReqID() == newReqID() {
		t.Fatal("request ids must differ")
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"help":        "help",
		"View-Tasks":  "view_tasks",
		"2fa":         "cmd_2fa",
		"__x__":       "x",
		"a!b":         "ab",
		strings.Repeat("a", 40): strings.Repeat("a", 32),
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitize(%q)=%q want %q", in, got, want)
		}
	}
}

func runRouter(t *testing.T, r *Router) (chan kit.Update, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, updates)
		close(done)
	}()
	return updates, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func msgUpdate(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: from, Text: text, IsPrivate: true}}
}

func TestDispatchCommandsAndAliases(t *testing.T) {
	t.Parallel()
	ad := transporttest.New()
	r := New(ad, logx.Nop(), WithWorkers(2), WithOwners([]int64{1}))

	var got atomic.Value
	r.SetRegistry([]Command{{
		Name:    "add",
		Aliases: []string{"new"},
		Handle: func(ctx context.Context, req *Request) error {
			got.Store(strings.Join(req.Args, "|") + "#" + req.Flags["category"])
			return nil
		},
	}, {
		Name:   "clear",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			got.Store("cleared")
			return nil
		},
	}}, nil, nil)

	updates, stop := runRouter(t, r)
	defer stop()

	updates <- msgUpdate(2, `/new@schedbot "Gym" --category gym`)
	waitFor(t, func() bool { v, _ := got.Load().(string); return v == "Gym#gym" })

	updates <- msgUpdate(2, "/clear")
	waitFor(t, func() bool { return len(ad.Sent()) == 1 })
	if !strings.Contains(ad.Sent()[0].Text, "restricted") {
		t.Fatalf("expected owner rejection, got %q", ad.Sent()[0].Text)
	}

	updates <- msgUpdate(1, "/clear")
	waitFor(t, func() bool { v, _ := got.Load().(string); return v == "cleared" })

	updates <- msgUpdate(1, "/nope")
	waitFor(t, func() bool { return len(ad.Sent()) == 2 })
	if !strings.Contains(ad.Sent()[1].Text, "/help") {
		t.Fatalf("unknown command reply %q", ad.Sent()[1].Text)
	}
}

func TestDispatchCallbacksAndText(t *testing.T) {
	t.Parallel()
	ad := transporttest.New()
	r := New(ad, logx.Nop())

	var payload atomic.Value
	var text atomic.Value
	r.SetRegistry(nil, []CallbackRoute{{
		Namespace: "add",
		Action:    "date",
		Handle: func(ctx context.Context, req *Request, p string) error {
			payload.Store(p)
			return nil
		},
	}}, []TextRoute{{
		Match: func(m *kit.Message) bool { return m.FromID == 7 },
		Handle: func(ctx context.Context, req *Request) error {
			text.Store(req.Text)
			return nil
		},
	}})

	updates, stop := runRouter(t, r)
	defer stop()

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: 100, FromID: 7, Data: "add:date:work:2024-12-25"}}
	waitFor(t, func() bool { v, _ := payload.Load().(string); return v == "work:2024-12-25" })
	waitFor(t, func() bool { return len(ad.Answers()) == 1 })

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb2", ChatID: 100, FromID: 7, Data: "gone:x"}}
	waitFor(t, func() bool { return len(ad.Answers()) == 2 })

	updates <- msgUpdate(8, "ignored")
	updates <- msgUpdate(7, "Buy milk")
	waitFor(t, func() bool { v, _ := text.Load().(string); return v == "Buy milk" })
}

func TestHelpAndMenu(t *testing.T) {
	t.Parallel()
	ad := transporttest.New()
	r := New(ad, logx.Nop())
	r.SetRegistry([]Command{
		{Name: "list", Description: "List <tasks>", Handle: func(context.Context, *Request) error { return nil }},
		{Name: "start", Description: "Open menu", Handle: func(context.Context, *Request) error { return nil }},
		{Name: "clear", Description: "Wipe", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
		{Name: "debug", Hidden: true, Handle: func(context.Context, *Request) error { return nil }},
	}, nil, nil)

	public := r.HelpHTML(false)
	if !strings.Contains(public, "List &lt;tasks&gt;") || strings.Contains(public, "/clear") || strings.Contains(public, "/debug") {
		t.Fatalf("public help: %s", public)
	}
	if !strings.Contains(r.HelpHTML(true), "/clear") {
		t.Fatal("owner help should list /clear")
	}

	if err := r.PublishMenu(context.Background()); err != nil {
		t.Fatal(err)
	}
	menu := ad.Menu()
	if len(menu) != 3 || menu[0].Command != "start" {
		t.Fatalf("menu=%+v", menu)
	}
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error { panic("boom") }, MWPanicRecover(logx.Nop()), MWRequestLog(logx.Nop()))
	if err := h(context.Background(), &Request{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err=%v", err)
	}
}

func TestMiddlewareTimeout(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	if err := h(context.Background(), &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}
