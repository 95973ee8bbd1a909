package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/transport/transporttest"
)

var fixedNow = time.Date(2024, 12, 23, 10, 15, 0, 0, time.Local)

const (
	chatID = int64(500)
	userID = int64(42)
)

type harness struct {
	bot   *Bot
	store *schedule.Store
	blob  *storage.Memory
	ad    *transporttest.Adapter
	bus   eventbus.Bus
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	blob := storage.NewMemory()
	store := schedule.New(blob, schedule.WithClock(clock))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	bus := eventbus.New()
	opts = append([]Option{WithClock(clock), WithBus(bus)}, opts...)
	return &harness{bot: New(store, opts...), store: store, blob: blob, ad: transporttest.New(), bus: bus}
}

func (h *harness) request(args []string, flags map[string]string) *router.Request {
	if flags == nil {
		flags = map[string]string{}
	}
	return &router.Request{
		Chat:      kit.ChatTarget{ChatID: chatID},
		FromID:    userID,
		Args:      args,
		Flags:     flags,
		BoolFlags: map[string]bool{},
		Adapter:   h.ad,
	}
}

func (h *harness) command(t *testing.T, name string, args []string, flags map[string]string) string {
	t.Helper()
	for _, c := range h.bot.commands() {
		if c.Name == name {
			if err := c.Handle(context.Background(), h.request(args, flags)); err != nil {
				t.Fatalf("/%s: %v", name, err)
			}
			return h.ad.LastText()
		}
	}
	t.Fatalf("no command %q", name)
	return ""
}

func (h *harness) press(t *testing.T, data string) string {
	t.Helper()
	ns, action, payload, ok := splitData(data)
	if !ok {
		t.Fatalf("bad callback data %q", data)
	}
	for _, r := range h.bot.callbacks() {
		if r.Namespace == ns && r.Action == action {
			req := h.request(nil, nil)
			req.CallbackID = "cb"
			req.MessageID = 9
			req.Payload = payload
			if err := r.Handle(context.Background(), req, payload); err != nil {
				t.Fatalf("callback %s: %v", data, err)
			}
			return h.ad.LastText()
		}
	}
	t.Fatalf("no callback route for %q", data)
	return ""
}

func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	msg := &kit.Message{ChatID: chatID, FromID: userID, Text: text}
	if !h.bot.awaitingInput(msg) {
		t.Fatalf("no pending input for %q", text)
	}
	req := h.request(nil, nil)
	req.Text = text
	if err := h.bot.handleInput(context.Background(), req); err != nil {
		t.Fatalf("input %q: %v", text, err)
	}
	return h.ad.LastText()
}

func splitData(d string) (ns, action, payload string, ok bool) {
	parts := strings.SplitN(d, ":", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}

func buttons(t *testing.T, opt kit.SendOptions) []tele.InlineButton {
	t.Helper()
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || rm == nil {
		t.Fatalf("no inline keyboard")
	}
	var out []tele.InlineButton
	for _, row := range rm.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestMenuCard(t *testing.T) {
	t.Parallel()
	m := MenuCard(false)
	if !strings.Contains(m.Text, "Schedule Manager Bot") || !strings.Contains(m.Text, "7:00 AM to 12:00 AM") {
		t.Fatalf("menu text: %s", m.Text)
	}
	btns := buttons(t, *m.Opt)
	if len(btns) != 5 {
		t.Fatalf("menu buttons=%d want 5", len(btns))
	}
	for _, b := range btns {
		if len(b.Data) > 64 || !strings.HasPrefix(b.Data, nsMenu+":") {
			t.Fatalf("bad button data %q", b.Data)
		}
	}
	if r := MenuCard(true); !strings.Contains(r.Text, "Menu Reminder") {
		t.Fatalf("reminder text: %s", r.Text)
	}
}

func TestAddFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sub := h.bus.Subscribe(4)
	defer sub.Close()

	h.press(t, "m:add")
	cats := buttons(t, h.ad.Sent()[0].Opt)
	if len(cats) != len(schedule.Categories()) {
		t.Fatalf("category buttons=%d", len(cats))
	}

	h.press(t, "add:cat:work")
	dates := buttons(t, h.ad.Edited()[0].Opt)
	if len(dates) != pickerDays || dates[0].Data != "add:date:work:2024-12-23" {
		t.Fatalf("dates=%d first=%q", len(dates), dates[0].Data)
	}

	h.press(t, "add:date:work:2024-12-25")
	times := buttons(t, h.ad.Edited()[1].Opt)
	if len(times) != 18 || times[0].Text != "7:00 AM" || times[17].Data != "add:time:work:2024-12-25:00:00" {
		t.Fatalf("times=%d first=%q last=%q", len(times), times[0].Text, times[17].Data)
	}

	if got := h.press(t, "add:time:work:2024-12-25:09:00"); !strings.Contains(got, "task title") {
		t.Fatalf("title prompt: %s", got)
	}
	if got := h.say(t, strings.Repeat("x", MaxTitleRunes+1)); !strings.Contains(got, "too long") {
		t.Fatalf("long title reply: %s", got)
	}
	if got := h.say(t, "Standup"); !strings.Contains(got, "description") {
		t.Fatalf("description prompt: %s", got)
	}
	got := h.say(t, "-")
	if !strings.Contains(got, "Task Added") || !strings.Contains(got, "2024-12-25 at 09:00") {
		t.Fatalf("added card: %s", got)
	}

	tasks := h.store.Tasks(schedule.OwnerID(userID))
	if len(tasks) != 1 || tasks[0].Title != "Standup" || tasks[0].Category != "work" || tasks[0].Hour != 9 || tasks[0].Description != "" {
		t.Fatalf("tasks=%+v", tasks)
	}
	if h.bot.awaitingInput(&kit.Message{ChatID: chatID, FromID: userID}) {
		t.Fatal("session should be gone")
	}
	if e := <-sub.C; e.Kind != eventbus.TaskAdded || e.TaskID != tasks[0].ID {
		t.Fatalf("event=%+v", e)
	}
}

func TestAddFlowPersistFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.blob.SetFailSave(errors.New("disk full"))

	h.press(t, "add:time:gym:2024-12-24:18:00")
	h.say(t, "Leg day")
	got := h.say(t, "squats")
	if !strings.Contains(got, "could not be saved") {
		t.Fatalf("reply: %s", got)
	}
	if n := h.store.Count(schedule.OwnerID(userID)); n != 0 {
		t.Fatalf("count=%d want 0", n)
	}
}

func TestAddCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	got := h.command(t, "add", []string{"Team sync", "2024-12-25", "14:45"}, map[string]string{"category": "Project", "desc": "bring notes"})
	if !strings.Contains(got, "Task Added") || !strings.Contains(got, "project") {
		t.Fatalf("reply: %s", got)
	}

	cases := []struct {
		args []string
		want string
	}{
		{[]string{"Early", "2024-12-25", "05:00"}, "Time must be between 7:00 AM and 12:00 AM (midnight). You entered 5:00 AM."},
		{[]string{"Bad", "12/25/2024"}, "Invalid date format"},
		{[]string{"Bad", "2024-12-25", "9.30"}, "Invalid time format"},
		{nil, "Usage"},
	}
	for _, tc := range cases {
		if got := h.command(t, "add", tc.args, nil); !strings.Contains(got, tc.want) {
			t.Fatalf("add %q: %s", tc.args, got)
		}
	}
	if n := h.store.Count(schedule.OwnerID(userID)); n != 1 {
		t.Fatalf("count=%d want 1", n)
	}
}

func TestEditAndDeleteCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.command(t, "add", []string{"Gym", "2024-12-24", "18:00"}, nil)

	if got := h.command(t, "edit", []string{"1"}, map[string]string{"time": "19:30"}); !strings.Contains(got, "updated successfully") {
		t.Fatalf("edit: %s", got)
	}
	task, err := h.store.Get(schedule.OwnerID(userID), 1)
	if err != nil || task.Hour != 19 || task.Minute != 30 || task.Title != "Gym" {
		t.Fatalf("task=%+v err=%v", task, err)
	}

	long := strings.Repeat("d", MaxEditDescRunes+1)
	if got := h.command(t, "edit", []string{"1"}, map[string]string{"desc": long}); !strings.Contains(got, "at most") {
		t.Fatalf("long desc: %s", got)
	}
	if got := h.command(t, "edit", []string{"x"}, nil); !strings.Contains(got, "Invalid Task ID") {
		t.Fatalf("bad id: %s", got)
	}
	if got := h.command(t, "delete", []string{"999"}, nil); !strings.Contains(got, "Task with ID 999 not found.") {
		t.Fatalf("missing delete: %s", got)
	}
	if got := h.command(t, "delete", []string{"1"}, nil); !strings.Contains(got, "Task ID 1 has been removed") {
		t.Fatalf("delete: %s", got)
	}
}

func TestListSelectAndDelete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.command(t, "add", []string{"Past", "2024-12-20", "09:00"}, nil)
	h.command(t, "add", []string{"Future", "2024-12-26", "08:00"}, map[string]string{"desc": "prep"})

	got := h.command(t, "list", nil, nil)
	if !strings.Contains(got, "Total tasks: 2") || !strings.Contains(got, "Thursday (December 26, 2024)") {
		t.Fatalf("list: %s", got)
	}
	sent := h.ad.Sent()
	sel := buttons(t, sent[len(sent)-1].Opt)
	if len(sel) != 1 || sel[0].Data != "task:sel:2" {
		t.Fatalf("selectable=%+v", sel)
	}

	h.press(t, "task:sel:2")
	if got := h.press(t, "task:del:2"); !strings.Contains(got, "Delete task 2?") {
		t.Fatalf("confirm: %s", got)
	}
	if got := h.press(t, "task:delno:2"); !strings.Contains(got, "kept") {
		t.Fatalf("cancel: %s", got)
	}
	if got := h.press(t, "task:delok:2"); !strings.Contains(got, "deleted successfully") {
		t.Fatalf("delete: %s", got)
	}
	h.press(t, "task:sel:2")
	answers := h.ad.Answers()
	if len(answers) == 0 || answers[len(answers)-1].Text != "Task with ID 2 not found." {
		t.Fatalf("answers=%+v", answers)
	}
}

func TestEditFlowViaButtons(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.command(t, "add", []string{"Read", "2024-12-27", "21:00"}, nil)

	h.press(t, "task:edit:1")
	if got := h.say(t, "nonsense"); !strings.Contains(got, "Cannot read") {
		t.Fatalf("bad input: %s", got)
	}
	if got := h.say(t, "title = Read a book\ndate=2024-12-28"); !strings.Contains(got, "updated successfully") {
		t.Fatalf("edit: %s", got)
	}
	task, _ := h.store.Get(schedule.OwnerID(userID), 1)
	if task.Title != "Read a book" || task.Date != "2024-12-28" || task.Hour != 21 {
		t.Fatalf("task=%+v", task)
	}
}

func TestClearAndCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.command(t, "add", []string{"A"}, nil)
	h.command(t, "add", []string{"B"}, nil)

	if got := h.command(t, "clear", nil, map[string]string{"user": "7"}); !strings.Contains(got, "Removed 0 task(s) for user 7") {
		t.Fatalf("clear other: %s", got)
	}
	if got := h.command(t, "clear", nil, nil); !strings.Contains(got, "Removed 2 task(s)") {
		t.Fatalf("clear: %s", got)
	}

	if got := h.command(t, "cancel", nil, nil); !strings.Contains(got, "Nothing to cancel") {
		t.Fatalf("cancel: %s", got)
	}
	h.press(t, "add:time:study:2024-12-24:10:00")
	if got := h.command(t, "cancel", nil, nil); !strings.Contains(got, "Cancelled") {
		t.Fatalf("cancel pending: %s", got)
	}
}

func TestViewAnotherSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithPeople([]Person{{Name: "Rain", ID: 77}}))
	if _, err := h.store.Add(context.Background(), 77, schedule.AddInput{Title: "Yoga", Time: "18:00", Category: "personal"}); err != nil {
		t.Fatal(err)
	}

	h.press(t, "m:other")
	people := buttons(t, h.ad.Sent()[0].Opt)
	if len(people) != 1 || people[0].Data != "view:user:77" {
		t.Fatalf("people=%+v", people)
	}
	got := h.press(t, "view:user:77")
	if !strings.Contains(got, "Rain&#39;s Weekly Outlook") || !strings.Contains(got, "Yoga") || !strings.Contains(got, "6:00 PM") {
		t.Fatalf("schedule: %s", got)
	}
	if got := h.command(t, "schedule", []string{"rain"}, nil); !strings.Contains(got, "Rain&#39;s Weekly Outlook") {
		t.Fatalf("/schedule rain: %s", got)
	}

	h.bot.SetPeople(nil)
	h.press(t, "view:user:77")
	answers := h.ad.Answers()
	if len(answers) != 1 || !strings.Contains(answers[0].Text, "no longer listed") {
		t.Fatalf("answers=%+v", answers)
	}
}

func TestScheduleCard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.command(t, "add", []string{"<b>Standup</b>", "2024-12-23", "09:30"}, map[string]string{"category": "work"})

	got := h.command(t, "schedule", nil, nil)
	for _, want := range []string{"Your Weekly Outlook", "Mon Dec 23", "💼 <b>&lt;b&gt;Standup&lt;/b&gt;</b> <code>9:30 AM</code>", "Fri Dec 27", "No tasks scheduled", "Use /menu"} {
		if !strings.Contains(got, want) {
			t.Fatalf("schedule missing %q:\n%s", want, got)
		}
	}
}

func TestParseEditLines(t *testing.T) {
	t.Parallel()
	in, err := parseEditLines("title=Sync\n desc: with a=b \n\nTIME=10:00")
	if err != nil {
		t.Fatal(err)
	}
	if *in.Title != "Sync" || *in.Description != "with a=b" || *in.Time != "10:00" || in.Date != nil {
		t.Fatalf("in=%+v", in)
	}
	if _, err := parseEditLines("colour=red"); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestErrorText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want string
	}{
		{&schedule.NotFoundError{TaskID: 3}, "Task with ID 3 not found."},
		{&schedule.PersistenceError{Op: "add", Err: errors.New("io")}, "could not be saved"},
		{errors.New("boom"), "An unexpected error occurred: boom"},
	}
	for _, tc := range cases {
		if got := errorText(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("errorText(%v)=%q", tc.err, got)
		}
	}
}
