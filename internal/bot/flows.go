package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	"schedbot/pkg/tgui"
)

func (b *Bot) callbacks() []router.CallbackRoute {
	route := func(ns, action string, h router.CallbackHandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Namespace: ns, Action: action, Handle: h}
	}
	return []router.CallbackRoute{
		route(nsMenu, actSchedule, b.cbSchedule),
		route(nsMenu, actAdd, b.cbAddStart),
		route(nsMenu, actList, b.cbList),
		route(nsMenu, actOther, b.cbPeople),
		route(nsMenu, actHelp, b.cbHelp),

		route(nsAdd, actCategory, b.cbAddCategory),
		route(nsAdd, actDate, b.cbAddDate),
		route(nsAdd, actTime, b.cbAddTime),

		route(nsTask, actSelect, b.cbSelect),
		route(nsTask, actEdit, b.cbEdit),
		route(nsTask, actDelete, b.cbDelete),
		route(nsTask, actDeleteOK, b.cbDeleteConfirm),
		route(nsTask, actDeleteNo, b.cbDeleteCancel),

		route(nsView, actViewOwner, b.cbViewOwner),
	}
}

func messageRef(req *router.Request) kit.MessageRef {
	return kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
}

// edit replaces the message the button belongs to, falling back to a new
// message when the callback carries no message id.
func (b *Bot) edit(ctx context.Context, req *router.Request, m tgui.Message) error {
	if req.MessageID == 0 {
		return b.reply(ctx, req, m)
	}
	return m.Edit(ctx, req.Adapter, messageRef(req))
}

func (b *Bot) answer(ctx context.Context, req *router.Request, text string) {
	if req.CallbackID == "" {
		return
	}
	_ = req.Adapter.AnswerCallback(ctx, req.CallbackID, text)
}

// Menu

func (b *Bot) cbSchedule(ctx context.Context, req *router.Request, _ string) error {
	return b.reply(ctx, req, scheduleCard(b.store.ScheduleView(ownerOf(req)), ""))
}

func (b *Bot) cbList(ctx context.Context, req *router.Request, _ string) error {
	return b.cmdList(ctx, req)
}

func (b *Bot) cbHelp(ctx context.Context, req *router.Request, _ string) error {
	return b.reply(ctx, req, helpCard())
}

func (b *Bot) cbPeople(ctx context.Context, req *router.Request, _ string) error {
	people := b.peopleSnapshot()
	if len(people) == 0 {
		return b.reply(ctx, req, successCard("👤", "Select a user", "No people are configured."))
	}
	btns := make([]tele.Btn, 0, len(people))
	for _, p := range people {
		btns = append(btns, tgui.Btn("👤 "+p.Name, tgui.Data(nsView, actViewOwner, p.ID.String())))
	}
	return b.reply(ctx, req, tgui.New().Title("👤", "Select a user:").Inline(tgui.NewInline().Grid(2, btns)).Build())
}

func (b *Bot) cbViewOwner(ctx context.Context, req *router.Request, payload string) error {
	id, err := schedule.ParseOwnerID(payload)
	if err != nil {
		b.answer(ctx, req, "Unknown user.")
		return nil
	}
	name, ok := b.personName(id)
	if !ok {
		b.answer(ctx, req, "This user is no longer listed.")
		return nil
	}
	return b.reply(ctx, req, scheduleCard(b.store.ScheduleView(id), name))
}

// Add flow: category, date, time, then free-text title and description.

func categoryLabel(cat string) string {
	if cat == schedule.CategoryDefault {
		return schedule.CategoryEmoji(cat) + " Other"
	}
	return schedule.CategoryEmoji(cat) + " " + strings.ToUpper(cat[:1]) + cat[1:]
}

func (b *Bot) cbAddStart(ctx context.Context, req *router.Request, _ string) error {
	cats := schedule.Categories()
	btns := make([]tele.Btn, 0, len(cats))
	for _, c := range cats {
		btns = append(btns, tgui.Btn(categoryLabel(c), tgui.Data(nsAdd, actCategory, c)))
	}
	return b.reply(ctx, req, tgui.New().Title("🗂️", "Choose a category for your new task:").Inline(tgui.NewInline().Grid(3, btns)).Build())
}

func (b *Bot) cbAddCategory(ctx context.Context, req *router.Request, payload string) error {
	cat := schedule.NormalizeCategory(payload)
	if !schedule.IsKnownCategory(cat) {
		b.answer(ctx, req, "Unknown category.")
		return nil
	}
	now := b.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	btns := make([]tele.Btn, 0, pickerDays)
	for i := 0; i < pickerDays; i++ {
		d := today.AddDate(0, 0, i)
		btns = append(btns, tgui.Btn(d.Format("Mon Jan 02"), tgui.Data(nsAdd, actDate, cat+":"+d.Format(schedule.DateLayout))))
	}
	kb := tgui.NewInline().Grid(4, btns)
	return b.edit(ctx, req, tgui.New().Title("📅", "Choose a date").KV("Category", categoryLabel(cat)).Inline(kb).Build())
}

// pickerTimes lists the hourly slots of the display window.
func pickerTimes() []string {
	out := make([]string, 0, 18)
	for h := 7; h <= 23; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return append(out, "00:00")
}

func (b *Bot) cbAddDate(ctx context.Context, req *router.Request, payload string) error {
	cat, date, ok := strings.Cut(payload, ":")
	if !ok || !schedule.IsKnownCategory(cat) {
		b.answer(ctx, req, "This button has expired.")
		return nil
	}
	if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		b.answer(ctx, req, "This button has expired.")
		return nil
	}
	times := pickerTimes()
	btns := make([]tele.Btn, 0, len(times))
	for _, t := range times {
		h, _ := strconv.Atoi(t[:2])
		btns = append(btns, tgui.Btn(schedule.Format12(h, 0), tgui.Data(nsAdd, actTime, cat+":"+date+":"+t)))
	}
	kb := tgui.NewInline().Grid(4, btns)
	return b.edit(ctx, req, tgui.New().Title("⏰", "Choose a time").
		KV("Category", categoryLabel(cat)).
		KV("Date", date).
		Inline(kb).
		Build())
}

func (b *Bot) cbAddTime(ctx context.Context, req *router.Request, payload string) error {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || !schedule.IsKnownCategory(parts[0]) {
		b.answer(ctx, req, "This button has expired.")
		return nil
	}
	s := session{Step: stepTitle, Category: parts[0], Date: parts[1], Time: parts[2]}
	b.sessions.Put(sessionKey(req.Chat.ChatID, req.FromID), s)

	h, _ := strconv.Atoi(strings.SplitN(s.Time, ":", 2)[0])
	return b.edit(ctx, req, tgui.New().Title("✍️", "New task").
		KV("Category", categoryLabel(s.Category)).
		KV("When", s.Date+" "+schedule.Format12(h, 0)).
		Blank().
		Line(fmt.Sprintf("Send the task title (max %d characters), or /cancel.", MaxTitleRunes)).
		Build())
}

// Manage flow: select from /list, then edit or delete.

func (b *Bot) taskFromPayload(ctx context.Context, req *router.Request, payload string) (schedule.Task, bool) {
	id, err := strconv.Atoi(payload)
	if err != nil {
		b.answer(ctx, req, "This button has expired.")
		return schedule.Task{}, false
	}
	t, err := b.store.Get(ownerOf(req), id)
	if err != nil {
		var ne *schedule.NotFoundError
		if errors.As(err, &ne) {
			b.answer(ctx, req, ne.Error())
		}
		return schedule.Task{}, false
	}
	return t, true
}

func (b *Bot) cbSelect(ctx context.Context, req *router.Request, payload string) error {
	t, ok := b.taskFromPayload(ctx, req, payload)
	if !ok {
		return nil
	}
	return b.reply(ctx, req, selectedCard(t))
}

func (b *Bot) cbEdit(ctx context.Context, req *router.Request, payload string) error {
	t, ok := b.taskFromPayload(ctx, req, payload)
	if !ok {
		return nil
	}
	b.sessions.Put(sessionKey(req.Chat.ChatID, req.FromID), session{Step: stepEdit, TaskID: t.ID})
	return b.edit(ctx, req, tgui.New().Title("✏️", "Edit task "+itoa(t.ID)).
		KV("Title", displayTitle(t.Title)).
		KV("When", t.Date+" "+t.Time()).
		Blank().
		Line("Send one line per field to change:").
		RawLine(tgui.Code("title=New title")).
		RawLine(tgui.Code(fmt.Sprintf("desc=New description (max %d)", MaxEditDescRunes))).
		RawLine(tgui.Code("date=YYYY-MM-DD")).
		RawLine(tgui.Code("time=HH:MM")).
		Line("Fields you leave out are kept. /cancel aborts.").
		Build())
}

func (b *Bot) cbDelete(ctx context.Context, req *router.Request, payload string) error {
	t, ok := b.taskFromPayload(ctx, req, payload)
	if !ok {
		return nil
	}
	return b.edit(ctx, req, confirmDeleteCard(t))
}

func (b *Bot) cbDeleteConfirm(ctx context.Context, req *router.Request, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		b.answer(ctx, req, "This button has expired.")
		return nil
	}
	owner := ownerOf(req)
	if _, err := b.store.Delete(ctx, owner, id); err != nil {
		var pe *schedule.PersistenceError
		if errors.As(err, &pe) {
			return b.replyErr(ctx, req, "Error Deleting Task", err)
		}
		return b.edit(ctx, req, errorCard("Error deleting task", err))
	}
	b.publish(eventbus.TaskDeleted, owner, req.FromID, id, 1)
	return b.edit(ctx, req, successCard("✅", "Task Deleted", fmt.Sprintf("Task %d deleted successfully.", id)))
}

func (b *Bot) cbDeleteCancel(ctx context.Context, req *router.Request, payload string) error {
	return b.edit(ctx, req, successCard("✖️", "Deletion cancelled", "Task "+payload+" was kept."))
}
