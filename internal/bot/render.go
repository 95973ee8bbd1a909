package bot

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/schedule"
	"schedbot/pkg/tgui"
)

// Callback namespaces and actions. Keep them short: Telegram caps callback
// data at 64 bytes.
const (
	nsMenu = "m"
	nsAdd  = "add"
	nsTask = "task"
	nsView = "view"

	actSchedule = "sched"
	actAdd      = "add"
	actList     = "list"
	actOther    = "other"
	actHelp     = "help"

	actCategory = "cat"
	actDate     = "date"
	actTime     = "time"

	actSelect    = "sel"
	actEdit      = "edit"
	actDelete    = "del"
	actDeleteOK  = "delok"
	actDeleteNo  = "delno"
	actViewOwner = "user"
)

func menuKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📅 View Schedule", tgui.Data(nsMenu, actSchedule, "")), tgui.Btn("➕ Add Task", tgui.Data(nsMenu, actAdd, ""))).
		Row(tgui.Btn("📋 List Tasks", tgui.Data(nsMenu, actList, "")), tgui.Btn("📎 View Another's Schedule", tgui.Data(nsMenu, actOther, ""))).
		Row(tgui.Btn("❓ Help", tgui.Data(nsMenu, actHelp, "")))
}

// MenuCard renders the main menu. The reminder variant is posted by the
// periodic broadcast.
func MenuCard(reminder bool) tgui.Message {
	b := tgui.New()
	if reminder {
		b.Title("⏰", "Menu Reminder").
			Line("Here's your schedule manager. Tap below to get started:")
	} else {
		b.Title("📅", "Schedule Manager Bot").
			Line("Use the buttons below to manage your schedule.").
			Blank().
			Section("🕐 Time Range").
			Line("Schedule displays from 7:00 AM to 12:00 AM (midnight)").
			Blank().
			Section("📋 Features").
			Bullets("View your 5-day schedule", "Add new tasks", "Edit existing tasks", "Delete tasks", "List all tasks")
	}
	return b.Inline(menuKeyboard()).Build()
}

func helpCard() tgui.Message {
	return tgui.New().
		Title("📅", "Schedule Bot Help").
		Line("Use the buttons to interact with your schedule!").
		Blank().
		KV("📅 View Schedule", "Display your schedule for the next 5 days (7 AM - 12 AM)").
		KV("➕ Add Task", "Add a new task to your schedule with description, date, and time").
		KV("📋 List Tasks", "View all your tasks with their IDs for editing/deleting").
		KV("Date Format", "Use YYYY-MM-DD format (e.g., 2024-12-25)").
		KV("Time Format", "Use HH:MM format (e.g., 09:30, 14:45, 23:30)").
		Blank().
		Line("Send /help for the full command list.").
		Build()
}

// scheduleCard renders the five-day outlook. whose is empty for the
// caller's own schedule.
func scheduleCard(v schedule.ScheduleView, whose string) tgui.Message {
	title := "Your Weekly Outlook"
	if whose != "" {
		title = whose + "'s Weekly Outlook"
	}
	b := tgui.New().Title("📅", title)
	for _, d := range v.Days {
		b.Blank().Section(d.Label)
		if d.Empty {
			b.RawLine(tgui.I("❌ No tasks scheduled"))
			continue
		}
		for _, t := range d.Tasks {
			b.RawLine(tgui.Raw(tgui.Esc(t.Emoji).String() + " " + tgui.B(t.Title).String() + " " + tgui.Code(t.Time12).String()))
		}
	}
	b.Blank().Line("🧠 Use /menu or buttons to manage your tasks.")
	return b.Build()
}

// listCard renders every task grouped by date, with a selection keyboard
// for upcoming tasks.
func listCard(v schedule.ListView, upcoming []schedule.Task) tgui.Message {
	b := tgui.New().Title("📋", "Your Tasks")
	if v.Total == 0 {
		return b.Line("You have no tasks scheduled.").Build()
	}
	for _, g := range v.Groups {
		b.Blank().Section(g.Label)
		for _, e := range g.Entries {
			b.RawLine(tgui.Raw(tgui.B("ID "+itoa(e.ID)).String() + " - " + tgui.Esc(e.Time12+" - "+e.Title).String()))
			if e.Description != "" {
				b.RawLine(tgui.Raw("&gt; " + tgui.I(e.Description).String()))
			}
		}
	}
	b.Blank().Line("Total tasks: " + itoa(v.Total))

	if len(upcoming) > 0 {
		btns := make([]tele.Btn, 0, len(upcoming))
		for _, t := range upcoming {
			label := t.Date + " • " + t.Time12() + " - " + tgui.TruncRunes(displayTitle(t.Title), 40)
			btns = append(btns, tgui.Btn(label, tgui.Data(nsTask, actSelect, itoa(t.ID))))
		}
		b.Blank().Line("Select a task to edit or delete:")
		b.Inline(tgui.NewInline().Grid(1, btns))
	}
	return b.Build()
}

func selectedCard(t schedule.Task) tgui.Message {
	kb := tgui.NewInline().Row(
		tgui.Btn("✏️ Edit", tgui.Data(nsTask, actEdit, itoa(t.ID))),
		tgui.Btn("🗑️ Delete", tgui.Data(nsTask, actDelete, itoa(t.ID))),
	)
	b := tgui.New().Title(schedule.CategoryEmoji(t.Category), "Selected Task ID: "+itoa(t.ID)).
		KV("Title", displayTitle(t.Title)).
		KV("When", t.Date+" "+t.Time12()).
		KV("Category", t.Category)
	if t.Description != "" {
		b.KV("Description", t.Description)
	}
	return b.Inline(kb).Build()
}

func confirmDeleteCard(t schedule.Task) tgui.Message {
	kb := tgui.ConfirmInline(
		tgui.Btn("🗑️ Yes, delete", tgui.Data(nsTask, actDeleteOK, itoa(t.ID))),
		tgui.Btn("✖️ Cancel", tgui.Data(nsTask, actDeleteNo, itoa(t.ID))),
	)
	return tgui.New().Title("⚠️", "Delete task "+itoa(t.ID)+"?").
		Line(displayTitle(t.Title) + " on " + t.Date + " at " + t.Time12()).
		Inline(kb).
		Build()
}

func addedCard(title string, res schedule.AddResult, category string) tgui.Message {
	return tgui.New().Title("✅", "Task Added").
		RawLine(tgui.Raw(tgui.B(title).String() + " scheduled on " + tgui.B(res.Date+" at "+res.Time).String())).
		RawLine(tgui.Raw("Category: " + tgui.Code(category).String())).
		RawLine(tgui.Raw("ID: " + tgui.Code(itoa(res.ID)).String())).
		Build()
}

func successCard(emoji, title, line string) tgui.Message {
	return tgui.New().Title(emoji, title).Line(line).Build()
}

func errorCard(title string, err error) tgui.Message {
	return tgui.New().Title("❌", title).Line(errorText(err)).Build()
}

func usageCard(usage string) tgui.Message {
	return tgui.New().Title("❌", "Invalid Argument").
		RawLine(tgui.Raw("Usage: " + tgui.Code(usage).String())).
		Line("Use /menu to access the button interface.").
		Build()
}

// errorText maps store errors onto user-facing text.
func errorText(err error) string {
	var (
		fe *schedule.FormatError
		ve *schedule.ValidationError
		ne *schedule.NotFoundError
		pe *schedule.PersistenceError
	)
	switch {
	case errors.As(err, &fe), errors.As(err, &ve), errors.As(err, &ne):
		return err.Error()
	case errors.As(err, &pe):
		return "Your change could not be saved. Please try again."
	case err == nil:
		return ""
	default:
		return "An unexpected error occurred: " + err.Error()
	}
}

func displayTitle(s string) string {
	if strings.TrimSpace(s) == "" {
		return schedule.UntitledTask
	}
	return s
}
