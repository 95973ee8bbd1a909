package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
)

func (b *Bot) commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Open the schedule menu",
			Handle:      b.cmdMenu,
		},
		{
			Name:        "menu",
			Description: "Show the main menu",
			Handle:      b.cmdMenu,
		},
		{
			Name:        "schedule",
			Description: "Your schedule for the next 5 days",
			Usage:       "/schedule [name]",
			Handle:      b.cmdSchedule,
		},
		{
			Name:        "add",
			Description: "Add a task",
			Usage:       `/add "title" [YYYY-MM-DD] [HH:MM] [--category work] [--desc "..."]`,
			Handle:      b.cmdAdd,
		},
		{
			Name:        "list",
			Description: "List your tasks with their IDs",
			Aliases:     []string{"tasks"},
			Handle:      b.cmdList,
		},
		{
			Name:        "edit",
			Description: "Edit a task",
			Usage:       "/edit <id> [--title ..] [--desc ..] [--date YYYY-MM-DD] [--time HH:MM]",
			Handle:      b.cmdEdit,
		},
		{
			Name:        "delete",
			Description: "Delete a task",
			Usage:       "/delete <id>",
			Aliases:     []string{"del", "rm"},
			Handle:      b.cmdDelete,
		},
		{
			Name:        "cancel",
			Description: "Abort the current input",
			Handle:      b.cmdCancel,
		},
		{
			Name:        "clear",
			Description: "Remove all tasks of a user",
			Usage:       "/clear [--user <id>]",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdClear,
		},
	}
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	return b.reply(ctx, req, MenuCard(false))
}

// cmdSchedule shows the caller's schedule, or that of a configured person
// when a name or user id is given.
func (b *Bot) cmdSchedule(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return b.reply(ctx, req, scheduleCard(b.store.ScheduleView(ownerOf(req)), ""))
	}
	q := strings.Join(req.Args, " ")
	for _, p := range b.peopleSnapshot() {
		if strings.EqualFold(p.Name, q) || p.ID.String() == q {
			return b.reply(ctx, req, scheduleCard(b.store.ScheduleView(p.ID), p.Name))
		}
	}
	return b.reply(ctx, req, successCard("👤", "Unknown person", "No configured person matches "+q+"."))
}

func (b *Bot) cmdAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return b.reply(ctx, req, usageCard(`/add "title" [YYYY-MM-DD] [HH:MM]`))
	}
	in := schedule.AddInput{
		Title:       req.Args[0],
		Description: flag(req, "desc", "description", "d"),
		Category:    flag(req, "category", "cat", "c"),
	}
	if len(req.Args) > 1 {
		in.Date = req.Args[1]
	}
	if len(req.Args) > 2 {
		in.Time = req.Args[2]
	}
	if err := checkAddLimits(in); err != nil {
		return b.replyErr(ctx, req, "Error Adding Task", err)
	}

	owner := ownerOf(req)
	res, err := b.store.Add(ctx, owner, in)
	if err != nil {
		return b.replyErr(ctx, req, "Error Adding Task", err)
	}
	b.publish(eventbus.TaskAdded, owner, req.FromID, res.ID, 1)
	return b.reply(ctx, req, addedCard(strings.TrimSpace(in.Title), res, schedule.NormalizeCategory(in.Category)))
}

func (b *Bot) cmdList(ctx context.Context, req *router.Request) error {
	owner := ownerOf(req)
	return b.reply(ctx, req, listCard(b.store.ListView(owner), b.store.Upcoming(owner, maxSelectable)))
}

func (b *Bot) cmdEdit(ctx context.Context, req *router.Request) error {
	usage := "/edit <id> [--title ..] [--desc ..] [--date YYYY-MM-DD] [--time HH:MM]"
	if len(req.Args) == 0 {
		return b.reply(ctx, req, usageCard(usage))
	}
	id, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return b.reply(ctx, req, successCard("❌", "Invalid Task ID", "Please enter a valid task ID number."))
	}
	var in schedule.EditInput
	for _, f := range []struct {
		dst   **string
		names []string
	}{
		{&in.Title, []string{"title", "t"}},
		{&in.Description, []string{"desc", "description", "d"}},
		{&in.Date, []string{"date"}},
		{&in.Time, []string{"time"}},
	} {
		for _, n := range f.names {
			if v, ok := req.Flags[n]; ok {
				*f.dst = &v
				break
			}
		}
	}
	if in.IsEmpty() {
		return b.reply(ctx, req, usageCard(usage))
	}
	return b.applyEdit(ctx, req, id, in)
}

func (b *Bot) cmdDelete(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return b.reply(ctx, req, usageCard("/delete <id>"))
	}
	id, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return b.reply(ctx, req, successCard("❌", "Invalid Task ID", "Please enter a valid task ID number."))
	}
	owner := ownerOf(req)
	if _, err := b.store.Delete(ctx, owner, id); err != nil {
		return b.replyErr(ctx, req, "Error Deleting Task", err)
	}
	b.publish(eventbus.TaskDeleted, owner, req.FromID, id, 1)
	return b.reply(ctx, req, successCard("✅", "Task Deleted Successfully", fmt.Sprintf("Task ID %d has been removed from your schedule.", id)))
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	key := sessionKey(req.Chat.ChatID, req.FromID)
	if _, ok := b.sessions.Take(key); !ok {
		return b.reply(ctx, req, successCard("ℹ️", "Nothing to cancel", "No input is pending."))
	}
	return b.reply(ctx, req, successCard("✖️", "Cancelled", "Pending input discarded."))
}

func (b *Bot) cmdClear(ctx context.Context, req *router.Request) error {
	owner := ownerOf(req)
	if v := flag(req, "user", "u"); v != "" {
		id, err := schedule.ParseOwnerID(v)
		if err != nil {
			return b.reply(ctx, req, usageCard("/clear [--user <id>]"))
		}
		owner = id
	}
	n, err := b.store.Clear(ctx, owner)
	if err != nil {
		return b.replyErr(ctx, req, "Error Clearing Tasks", err)
	}
	req.Logger.Info("tasks cleared", logx.String("owner", owner.String()), logx.Int("count", n))
	b.publish(eventbus.TasksClear, owner, req.FromID, 0, n)
	return b.reply(ctx, req, successCard("🧹", "Tasks Cleared", fmt.Sprintf("Removed %d task(s) for user %s.", n, owner)))
}

func flag(req *router.Request, names ...string) string {
	for _, n := range names {
		if v, ok := req.Flags[n]; ok {
			return v
		}
	}
	return ""
}
