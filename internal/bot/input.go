package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

type step int

const (
	stepTitle step = iota + 1
	stepDescription
	stepEdit
)

// session is the pending free-text input of one user in one chat.
type session struct {
	Step     step
	Category string
	Date     string
	Time     string
	Title    string
	TaskID   int
}

func sessionKey(chatID, userID int64) string { return fmt.Sprintf("%d:%d", chatID, userID) }

func (b *Bot) awaitingInput(m *kit.Message) bool {
	_, ok := b.sessions.Get(sessionKey(m.ChatID, m.FromID))
	return ok
}

func (b *Bot) handleInput(ctx context.Context, req *router.Request) error {
	key := sessionKey(req.Chat.ChatID, req.FromID)
	s, ok := b.sessions.Get(key)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(req.Text)
	switch s.Step {
	case stepTitle:
		return b.inputTitle(ctx, req, key, s, text)
	case stepDescription:
		return b.inputDescription(ctx, req, key, s, text)
	case stepEdit:
		return b.inputEdit(ctx, req, key, s, text)
	default:
		b.sessions.Delete(key)
		return nil
	}
}

func (b *Bot) inputTitle(ctx context.Context, req *router.Request, key string, s session, text string) error {
	if text == "" {
		return b.reply(ctx, req, tgui.New().Line("Task title is required. Send the title, or /cancel.").Build())
	}
	if n := tgui.RuneLen(text); n > MaxTitleRunes {
		return b.reply(ctx, req, tgui.New().Line(fmt.Sprintf("Title is too long (%d characters, max %d). Send a shorter title.", n, MaxTitleRunes)).Build())
	}
	s.Title = text
	s.Step = stepDescription
	b.sessions.Put(key, s)
	return b.reply(ctx, req, tgui.New().
		Line(fmt.Sprintf("📝 Send a description (max %d characters), or - to skip.", MaxAddDescRunes)).
		Build())
}

func (b *Bot) inputDescription(ctx context.Context, req *router.Request, key string, s session, text string) error {
	if text == "-" {
		text = ""
	}
	if n := tgui.RuneLen(text); n > MaxAddDescRunes {
		return b.reply(ctx, req, tgui.New().Line(fmt.Sprintf("Description is too long (%d characters, max %d). Send a shorter one, or - to skip.", n, MaxAddDescRunes)).Build())
	}
	b.sessions.Delete(key)

	owner := ownerOf(req)
	res, err := b.store.Add(ctx, owner, schedule.AddInput{
		Title:       s.Title,
		Description: text,
		Date:        s.Date,
		Time:        s.Time,
		Category:    s.Category,
	})
	if err != nil {
		return b.replyErr(ctx, req, "Error", err)
	}
	b.publish(eventbus.TaskAdded, owner, req.FromID, res.ID, 1)
	return b.reply(ctx, req, addedCard(s.Title, res, schedule.NormalizeCategory(s.Category)))
}

func (b *Bot) inputEdit(ctx context.Context, req *router.Request, key string, s session, text string) error {
	in, err := parseEditLines(text)
	if err != nil {
		return b.reply(ctx, req, tgui.New().Line(err.Error()).Line("Try again, or /cancel.").Build())
	}
	if in.IsEmpty() {
		return b.reply(ctx, req, tgui.New().Line("Nothing to change. Send field=value lines, or /cancel.").Build())
	}
	b.sessions.Delete(key)
	return b.applyEdit(ctx, req, s.TaskID, in)
}

// parseEditLines reads "field=value" lines. Recognised fields are title,
// desc (or description), date and time.
func parseEditLines(text string) (schedule.EditInput, error) {
	var in schedule.EditInput
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := strings.IndexAny(line, "=:")
		if i <= 0 {
			return in, fmt.Errorf("Cannot read %q. Use field=value.", line)
		}
		k, v := line[:i], strings.TrimSpace(line[i+1:])
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "title":
			in.Title = &v
		case "desc", "description":
			in.Description = &v
		case "date":
			in.Date = &v
		case "time":
			in.Time = &v
		default:
			return in, fmt.Errorf("Unknown field %q. Use title, desc, date or time.", strings.TrimSpace(k))
		}
	}
	return in, nil
}

func checkAddLimits(in schedule.AddInput) error {
	if tgui.RuneLen(strings.TrimSpace(in.Title)) > MaxTitleRunes {
		return &schedule.ValidationError{Field: "title", Message: fmt.Sprintf("Title must be at most %d characters.", MaxTitleRunes)}
	}
	if tgui.RuneLen(in.Description) > MaxAddDescRunes {
		return &schedule.ValidationError{Field: "description", Message: fmt.Sprintf("Description must be at most %d characters.", MaxAddDescRunes)}
	}
	return nil
}

// checkEditLimits enforces the UI length limits on edit input.
func checkEditLimits(in schedule.EditInput) error {
	if in.Title != nil && tgui.RuneLen(*in.Title) > MaxTitleRunes {
		return &schedule.ValidationError{Field: "title", Message: fmt.Sprintf("Title must be at most %d characters.", MaxTitleRunes)}
	}
	if in.Description != nil && tgui.RuneLen(*in.Description) > MaxEditDescRunes {
		return &schedule.ValidationError{Field: "description", Message: fmt.Sprintf("Description must be at most %d characters.", MaxEditDescRunes)}
	}
	return nil
}

func (b *Bot) applyEdit(ctx context.Context, req *router.Request, id int, in schedule.EditInput) error {
	if err := checkEditLimits(in); err != nil {
		return b.replyErr(ctx, req, "Error Updating Task", err)
	}
	owner := ownerOf(req)
	if _, err := b.store.Edit(ctx, owner, id, in); err != nil {
		return b.replyErr(ctx, req, "Error Updating Task", err)
	}
	b.publish(eventbus.TaskEdited, owner, req.FromID, id, 1)
	return b.reply(ctx, req, successCard("✅", "Task Updated Successfully", fmt.Sprintf("Task %d updated successfully.", id)))
}

func (b *Bot) reply(ctx context.Context, req *router.Request, m tgui.Message) error {
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}

// replyErr reports a store error to the user. Persistence failures are
// also logged.
func (b *Bot) replyErr(ctx context.Context, req *router.Request, title string, err error) error {
	var pe *schedule.PersistenceError
	if errors.As(err, &pe) {
		req.Logger.Error("task change not saved", logx.String("op", pe.Op), logx.Err(pe.Err))
	}
	return b.reply(ctx, req, errorCard(title, err))
}
