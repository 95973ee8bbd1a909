package router

import (
	"sort"
	"strings"

	kit "schedbot/internal/transport"
	"schedbot/pkg/tgui"
)

// HelpHTML lists visible commands. Owner-only commands are included only
// for owners.
func (r *Router) HelpHTML(owner bool) string {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.ordered...)
	r.mu.RUnlock()

	b := tgui.New().Title("ℹ️", "Commands")
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessOwnerOnly && !owner) {
			continue
		}
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := tgui.Code(usage).String()
		if d := strings.TrimSpace(c.Description); d != "" {
			line += "\n   " + tgui.Esc(d).String()
		}
		if len(c.Aliases) > 0 {
			al := make([]string, 0, len(c.Aliases))
			for _, a := range c.Aliases {
				al = append(al, "/"+normalizeName(a))
			}
			line += "\n   " + tgui.I("aliases: "+strings.Join(al, ", ")).String()
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		b.RawLine(tgui.Raw(line))
	}
	return b.Build().Text
}

// MenuCommands returns the public commands for the Telegram menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.ordered...)
	r.mu.RUnlock()

	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		if c.Hidden || c.Access == AccessOwnerOnly {
			continue
		}
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, kit.BotCommand{Command: name, Description: c.Description})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command == "start" && out[j].Command != "start" })
	return out
}

// sanitizeTelegramCommand maps a name onto Telegram's [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = strings.TrimRight(("cmd_" + out)[:min(32, len(out)+4)], "_")
	}
	return out
}
