package router

import (
	"context"
	"html"
	"strings"

	kit "remindbot/internal/transport"
)

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	var text string
	if len(req.Args) > 0 {
		text = r.commandHelp(strings.TrimPrefix(req.Args[0], "/"), req.IsOwner)
	} else {
		text = r.helpText(req.IsOwner)
	}
	return req.ReplyHTML(ctx, text)
}

// helpText renders the command list in HTML parse mode. Owner-only commands
// are shown to owners only.
func (r *Router) helpText(owner bool) string {
	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;cmd&gt;</code> for details.", ""}
	for _, c := range r.Commands() {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r *Router) commandHelp(name string, owner bool) string {
	c, ok := r.lookup(name)
	if !ok || (c.Access == AccessOwnerOnly && !owner) {
		return "❓ <b>Unknown command</b>\nType <code>/help</code> for the list."
	}
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "", "<b>Aliases</b>")
		for _, a := range c.Aliases {
			lines = append(lines, "• <code>/"+html.EscapeString(a)+"</code>")
		}
	}
	return strings.Join(lines, "\n")
}

// buildMenu converts commands into menu entries, capped at Telegram's 100.
func buildMenu(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
		if len(out) == 100 {
			break
		}
	}
	return out
}
