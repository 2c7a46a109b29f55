// Package bot implements the chat commands for managing reminders.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/schedule"
	"remindbot/internal/tick"
	"remindbot/internal/transport/telegram/router"
)

const (
	usageAdd    = "Usage: /rem_add <SCHEDULE> <NAME> | <MESSAGE>"
	usageToggle = "Usage: /rem_on <id>  or  /rem_off <id>"
	usageDel    = "Usage: /rem_del <id>"
	usageNext   = "Usage: /rem_next <id> [n]"

	textPrivate  = "This bot is private."
	textNotFound = "I couldn't find that reminder."

	defaultNextCount = 3
	maxNextCount     = 10
)

// Registry is the reminder registry as the commands use it.
type Registry interface {
	Create(ctx context.Context, in reminder.NewReminder) (reminder.Reminder, error)
	CreateTest(ctx context.Context, userID, chatID int64) (reminder.Reminder, error)
	Get(ctx context.Context, userID, id int64) (reminder.Reminder, error)
	List(ctx context.Context, userID int64) ([]reminder.Reminder, error)
	SetEnabled(ctx context.Context, userID, chatID, id int64, enabled bool) error
	Delete(ctx context.Context, userID, chatID, id int64) error
	Next(r reminder.Reminder, n int) ([]time.Time, error)
	Now() time.Time
}

type TickStatus interface {
	Snapshot() tick.Snapshot
}

type QueueStatus interface {
	Stats() notifier.Stats
}

type Bot struct {
	reg     Registry
	ticks   TickStatus
	queue   QueueStatus
	started time.Time
}

// New wires the commands. ticks and queue may be nil; /status then omits them.
func New(reg Registry, ticks TickStatus, queue QueueStatus) *Bot {
	return &Bot{reg: reg, ticks: ticks, queue: queue, started: time.Now()}
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "greeting and usage", Access: router.AccessEveryone, Handle: b.start},
		{Name: "rem_add", Description: "create a reminder", Usage: usageAdd, Handle: b.add},
		{Name: "rem_list", Description: "list your reminders", Usage: "/rem_list", Handle: b.list},
		{Name: "rem_on", Description: "enable a reminder", Usage: "/rem_on <id>", Handle: b.toggle(true)},
		{Name: "rem_off", Description: "disable a reminder", Usage: "/rem_off <id>", Handle: b.toggle(false)},
		{Name: "rem_del", Description: "delete a reminder", Usage: usageDel, Handle: b.del},
		{Name: "rem_test", Description: "one-shot test reminder in two minutes", Usage: "/rem_test", Handle: b.test},
		{Name: "rem_next", Description: "show upcoming runs", Usage: usageNext, Handle: b.next},
		{Name: "status", Description: "scheduler and queue status", Usage: "/status", Handle: b.status},
	}
}

func (b *Bot) start(ctx context.Context, req *router.Request) error {
	if !req.IsOwner {
		return req.Reply(ctx, textPrivate)
	}
	return req.Reply(ctx, strings.Join([]string{
		"✅ Ready. I'm connected to this chat.",
		"",
		"Reminders:",
		"• /rem_add WEEKDAY@23:00 Sleep | Time for bed 😴",
		"• /rem_list /rem_on /rem_off /rem_del /rem_next /rem_test",
		"",
		"Schedules:",
		"• EVERYDAY@HH:MM  WEEKDAY@HH:MM  WEEKEND@HH:MM",
		"• DAYS@mon,wed,fri@HH:MM",
		"• ONCE@YYYY-MM-DD@HH:MM",
	}, "\n"))
}

// add parses "<SCHEDULE> <NAME> | <MESSAGE>".
func (b *Bot) add(ctx context.Context, req *router.Request) error {
	payload := strings.TrimSpace(req.Payload)
	if payload == "" {
		return req.Reply(ctx, usageAdd)
	}
	left, message, ok := strings.Cut(payload, "|")
	if !ok {
		return req.Reply(ctx, "Missing '|'. Example: /rem_add WEEKDAY@23:00 Sleep | Time for bed 😴")
	}
	fields := strings.Fields(left)
	if len(fields) < 2 || strings.TrimSpace(message) == "" {
		return req.Reply(ctx, usageAdd)
	}
	expr, name := fields[0], strings.Join(fields[1:], " ")

	r, err := b.reg.Create(ctx, reminder.NewReminder{
		UserID:   req.FromID,
		ChatID:   req.Chat.ChatID,
		Name:     name,
		Message:  message,
		Schedule: expr,
	})
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			return req.Reply(ctx, "Invalid schedule: "+strings.TrimPrefix(err.Error(), "invalid schedule: "))
		}
		return err
	}
	text := fmt.Sprintf("✅ Reminder created (id=%d).", r.ID)
	if next, err := b.reg.Next(r, 1); err == nil && len(next) == 1 {
		text += "\nNext: " + formatTime(next[0])
	}
	return req.Reply(ctx, text)
}

func (b *Bot) list(ctx context.Context, req *router.Request) error {
	list, err := b.reg.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return req.Reply(ctx, "You have no reminders yet. Use /rem_add.")
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "📌 Your reminders:")
	for _, r := range list {
		state := "OFF"
		if r.Enabled {
			state = "ON"
		}
		lines = append(lines, fmt.Sprintf("- id=%d [%s] %s | %s", r.ID, state, r.Name, r.Rule))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) toggle(enabled bool) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		id, ok := parseID(req.Args)
		if !ok {
			return req.Reply(ctx, usageToggle)
		}
		err := b.reg.SetEnabled(ctx, req.FromID, req.Chat.ChatID, id, enabled)
		switch {
		case errors.Is(err, reminder.ErrNotFound):
			return req.Reply(ctx, textNotFound)
		case err != nil:
			return err
		case enabled:
			return req.Reply(ctx, "✅ Enabled.")
		default:
			return req.Reply(ctx, "🛑 Disabled.")
		}
	}
}

func (b *Bot) del(ctx context.Context, req *router.Request) error {
	id, ok := parseID(req.Args)
	if !ok {
		return req.Reply(ctx, usageDel)
	}
	err := b.reg.Delete(ctx, req.FromID, req.Chat.ChatID, id)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return req.Reply(ctx, textNotFound)
	case err != nil:
		return err
	}
	return req.Reply(ctx, "🗑️ Deleted.")
}

func (b *Bot) test(ctx context.Context, req *router.Request) error {
	r, err := b.reg.CreateTest(ctx, req.FromID, req.Chat.ChatID)
	if err != nil {
		return err
	}
	at := r.Rule.At()
	return req.Reply(ctx, fmt.Sprintf("🧪 Test created (id=%d) for %s.", r.ID, at))
}

func (b *Bot) next(ctx context.Context, req *router.Request) error {
	id, ok := parseID(req.Args)
	if !ok {
		return req.Reply(ctx, usageNext)
	}
	n := defaultNextCount
	if len(req.Args) > 1 {
		v, err := strconv.Atoi(req.Args[1])
		if err != nil || v <= 0 {
			return req.Reply(ctx, usageNext)
		}
		n = min(v, maxNextCount)
	}
	r, err := b.reg.Get(ctx, req.FromID, id)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return req.Reply(ctx, textNotFound)
	case err != nil:
		return err
	}
	times, err := b.reg.Next(r, n)
	if errors.Is(err, schedule.ErrNoFutureOccurrence) {
		return req.Reply(ctx, fmt.Sprintf("id=%d %s has no future occurrence.", r.ID, r.Rule))
	}
	if err != nil {
		return err
	}
	lines := []string{fmt.Sprintf("⏭️ Next runs of id=%d %s:", r.ID, r.Rule)}
	for _, t := range times {
		lines = append(lines, "- "+formatTime(t))
	}
	if !r.Enabled {
		lines = append(lines, "(disabled; use /rem_on to resume)")
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) status(ctx context.Context, req *router.Request) error {
	list, err := b.reg.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	enabled := 0
	for _, r := range list {
		if r.Enabled {
			enabled++
		}
	}
	lines := []string{
		"📊 Status",
		"Now: " + formatTime(b.reg.Now()),
		fmt.Sprintf("Reminders: %d (%d enabled)", len(list), enabled),
		"Uptime: " + time.Since(b.started).Truncate(time.Second).String(),
	}
	if b.ticks != nil {
		s := b.ticks.Snapshot()
		state := "stopped"
		if s.Running {
			state = "running"
		}
		lines = append(lines, fmt.Sprintf("Scheduler: %s (%s), %d ticks", state, s.Timezone, s.Ticks))
		if !s.Last.Minute.IsZero() {
			lines = append(lines, fmt.Sprintf("Last tick: %s due=%d sent=%d failed=%d",
				s.Last.Minute.Format("15:04"), s.Last.Due, s.Last.Delivered, s.Last.Failed))
		}
		if !s.Next.IsZero() {
			lines = append(lines, "Next tick: "+s.Next.Format("15:04:05"))
		}
	}
	if b.queue != nil {
		q := b.queue.Stats()
		lines = append(lines, fmt.Sprintf("Queue: %d/%d sent=%d failed=%d dropped=%d deduped=%d",
			q.Queued, q.Capacity, q.Sent, q.Failed, q.Dropped, q.Deduped))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

// parseID reads a positive decimal id from the first argument.
func parseID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	for _, c := range args[0] {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	return t.Format("Mon 2006-01-02 15:04 MST")
}
