package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/tick"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const (
	owner  = 42
	chatID = 100
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeTicks struct{ snap tick.Snapshot }

func (f fakeTicks) Snapshot() tick.Snapshot { return f.snap }

type fakeQueue struct{ stats notifier.Stats }

func (f fakeQueue) Stats() notifier.Stats { return f.stats }

type harness struct {
	t   *testing.T
	r   *router.Router
	snd *fakeSender
	reg *reminder.Service
}

// Monday 2025-01-06 08:27:45 in UTC-5.
func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFake()
	clk.Set(time.Date(2025, 1, 6, 13, 27, 45, 0, time.UTC))
	reg, err := reminder.New(st, reminder.Config{Location: time.FixedZone("COT", -5*60*60)}, reminder.WithClock(clk))
	if err != nil {
		t.Fatalf("reminder.New error: %v", err)
	}
	snd := &fakeSender{}
	r := router.New(snd, logx.Nop(), []int64{owner})
	b := New(reg,
		fakeTicks{snap: tick.Snapshot{Enabled: true, Running: true, Timezone: "COT", Ticks: 5}},
		fakeQueue{stats: notifier.Stats{Enabled: true, Capacity: 512, Sent: 9}},
	)
	r.SetCommands(b.Commands())
	return &harness{t: t, r: r, snd: snd, reg: reg}
}

func (h *harness) send(from int64, text string) string {
	h.t.Helper()
	up := kit.Update{Message: &kit.Message{ChatID: chatID, FromID: from, Text: text}}
	if err := h.r.Dispatch(context.Background(), up); err != nil {
		h.t.Fatalf("Dispatch(%q) error: %v", text, err)
	}
	return h.snd.last()
}

func TestAddAndList(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	got := h.send(owner, "/rem_add WEEKDAY@23:00 Sleep well | Time for bed | really")
	if !strings.HasPrefix(got, "✅ Reminder created (id=1).") || !strings.Contains(got, "Next: Mon 2025-01-06 23:00") {
		t.Fatalf("add reply = %q", got)
	}
	h.send(owner, "/rem_add days@fri,mon@7:5 Gym | go")

	got = h.send(owner, "/rem_list")
	want := "📌 Your reminders:\n- id=1 [ON] Sleep well | WEEKDAY@23:00\n- id=2 [ON] Gym | DAYS@mon,fri@07:05"
	if got != want {
		t.Fatalf("list reply = %q, want %q", got, want)
	}

	r, err := h.reg.Get(context.Background(), owner, 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if r.Message != "Time for bed | really" || r.ChatID != chatID {
		t.Fatalf("stored reminder = %+v", r)
	}
}

func TestAddErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tests := []struct {
		text, want string
	}{
		{"/rem_add", usageAdd},
		{"/rem_add EVERYDAY@07:00 Gym", "Missing '|'"},
		{"/rem_add EVERYDAY@07:00 | msg", usageAdd},
		{"/rem_add EVERYDAY@07:00 Gym |   ", usageAdd},
		{"/rem_add EVERYDAY@25:00 Gym | go", `Invalid schedule: hour "25"`},
		{"/rem_add MONTHLY@07:00 Gym | go", "Invalid schedule: kind"},
	}
	for _, tt := range tests {
		if got := h.send(owner, tt.text); !strings.HasPrefix(got, tt.want) {
			t.Fatalf("%q reply = %q, want prefix %q", tt.text, got, tt.want)
		}
	}
	if got := h.send(owner, "/rem_list"); !strings.HasPrefix(got, "You have no reminders") {
		t.Fatalf("list after errors = %q", got)
	}
}

func TestToggleAndDelete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(owner, "/rem_add EVERYDAY@07:00 Gym | go")

	steps := []struct {
		text, want string
	}{
		{"/rem_off 1", "🛑 Disabled."},
		{"/rem_list", "- id=1 [OFF] Gym"},
		{"/rem_on 1", "✅ Enabled."},
		{"/rem_on 9", textNotFound},
		{"/rem_on x", usageToggle},
		{"/rem_off", usageToggle},
		{"/rem_del -1", usageDel},
		{"/rem_del 1", "🗑️ Deleted."},
		{"/rem_del 1", textNotFound},
	}
	for _, s := range steps {
		if got := h.send(owner, s.text); !strings.Contains(got, s.want) {
			t.Fatalf("%q reply = %q, want %q", s.text, got, s.want)
		}
	}
}

func TestOtherUsersCannotSeeOrChange(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(owner, "/rem_add EVERYDAY@07:00 Gym | go")

	if got := h.send(7, "/start"); got != textPrivate {
		t.Fatalf("stranger /start = %q", got)
	}
	before := h.snd.last()
	h.send(7, "/rem_del 1")
	if h.snd.last() != before {
		t.Fatalf("stranger got a reply to /rem_del: %q", h.snd.last())
	}
	if _, err := h.reg.Get(context.Background(), owner, 1); err != nil {
		t.Fatalf("reminder gone after stranger /rem_del: %v", err)
	}
}

func TestTestAndNext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if got := h.send(owner, "/rem_test"); got != "🧪 Test created (id=1) for 08:29." {
		t.Fatalf("test reply = %q", got)
	}
	got := h.send(owner, "/rem_next 1")
	if !strings.Contains(got, "ONCE@2025-01-06@08:29") || strings.Count(got, "\n- ") != 1 {
		t.Fatalf("next of one-shot = %q", got)
	}

	h.send(owner, "/rem_add WEEKEND@10:00 Brunch | eat")
	got = h.send(owner, "/rem_next 2 50")
	if strings.Count(got, "\n- ") != maxNextCount {
		t.Fatalf("next capped reply = %q", got)
	}
	got = h.send(owner, "/rem_next 2")
	if !strings.Contains(got, "- Sat 2025-01-11 10:00") || !strings.Contains(got, "- Sun 2025-01-12 10:00") || !strings.Contains(got, "- Sat 2025-01-18 10:00") {
		t.Fatalf("next reply = %q", got)
	}

	h.send(owner, "/rem_add ONCE@2024-12-31@09:00 Past | gone")
	if got := h.send(owner, "/rem_next 3"); !strings.Contains(got, "no future occurrence") {
		t.Fatalf("next of past one-shot = %q", got)
	}
	for _, text := range []string{"/rem_next", "/rem_next 2 0", "/rem_next 2 x"} {
		if got := h.send(owner, text); got != usageNext {
			t.Fatalf("%q reply = %q", text, got)
		}
	}
	if got := h.send(owner, "/rem_next 99"); got != textNotFound {
		t.Fatalf("next of missing = %q", got)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(owner, "/rem_add EVERYDAY@07:00 Gym | go")
	h.send(owner, "/rem_off 1")
	h.send(owner, "/rem_add EVERYDAY@08:00 Work | go")

	got := h.send(owner, "/status")
	for _, want := range []string{"Reminders: 2 (1 enabled)", "Scheduler: running (COT), 5 ticks", "Queue: 0/512 sent=9"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status = %q, missing %q", got, want)
		}
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args []string
		id   int64
		ok   bool
	}{
		{nil, 0, false},
		{[]string{"12"}, 12, true},
		{[]string{"0"}, 0, false},
		{[]string{"+3"}, 0, false},
		{[]string{"99999999999999999999"}, 0, false},
	}
	for _, tt := range tests {
		id, ok := parseID(tt.args)
		if id != tt.id || ok != tt.ok {
			t.Fatalf("parseID(%q) = %d, %v", tt.args, id, ok)
		}
	}
}
