package tick

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// Monday 2025-01-06 13:27:45 UTC.
var t0 = time.Date(2025, 1, 6, 13, 27, 45, 0, time.UTC)

func newRegistry(t *testing.T) *reminder.Service {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFake()
	clk.Set(t0)
	svc, err := reminder.New(st, reminder.Config{Location: time.UTC}, reminder.WithClock(clk))
	if err != nil {
		t.Fatalf("reminder.New error: %v", err)
	}
	return svc
}

func mustCreate(t *testing.T, reg *reminder.Service, name, expr string) reminder.Reminder {
	t.Helper()
	r, err := reg.Create(context.Background(), reminder.NewReminder{UserID: 1, ChatID: 10, Name: name, Message: "msg " + name, Schedule: expr})
	if err != nil {
		t.Fatalf("Create(%q) error: %v", expr, err)
	}
	return r
}

func TestTickDeliversDueReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	daily := mustCreate(t, reg, "daily", "EVERYDAY@13:28")
	mustCreate(t, reg, "weekend", "WEEKEND@13:28")
	once := mustCreate(t, reg, "once", "ONCE@2025-01-06@13:28")
	off := mustCreate(t, reg, "off", "EVERYDAY@13:28")
	if err := reg.SetEnabled(ctx, 1, 10, off.ID, false); err != nil {
		t.Fatalf("SetEnabled error: %v", err)
	}

	snd := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	d, err := New(Config{}, reg, snd, WithBus(bus))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res := d.Tick(ctx, t0.Add(20*time.Second))
	if res.Err != nil || res.Skipped {
		t.Fatalf("Tick = %+v", res)
	}
	if res.Checked != 3 || res.Due != 2 || res.Delivered != 2 || res.Failed != 0 {
		t.Fatalf("Tick counts = %+v", res)
	}
	if !res.Minute.Equal(time.Date(2025, 1, 6, 13, 28, 0, 0, time.UTC)) {
		t.Fatalf("Minute = %s", res.Minute)
	}
	if snd.count() != 2 || snd.sent[0].chatID != 10 || snd.sent[0].text != FormatMessage(daily) {
		t.Fatalf("sent = %+v", snd.sent)
	}

	gotOnce, _ := reg.Get(ctx, 1, once.ID)
	if gotOnce.Enabled {
		t.Fatal("one-shot reminder still enabled after delivery")
	}
	gotDaily, _ := reg.Get(ctx, 1, daily.ID)
	if !gotDaily.Enabled || !gotDaily.LastFiredAt.Equal(res.Minute) {
		t.Fatalf("daily after tick = %+v", gotDaily)
	}

	var fired int
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.TypeReminderFired {
			fired++
		}
	}
	if fired != 2 {
		t.Fatalf("fired events = %d, want 2", fired)
	}
}

func TestTickSameMinuteIsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	mustCreate(t, reg, "daily", "EVERYDAY@13:28")
	snd := &fakeSender{}
	d, err := New(Config{}, reg, snd)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	d.Tick(ctx, t0.Add(20*time.Second))
	if res := d.Tick(ctx, t0.Add(50*time.Second)); !res.Skipped {
		t.Fatalf("second tick in the same minute = %+v", res)
	}
	if res := d.Tick(ctx, t0); !res.Skipped {
		t.Fatalf("tick for an earlier minute = %+v", res)
	}
	if res := d.Tick(ctx, t0.Add(80*time.Second)); res.Skipped || res.Due != 0 {
		t.Fatalf("tick at 13:29 = %+v", res)
	}
	if snd.count() != 1 {
		t.Fatalf("sent %d messages, want 1", snd.count())
	}
}

func TestTickDoesNotRefireAfterRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	mustCreate(t, reg, "daily", "EVERYDAY@13:28")
	snd := &fakeSender{}

	first, _ := New(Config{}, reg, snd)
	first.Tick(ctx, t0.Add(20*time.Second))

	second, _ := New(Config{}, reg, snd)
	res := second.Tick(ctx, t0.Add(40*time.Second))
	if res.Skipped || res.Due != 0 {
		t.Fatalf("tick after restart = %+v", res)
	}
	if snd.count() != 1 {
		t.Fatalf("sent %d messages, want 1", snd.count())
	}
}

func TestTickFailureLeavesReminderArmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	once := mustCreate(t, reg, "once", "ONCE@2025-01-06@13:28")
	mustCreate(t, reg, "daily", "EVERYDAY@13:28")
	snd := &fakeSender{err: errors.New("queue full")}
	metrics := MustNewMetrics(prometheus.NewRegistry())

	d, _ := New(Config{}, reg, snd, WithMetrics(metrics))
	res := d.Tick(ctx, t0.Add(20*time.Second))
	if res.Due != 2 || res.Failed != 2 || res.Delivered != 0 {
		t.Fatalf("Tick = %+v", res)
	}
	got, _ := reg.Get(ctx, 1, once.ID)
	if !got.Enabled || !got.LastFiredAt.IsZero() {
		t.Fatalf("one-shot after failed delivery = %+v", got)
	}
	if v := testutil.ToFloat64(metrics.failed); v != 2 {
		t.Fatalf("deliveries_failed_total = %v", v)
	}
	if v := testutil.ToFloat64(metrics.ticks.WithLabelValues("ok")); v != 1 {
		t.Fatalf("tick_total{ok} = %v", v)
	}
}

func TestTickUsesDriverZone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	mustCreate(t, reg, "local", "EVERYDAY@08:28")
	snd := &fakeSender{}

	d, err := New(Config{Timezone: "UTC"}, reg, snd)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if res := d.Tick(ctx, t0.Add(20*time.Second)); res.Due != 0 {
		t.Fatalf("UTC tick = %+v", res)
	}

	d.mu.Lock()
	d.loc = time.FixedZone("COT", -5*60*60)
	d.mu.Unlock()
	if res := d.Tick(ctx, t0.Add(80*time.Second)); res.Due != 0 {
		t.Fatalf("08:29 COT tick = %+v", res)
	}

	d2, _ := New(Config{}, reg, snd)
	d2.loc = time.FixedZone("COT", -5*60*60)
	if res := d2.Tick(ctx, t0.Add(20*time.Second)); res.Due != 1 {
		t.Fatalf("08:28 COT tick = %+v", res)
	}
}

func TestMetricsReuseOnDoubleRegister(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := MustNewMetrics(reg)
	b := MustNewMetrics(reg)
	a.due.Add(3)
	if v := testutil.ToFloat64(b.due); v != 3 {
		t.Fatalf("second Metrics did not reuse collectors: %v", v)
	}
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()
	d, err := New(Config{Enabled: true}, newRegistry(t), &fakeSender{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	snap := d.Snapshot()
	if !snap.Running || snap.Timezone != "UTC" {
		t.Fatalf("Snapshot after Start = %+v", snap)
	}

	if err := d.Apply(Config{Enabled: true, Timezone: "Bogus/Zone"}); err == nil {
		t.Fatal("Apply accepted an unknown zone")
	}
	if err := d.Apply(Config{Enabled: false}); err != nil {
		t.Fatalf("Apply(disabled) error: %v", err)
	}
	if d.Snapshot().Running {
		t.Fatal("driver still running after disable")
	}
	if err := d.Apply(Config{Enabled: true}); err != nil {
		t.Fatalf("Apply(enabled) error: %v", err)
	}
	if !d.Snapshot().Running {
		t.Fatal("driver not restarted after enable")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	d.Stop(stopCtx)
	if d.Snapshot().Running {
		t.Fatal("driver running after Stop")
	}
}

func TestDisabledStartIsNoop(t *testing.T) {
	t.Parallel()
	d, _ := New(Config{}, newRegistry(t), &fakeSender{})
	d.Start(context.Background())
	if d.Snapshot().Running {
		t.Fatal("disabled driver started")
	}
	d.Stop(context.Background())
}

type chatRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (c *chatRecorder) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.texts)}, nil
}

func (c *chatRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func TestTickSameTextRemindersBothReachChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRegistry(t)
	first := mustCreate(t, reg, "Pill", "EVERYDAY@13:28")
	mustCreate(t, reg, "Pill", "DAYS@mon@13:28")

	chat := &chatRecorder{}
	n := notifier.New(notifier.Config{
		Enabled:     true,
		Workers:     1,
		QueueSize:   8,
		RatePerSec:  100,
		DedupWindow: time.Minute,
	}, chat, logx.Nop(), nil, nil)
	n.Start(ctx)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n.Stop(sctx)
	})

	d, err := New(Config{}, reg, n)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	res := d.Tick(ctx, t0.Add(20*time.Second))
	if res.Due != 2 || res.Delivered != 2 {
		t.Fatalf("Tick counts = %+v", res)
	}

	deadline := time.Now().Add(2 * time.Second)
	for chat.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := chat.count(); got != 2 {
		t.Fatalf("chat messages = %d, want 2", got)
	}
	if st := n.Stats(); st.Deduped != 0 {
		t.Fatalf("Deduped = %d, want 0", st.Deduped)
	}

	// A repeat of the same reminder and minute is still merged.
	if err := n.SendKeyed(ctx, DeliveryKey(first, res.Minute), first.ChatID, FormatMessage(first)); err != nil {
		t.Fatalf("SendKeyed error: %v", err)
	}
	if st := n.Stats(); st.Deduped != 1 {
		t.Fatalf("Deduped = %d, want 1", st.Deduped)
	}
}

type flakyRegistry struct {
	*reminder.Service
	mu    sync.Mutex
	fails int
}

func (f *flakyRegistry) ListEnabled(ctx context.Context) ([]reminder.Reminder, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.Service.ListEnabled(ctx)
}

func TestTickRetriesMinuteAfterListError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newRegistry(t)
	mustCreate(t, svc, "daily", "EVERYDAY@13:28")
	reg := &flakyRegistry{Service: svc, fails: 1}

	snd := &fakeSender{}
	d, err := New(Config{}, reg, snd)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if res := d.Tick(ctx, t0.Add(20*time.Second)); res.Err == nil {
		t.Fatalf("first Tick = %+v, want error", res)
	}
	res := d.Tick(ctx, t0.Add(40*time.Second))
	if res.Skipped || res.Err != nil || res.Delivered != 1 {
		t.Fatalf("retry Tick = %+v", res)
	}
	if snd.count() != 1 {
		t.Fatalf("sent = %d, want 1", snd.count())
	}
	if res := d.Tick(ctx, t0.Add(50*time.Second)); !res.Skipped {
		t.Fatalf("third Tick = %+v, want skipped", res)
	}
}
