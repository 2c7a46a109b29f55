// Package tick drives reminder delivery: once per minute it asks every
// enabled reminder's rule whether it is due and hands due ones to the notifier.
package tick

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const everyMinute = "* * * * *"

type Config struct {
	Enabled     bool
	Timezone    string
	TickTimeout time.Duration
}

// Registry is the read side the driver needs from the reminder registry.
type Registry interface {
	ListEnabled(ctx context.Context) ([]reminder.Reminder, error)
	MarkFired(ctx context.Context, r reminder.Reminder, at time.Time) error
}

// Sender accepts a message for delivery.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// KeyedSender is implemented by senders that deduplicate. The driver passes
// DeliveryKey so only a repeat of the same reminder and minute is merged.
type KeyedSender interface {
	SendKeyed(ctx context.Context, key string, chatID int64, text string) error
}

// Result summarises one Tick.
type Result struct {
	ID        string
	Minute    time.Time
	Skipped   bool
	Checked   int
	Due       int
	Delivered int
	Failed    int
	Took      time.Duration
	Err       error
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string
	Ticks    uint64
	Next     time.Time
	Last     Result
}

type Option func(*Driver)

func WithClock(c clock.Clock) Option  { return func(d *Driver) { d.clk = c } }
func WithLogger(l logx.Logger) Option { return func(d *Driver) { d.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(d *Driver) { d.bus = b } }
func WithMetrics(m *Metrics) Option   { return func(d *Driver) { d.metrics = m } }

// Driver owns its cron handle. Construct one per process and pass it to
// whatever needs to query or stop it.
type Driver struct {
	reg     Registry
	sender  Sender
	clk     clock.Clock
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics

	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	c       *cron.Cron
	baseCtx context.Context

	tickMu     sync.Mutex
	lastMinute time.Time
	last       Result
	ticks      atomic.Uint64
}

func New(cfg Config, reg Registry, sender Sender, opts ...Option) (*Driver, error) {
	if reg == nil || sender == nil {
		return nil, errors.New("tick: registry and sender are required")
	}
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	d := &Driver{reg: reg, sender: sender, clk: clock.New(), log: logx.Nop(), cfg: cfg, loc: loc}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	d.log = d.log.With(logx.String("comp", "tick"))
	return d, nil
}

// LoadLocation resolves a zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("tick: timezone %q: %w", name, err)
	}
	return loc, nil
}

func (d *Driver) Location() *time.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loc
}

// Start begins minute ticks. ctx bounds every tick; it is a no-op when
// disabled or already running.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseCtx = ctx
	if d.c != nil {
		return
	}
	if !d.cfg.Enabled {
		d.log.Info("tick driver disabled")
		return
	}
	d.startLocked()
}

func (d *Driver) startLocked() {
	cl := cronLogger{log: d.log}
	c := cron.New(
		cron.WithLocation(d.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(everyMinute, d.runScheduled); err != nil {
		// everyMinute is a constant; failure here is a programming error.
		panic(err)
	}
	c.Start()
	d.c = c
	d.log.Info("tick driver started", logx.String("tz", d.loc.String()))
}

// Stop halts ticks and waits for a running tick until ctx expires.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	d.log.Info("tick driver stopped")
}

// Apply takes a new config. A timezone change restarts the cron in the new
// zone; toggling Enabled starts or stops it once Start has been called.
func (d *Driver) Apply(cfg Config) error {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.c
	restart := old != nil && (!cfg.Enabled || loc.String() != d.loc.String())
	d.cfg = cfg
	d.loc = loc
	if restart {
		d.c = nil
	}
	if d.c == nil && d.baseCtx != nil && cfg.Enabled {
		d.startLocked()
	}
	d.mu.Unlock()

	if restart {
		old.Stop()
		d.log.Info("tick driver reconfigured", logx.String("tz", loc.String()), logx.Bool("enabled", cfg.Enabled))
	}
	return nil
}

func (d *Driver) runScheduled() {
	d.mu.Lock()
	base := d.baseCtx
	timeout := d.cfg.TickTimeout
	d.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()
	d.Tick(ctx, d.clk.Now())
}

// Tick evaluates every enabled reminder against the minute containing now,
// in the driver's zone. A minute at or before the last processed one is
// skipped, and so is a reminder whose last delivery already covers it.
// Delivery failures are logged and counted; they do not stop the pass.
func (d *Driver) Tick(ctx context.Context, now time.Time) Result {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	start := time.Now()
	local := now.In(d.Location())
	minute := local.Add(-time.Duration(local.Second())*time.Second - time.Duration(local.Nanosecond()))
	res := Result{ID: uuid.NewString(), Minute: minute}
	defer func() {
		res.Took = time.Since(start)
		d.metrics.observe(res)
	}()

	if !d.lastMinute.IsZero() && !minute.After(d.lastMinute) {
		res.Skipped = true
		return res
	}
	d.ticks.Add(1)

	// The minute counts as processed only once the list is read, so a retry
	// inside the same minute can still deliver.
	list, err := d.reg.ListEnabled(ctx)
	if err != nil {
		res.Err = err
		d.last = res
		d.log.Error("list enabled reminders failed", logx.Err(err))
		return res
	}
	d.lastMinute = minute

	for _, r := range list {
		res.Checked++
		if !r.Rule.IsDue(minute) {
			continue
		}
		if !r.LastFiredAt.IsZero() && !r.LastFiredAt.Before(minute) {
			continue
		}
		res.Due++
		if err := d.send(ctx, r, minute); err != nil {
			res.Failed++
			d.log.Warn("reminder delivery failed",
				logx.Int64("reminder_id", r.ID), logx.Int64("chat_id", r.ChatID), logx.Err(err))
			d.publish(eventbus.TypeReminderFailed, r, minute, err)
			continue
		}
		res.Delivered++
		if err := d.reg.MarkFired(ctx, r, minute); err != nil {
			d.log.Warn("mark fired failed", logx.Int64("reminder_id", r.ID), logx.Err(err))
		}
		d.log.Info("reminder fired",
			logx.Int64("reminder_id", r.ID), logx.String("schedule", r.Rule.String()), logx.Bool("one_shot", r.Rule.OneShot()))
		d.publish(eventbus.TypeReminderFired, r, minute, nil)
	}

	d.last = res
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeTick, Data: res})
	}
	return res
}

func (d *Driver) send(ctx context.Context, r reminder.Reminder, minute time.Time) error {
	text := FormatMessage(r)
	if ks, ok := d.sender.(KeyedSender); ok {
		return ks.SendKeyed(ctx, DeliveryKey(r, minute), r.ChatID, text)
	}
	return d.sender.Send(ctx, r.ChatID, text)
}

// DeliveryKey identifies one firing of one reminder.
func DeliveryKey(r reminder.Reminder, minute time.Time) string {
	return "reminder:" + strconv.FormatInt(r.ID, 10) + ":" + strconv.FormatInt(minute.Unix(), 10)
}

// FormatMessage renders the chat text for a due reminder.
func FormatMessage(r reminder.Reminder) string {
	return "⏰ " + r.Name + "\n" + r.Message
}

// FiredEvent is the Data of reminder.fired and reminder.failed events.
type FiredEvent struct {
	ReminderID int64     `json:"reminder_id"`
	ChatID     int64     `json:"chat_id"`
	Minute     time.Time `json:"minute"`
	Error      string    `json:"error,omitempty"`
}

func (d *Driver) publish(typ string, r reminder.Reminder, minute time.Time, err error) {
	if d.bus == nil {
		return
	}
	ev := FiredEvent{ReminderID: r.ID, ChatID: r.ChatID, Minute: minute}
	if err != nil {
		ev.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	snap := Snapshot{Enabled: d.cfg.Enabled, Running: d.c != nil, Timezone: d.loc.String()}
	if d.c != nil {
		if entries := d.c.Entries(); len(entries) > 0 {
			snap.Next = entries[0].Next
		}
	}
	d.mu.Unlock()

	d.tickMu.Lock()
	snap.Last = d.last
	d.tickMu.Unlock()
	snap.Ticks = d.ticks.Load()
	return snap
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
