// Package reminder is the registry facade over storage: it validates
// schedules on write, keeps parsed rules cached and records an audit trail.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmhodges/clock"

	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var (
	ErrEmptyName    = errors.New("reminder name required")
	ErrEmptyMessage = errors.New("reminder message required")
	ErrNotFound     = storage.ErrNotFound
)

// TestDelay is how far ahead CreateTest schedules its one-shot reminder.
const TestDelay = 2 * time.Minute

const defaultCacheSize = 256

// Reminder is a stored reminder with its rule already parsed.
type Reminder struct {
	ID          int64
	UserID      int64
	ChatID      int64
	Name        string
	Message     string
	Rule        schedule.Rule
	Enabled     bool
	CreatedAt   time.Time
	LastFiredAt time.Time
}

// NewReminder is the input to Create.
type NewReminder struct {
	UserID   int64
	ChatID   int64
	Name     string
	Message  string
	Schedule string
}

type Config struct {
	Location  *time.Location
	CacheSize int
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clk = c } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

type Service struct {
	store storage.Store
	clk   clock.Clock
	log   logx.Logger
	loc   atomic.Pointer[time.Location]
	rules *lru.Cache[string, schedule.Rule]
}

func New(store storage.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("reminder: store is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, schedule.Rule](size)
	if err != nil {
		return nil, err
	}
	s := &Service{store: store, clk: clock.New(), log: logx.Nop(), rules: cache}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.log = s.log.With(logx.String("comp", "reminder"))
	s.SetLocation(cfg.Location)
	return s, nil
}

// SetLocation changes the zone used for "now". A nil loc means UTC.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	s.loc.Store(loc)
}

func (s *Service) Location() *time.Location { return s.loc.Load() }

// Now is the clock's current time in the configured zone.
func (s *Service) Now() time.Time { return s.clk.Now().In(s.Location()) }

// ParseRule parses expr, serving repeats from the cache.
func (s *Service) ParseRule(expr string) (schedule.Rule, error) {
	key := strings.TrimSpace(expr)
	if r, ok := s.rules.Get(key); ok {
		return r, nil
	}
	r, err := schedule.Parse(key)
	if err != nil {
		return schedule.Rule{}, err
	}
	s.rules.Add(key, r)
	return r, nil
}

// Create validates and stores a new enabled reminder. The schedule is stored
// in canonical form.
func (s *Service) Create(ctx context.Context, in NewReminder) (Reminder, error) {
	name := strings.TrimSpace(in.Name)
	msg := strings.TrimSpace(in.Message)
	if name == "" {
		return Reminder{}, ErrEmptyName
	}
	if msg == "" {
		return Reminder{}, ErrEmptyMessage
	}
	rule, err := s.ParseRule(in.Schedule)
	if err != nil {
		return Reminder{}, err
	}
	rec := storage.ReminderRecord{
		UserID:    in.UserID,
		ChatID:    in.ChatID,
		Name:      name,
		Message:   msg,
		Schedule:  rule.String(),
		Enabled:   true,
		CreatedAt: s.Now(),
	}
	id, err := s.store.CreateReminder(ctx, rec)
	s.audit(ctx, in.UserID, in.ChatID, "reminder.create", id, rec.Schedule, err)
	if err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return Reminder{
		ID: id, UserID: rec.UserID, ChatID: rec.ChatID, Name: rec.Name, Message: rec.Message,
		Rule: rule, Enabled: true, CreatedAt: rec.CreatedAt,
	}, nil
}

// CreateTest stores a one-shot reminder TestDelay from now.
func (s *Service) CreateTest(ctx context.Context, userID, chatID int64) (Reminder, error) {
	rule := schedule.OnceAt(s.Now().Add(TestDelay))
	return s.Create(ctx, NewReminder{
		UserID:   userID,
		ChatID:   chatID,
		Name:     "Test",
		Message:  "Test reminder",
		Schedule: rule.String(),
	})
}

func (s *Service) Get(ctx context.Context, userID, id int64) (Reminder, error) {
	rec, err := s.store.GetReminder(ctx, userID, id)
	if err != nil {
		return Reminder{}, err
	}
	return s.fromRecord(rec)
}

// List returns every reminder of userID in id order. Records whose stored
// schedule no longer parses are skipped and logged.
func (s *Service) List(ctx context.Context, userID int64) ([]Reminder, error) {
	recs, err := s.store.ListReminders(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.fromRecords(recs), nil
}

// ListEnabled is the read contract of the tick driver: all enabled reminders
// across users, in id order.
func (s *Service) ListEnabled(ctx context.Context) ([]Reminder, error) {
	recs, err := s.store.ListEnabledReminders(ctx)
	if err != nil {
		return nil, err
	}
	return s.fromRecords(recs), nil
}

// SetEnabled toggles a reminder; ErrNotFound when it does not exist for userID.
func (s *Service) SetEnabled(ctx context.Context, userID, chatID, id int64, enabled bool) error {
	ok, err := s.store.SetReminderEnabled(ctx, userID, id, enabled)
	if err == nil && !ok {
		err = ErrNotFound
	}
	action := "reminder.disable"
	if enabled {
		action = "reminder.enable"
	}
	s.audit(ctx, userID, chatID, action, id, "", err)
	return err
}

func (s *Service) Delete(ctx context.Context, userID, chatID, id int64) error {
	ok, err := s.store.DeleteReminder(ctx, userID, id)
	if err == nil && !ok {
		err = ErrNotFound
	}
	s.audit(ctx, userID, chatID, "reminder.delete", id, "", err)
	return err
}

// MarkFired records a delivery; one-shot reminders are disabled at the same time.
func (s *Service) MarkFired(ctx context.Context, r Reminder, at time.Time) error {
	err := s.store.MarkReminderFired(ctx, r.ID, at, r.Rule.OneShot())
	s.audit(ctx, r.UserID, r.ChatID, "reminder.fire", r.ID, r.Rule.String(), err)
	return err
}

// Next returns up to n upcoming occurrences of r from now.
func (s *Service) Next(r Reminder, n int) ([]time.Time, error) {
	return r.Rule.NextN(s.Now(), n)
}

func (s *Service) fromRecords(recs []storage.ReminderRecord) []Reminder {
	out := make([]Reminder, 0, len(recs))
	for _, rec := range recs {
		r, err := s.fromRecord(rec)
		if err != nil {
			s.log.Warn("skipping reminder with bad schedule",
				logx.Int64("reminder_id", rec.ID), logx.String("schedule", rec.Schedule), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Service) fromRecord(rec storage.ReminderRecord) (Reminder, error) {
	rule, err := s.ParseRule(rec.Schedule)
	if err != nil {
		return Reminder{}, err
	}
	return Reminder{
		ID:          rec.ID,
		UserID:      rec.UserID,
		ChatID:      rec.ChatID,
		Name:        rec.Name,
		Message:     rec.Message,
		Rule:        rule,
		Enabled:     rec.Enabled,
		CreatedAt:   rec.CreatedAt,
		LastFiredAt: rec.LastFiredAt,
	}, nil
}

// audit is best effort; failures only reach the debug log.
func (s *Service) audit(ctx context.Context, actor, chatID int64, action string, id int64, target string, opErr error) {
	e := storage.AuditEntry{
		At:         s.clk.Now(),
		ActorID:    actor,
		ChatID:     chatID,
		Action:     action,
		ReminderID: id,
		Target:     target,
		OK:         opErr == nil,
	}
	if opErr != nil {
		e.Error = opErr.Error()
		if b, err := json.Marshal(map[string]string{"kind": fmt.Sprintf("%T", opErr)}); err == nil {
			e.MetaJSON = string(b)
		}
	}
	if err := s.store.AppendAudit(ctx, e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.log.Debug("audit append failed", logx.String("action", action), logx.Err(err))
	}
}
