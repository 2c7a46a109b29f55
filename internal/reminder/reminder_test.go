package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, clock.FakeClock) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFake()
	clk.Set(time.Date(2025, 1, 6, 13, 27, 45, 0, time.UTC)) // 08:27:45 in UTC-5
	svc, err := New(st, Config{Location: time.FixedZone("COT", -5*60*60), CacheSize: 4}, WithClock(clk))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return svc, clk
}

func TestCreateNormalizesSchedule(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, NewReminder{UserID: 1, ChatID: 10, Name: " Gym ", Message: " go ", Schedule: "days@fri,mon@7:0"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if r.Name != "Gym" || r.Message != "go" || !r.Enabled {
		t.Fatalf("Create = %+v", r)
	}
	got, err := svc.Get(ctx, 1, r.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Rule.String() != "DAYS@mon,fri@07:00" {
		t.Fatalf("stored schedule = %q", got.Rule.String())
	}
}

func TestCreateRejectsInput(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, NewReminder{UserID: 1, Message: "m", Schedule: "EVERYDAY@07:00"}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("empty name err = %v", err)
	}
	if _, err := svc.Create(ctx, NewReminder{UserID: 1, Name: "n", Schedule: "EVERYDAY@07:00"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message err = %v", err)
	}
	_, err := svc.Create(ctx, NewReminder{UserID: 1, Name: "n", Message: "m", Schedule: "DAYS@foo@09:00"})
	if !errors.Is(err, schedule.ErrInvalidSchedule) {
		t.Fatalf("bad schedule err = %v", err)
	}
	list, _ := svc.List(ctx, 1)
	if len(list) != 0 {
		t.Fatalf("rejected input was stored: %+v", list)
	}
}

func TestCreateTestSchedulesTwoMinutesAhead(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	r, err := svc.CreateTest(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("CreateTest error: %v", err)
	}
	if r.Rule.String() != "ONCE@2025-01-06@08:29" {
		t.Fatalf("test rule = %q", r.Rule.String())
	}
	next, err := svc.Next(r, 3)
	if err != nil || len(next) != 1 {
		t.Fatalf("Next = %v, %v", next, err)
	}
}

func TestToggleDeleteAndListEnabled(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, NewReminder{UserID: 1, ChatID: 10, Name: "a", Message: "a", Schedule: "EVERYDAY@07:00"})
	b, _ := svc.Create(ctx, NewReminder{UserID: 2, ChatID: 20, Name: "b", Message: "b", Schedule: "WEEKEND@10:00"})

	if err := svc.SetEnabled(ctx, 1, 10, a.ID, false); err != nil {
		t.Fatalf("SetEnabled error: %v", err)
	}
	if err := svc.SetEnabled(ctx, 1, 10, b.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetEnabled foreign err = %v", err)
	}
	enabled, err := svc.ListEnabled(ctx)
	if err != nil || len(enabled) != 1 || enabled[0].ID != b.ID {
		t.Fatalf("ListEnabled = %+v, %v", enabled, err)
	}
	if err := svc.Delete(ctx, 2, 20, b.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := svc.Delete(ctx, 2, 20, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestMarkFiredDisablesOneShot(t *testing.T) {
	t.Parallel()
	svc, clk := newTestService(t)
	ctx := context.Background()

	once, _ := svc.CreateTest(ctx, 1, 10)
	daily, _ := svc.Create(ctx, NewReminder{UserID: 1, ChatID: 10, Name: "d", Message: "d", Schedule: "EVERYDAY@08:29"})
	clk.Add(2 * time.Minute)

	for _, r := range []Reminder{once, daily} {
		if err := svc.MarkFired(ctx, r, svc.Now()); err != nil {
			t.Fatalf("MarkFired(%d) error: %v", r.ID, err)
		}
	}
	gotOnce, _ := svc.Get(ctx, 1, once.ID)
	gotDaily, _ := svc.Get(ctx, 1, daily.ID)
	if gotOnce.Enabled {
		t.Fatal("one-shot reminder still enabled after firing")
	}
	if !gotDaily.Enabled {
		t.Fatal("daily reminder disabled after firing")
	}
	if !gotDaily.LastFiredAt.Equal(svc.Now()) {
		t.Fatalf("LastFiredAt = %s, want %s", gotDaily.LastFiredAt, svc.Now())
	}
}

func TestParseRuleCaches(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	if _, err := svc.ParseRule(" EVERYDAY@07:00 "); err != nil {
		t.Fatalf("ParseRule error: %v", err)
	}
	if !svc.rules.Contains("EVERYDAY@07:00") {
		t.Fatal("parsed rule not cached")
	}
	if _, err := svc.ParseRule("bogus"); err == nil {
		t.Fatal("expected error")
	}
	if svc.rules.Contains("bogus") {
		t.Fatal("failed parse was cached")
	}
}
