package schedule

import (
	"errors"
	"testing"
	"time"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestIsDue(t *testing.T) {
	t.Parallel()
	// 2025-01-06 is a Monday.
	tests := []struct {
		name string
		expr string
		now  time.Time
		want bool
	}{
		{name: "weekday monday", expr: "WEEKDAY@08:30", now: at(2025, 1, 6, 8, 30), want: true},
		{name: "weekday friday", expr: "WEEKDAY@08:30", now: at(2025, 1, 10, 8, 30), want: true},
		{name: "weekday saturday", expr: "WEEKDAY@08:30", now: at(2025, 1, 11, 8, 30), want: false},
		{name: "weekday wrong minute", expr: "WEEKDAY@08:30", now: at(2025, 1, 6, 8, 31), want: false},
		{name: "weekend sunday", expr: "WEEKEND@10:00", now: at(2025, 1, 12, 10, 0), want: true},
		{name: "weekend monday", expr: "WEEKEND@10:00", now: at(2025, 1, 6, 10, 0), want: false},
		{name: "days wednesday", expr: "DAYS@mon,wed,fri@09:00", now: at(2025, 1, 8, 9, 0), want: true},
		{name: "days tuesday", expr: "DAYS@mon,wed,fri@09:00", now: at(2025, 1, 7, 9, 0), want: false},
		{name: "everyday", expr: "EVERYDAY@07:00", now: at(2025, 3, 1, 7, 0), want: true},
		{name: "everyday other hour", expr: "EVERYDAY@07:00", now: at(2025, 3, 1, 19, 0), want: false},
		{name: "once exact", expr: "ONCE@2025-12-31@23:59", now: at(2025, 12, 31, 23, 59), want: true},
		{name: "once minute before", expr: "ONCE@2025-12-31@23:59", now: at(2025, 12, 31, 23, 58), want: false},
		{name: "once minute after", expr: "ONCE@2025-12-31@23:59", now: at(2026, 1, 1, 0, 0), want: false},
		{name: "once next year", expr: "ONCE@2025-12-31@23:59", now: at(2026, 12, 31, 23, 59), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := MustParse(tt.expr)
			if got := r.IsDue(tt.now); got != tt.want {
				t.Fatalf("%s IsDue(%s) = %v, want %v", tt.expr, tt.now, got, tt.want)
			}
		})
	}
}

func TestIsDueIgnoresSeconds(t *testing.T) {
	t.Parallel()
	r := MustParse("EVERYDAY@07:00")
	now := time.Date(2025, 1, 1, 7, 0, 59, 999_999_999, time.UTC)
	if !r.IsDue(now) {
		t.Fatal("expected due with trailing seconds")
	}
}

func TestIsDueUsesLocation(t *testing.T) {
	t.Parallel()
	bogota := time.FixedZone("COT", -5*60*60)
	r := MustParse("EVERYDAY@08:00")
	now := time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC)
	if r.IsDue(now) {
		t.Fatal("13:00 UTC should not be due for 08:00")
	}
	if !r.IsDue(now.In(bogota)) {
		t.Fatal("13:00 UTC is 08:00 in UTC-5 and should be due")
	}
}

func TestNext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{name: "strictly after", expr: "EVERYDAY@07:00", after: at(2025, 1, 1, 7, 0), want: at(2025, 1, 2, 7, 0)},
		{name: "same day", expr: "EVERYDAY@07:00", after: at(2025, 1, 1, 6, 59), want: at(2025, 1, 1, 7, 0)},
		{
			name: "seconds within due minute", expr: "EVERYDAY@07:00",
			after: time.Date(2025, 1, 1, 6, 59, 30, 0, time.UTC), want: at(2025, 1, 1, 7, 0),
		},
		{name: "weekday skips weekend", expr: "WEEKDAY@08:30", after: at(2025, 1, 10, 9, 0), want: at(2025, 1, 13, 8, 30)},
		{name: "weekend from monday", expr: "WEEKEND@10:00", after: at(2025, 1, 6, 0, 0), want: at(2025, 1, 11, 10, 0)},
		{name: "days wraps week", expr: "DAYS@mon@09:00", after: at(2025, 1, 6, 9, 0), want: at(2025, 1, 13, 9, 0)},
		{name: "days next member", expr: "DAYS@mon,wed,fri@09:00", after: at(2025, 1, 6, 9, 0), want: at(2025, 1, 8, 9, 0)},
		{name: "once future", expr: "ONCE@2025-12-31@23:59", after: at(2025, 6, 1, 0, 0), want: at(2025, 12, 31, 23, 59)},
		{name: "year rollover", expr: "EVERYDAY@00:00", after: at(2025, 12, 31, 23, 59), want: at(2026, 1, 1, 0, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := MustParse(tt.expr)
			got, err := r.Next(tt.after)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%s) = %s, want %s", tt.after, got, tt.want)
			}
			if !r.IsDue(got) {
				t.Fatalf("Next returned %s where rule is not due", got)
			}
		})
	}
}

func TestNextOncePast(t *testing.T) {
	t.Parallel()
	r := MustParse("ONCE@2025-12-31@23:59")
	for _, after := range []time.Time{at(2025, 12, 31, 23, 59), at(2026, 1, 1, 0, 0), at(2027, 1, 1, 0, 0)} {
		if _, err := r.Next(after); !errors.Is(err, ErrNoFutureOccurrence) {
			t.Fatalf("Next(%s) err = %v, want ErrNoFutureOccurrence", after, err)
		}
	}
}

func TestNextSkipsDSTGap(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2025-03-09 02:30 does not exist in New York.
	r := MustParse("EVERYDAY@02:30")
	got, err := r.Next(time.Date(2025, 3, 8, 12, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := time.Date(2025, 3, 10, 2, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Next = %s, want %s", got, want)
	}
}

func TestNextN(t *testing.T) {
	t.Parallel()
	r := MustParse("WEEKEND@10:00")
	got, err := r.NextN(at(2025, 1, 6, 0, 0), 3)
	if err != nil {
		t.Fatalf("NextN error: %v", err)
	}
	want := []time.Time{at(2025, 1, 11, 10, 0), at(2025, 1, 12, 10, 0), at(2025, 1, 18, 10, 0)}
	if len(got) != len(want) {
		t.Fatalf("NextN len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("NextN[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	once := MustParse("ONCE@2025-12-31@23:59")
	got, err = once.NextN(at(2025, 1, 1, 0, 0), 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("once NextN = %v, %v", got, err)
	}
	if _, err := once.NextN(at(2026, 1, 1, 0, 0), 5); !errors.Is(err, ErrNoFutureOccurrence) {
		t.Fatalf("once NextN past err = %v", err)
	}
}

func TestOnceAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 4, 13, 27, 45, 0, time.UTC)
	r := OnceAt(now.Add(2 * time.Minute))
	if r.String() != "ONCE@2025-05-04@13:29" {
		t.Fatalf("OnceAt = %q", r.String())
	}
	next, err := r.Next(now)
	if err != nil || !next.Equal(time.Date(2025, 5, 4, 13, 29, 0, 0, time.UTC)) {
		t.Fatalf("Next = %s, %v", next, err)
	}
}
