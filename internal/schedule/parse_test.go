package schedule

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		kind  Kind
		at    TimeOfDay
		days  DaySet
		date  Date
		canon string
	}{
		{name: "weekday", raw: "WEEKDAY@08:30", kind: KindWeekday, at: TimeOfDay{8, 30}, canon: "WEEKDAY@08:30"},
		{name: "weekend lower", raw: "weekend@10:00", kind: KindWeekend, at: TimeOfDay{10, 0}, canon: "WEEKEND@10:00"},
		{name: "everyday unpadded", raw: " Everyday@7:5 ", kind: KindEveryday, at: TimeOfDay{7, 5}, canon: "EVERYDAY@07:05"},
		{
			name: "days", raw: "DAYS@fri,mon,WED@09:00", kind: KindDays, at: TimeOfDay{9, 0},
			days: NewDaySet(time.Monday, time.Wednesday, time.Friday), canon: "DAYS@mon,wed,fri@09:00",
		},
		{
			name: "days spaced", raw: "days @ sun , sat @ 23:59", kind: KindDays, at: TimeOfDay{23, 59},
			days: NewDaySet(time.Saturday, time.Sunday), canon: "DAYS@sat,sun@23:59",
		},
		{
			name: "once", raw: "ONCE@2025-12-31@23:59", kind: KindOnce, at: TimeOfDay{23, 59},
			date: Date{2025, time.December, 31}, canon: "ONCE@2025-12-31@23:59",
		},
		{
			name: "once leap day", raw: "once@2028-02-29@0:00", kind: KindOnce, at: TimeOfDay{0, 0},
			date: Date{2028, time.February, 29}, canon: "ONCE@2028-02-29@00:00",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if r.Kind() != tt.kind {
				t.Fatalf("Kind = %v, want %v", r.Kind(), tt.kind)
			}
			if r.At() != tt.at {
				t.Fatalf("At = %v, want %v", r.At(), tt.at)
			}
			if r.Days() != tt.days {
				t.Fatalf("Days = %v, want %v", r.Days(), tt.days)
			}
			if r.Date() != tt.date {
				t.Fatalf("Date = %v, want %v", r.Date(), tt.date)
			}
			if got := r.String(); got != tt.canon {
				t.Fatalf("String = %q, want %q", got, tt.canon)
			}
			again, err := Parse(r.String())
			if err != nil || again != r {
				t.Fatalf("reparse of %q = %+v, %v; want %+v", r.String(), again, err, r)
			}
		})
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	t.Parallel()
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			for _, raw := range []string{fmt.Sprintf("EVERYDAY@%02d:%02d", h, m), fmt.Sprintf("EVERYDAY@%d:%d", h, m)} {
				r, err := Parse(raw)
				if err != nil {
					t.Fatalf("Parse(%q) error: %v", raw, err)
				}
				if r.At().Hour != h || r.At().Minute != m {
					t.Fatalf("Parse(%q) = %v", raw, r.At())
				}
				if want := fmt.Sprintf("EVERYDAY@%02d:%02d", h, m); r.String() != want {
					t.Fatalf("String = %q, want %q", r.String(), want)
				}
			}
		}
	}
}

func TestParseDaysDeduplicates(t *testing.T) {
	t.Parallel()
	r, err := Parse("DAYS@mon,mon@09:00")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if n := r.Days().Len(); n != 1 {
		t.Fatalf("Days().Len() = %d, want 1", n)
	}
	if got := r.Days().Days(); len(got) != 1 || got[0] != time.Monday {
		t.Fatalf("Days() = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		field string
	}{
		{raw: "", field: "expression"},
		{raw: "   ", field: "expression"},
		{raw: "HOURLY@08:00", field: "kind"},
		{raw: "WEEKDAY", field: "fields"},
		{raw: "WEEKDAY@08:30@", field: "fields"},
		{raw: "DAYS@09:00", field: "fields"},
		{raw: "ONCE@09:00", field: "fields"},
		{raw: "EVERYDAY@0830", field: "time"},
		{raw: "EVERYDAY@24:00", field: "hour"},
		{raw: "EVERYDAY@08:60", field: "minute"},
		{raw: "EVERYDAY@008:00", field: "hour"},
		{raw: "EVERYDAY@-1:00", field: "hour"},
		{raw: "EVERYDAY@08:", field: "minute"},
		{raw: "DAYS@foo@09:00", field: "days"},
		{raw: "DAYS@mon,,tue@09:00", field: "days"},
		{raw: "DAYS@@09:00", field: "days"},
		{raw: "ONCE@2025-02-30@10:00", field: "date"},
		{raw: "ONCE@2025-04-31@10:00", field: "date"},
		{raw: "ONCE@2025-13-01@10:00", field: "date"},
		{raw: "ONCE@25-12-31@10:00", field: "date"},
		{raw: "ONCE@2025-12-31@25:00", field: "hour"},
		{raw: "DAY\u017f@mon@09:00", field: "expression"},
		{raw: "EVERYDAY\u00a0@09:00", field: "expression"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.raw)
			}
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("Parse(%q) error %v does not match ErrInvalidSchedule", tt.raw, err)
			}
			var ie *InvalidScheduleError
			if !errors.As(err, &ie) {
				t.Fatalf("Parse(%q) error %T is not *InvalidScheduleError", tt.raw, err)
			}
			if ie.Field != tt.field {
				t.Fatalf("Parse(%q) field = %q, want %q (%v)", tt.raw, ie.Field, tt.field, err)
			}
		})
	}
}

func TestConstructorsValidate(t *testing.T) {
	t.Parallel()
	if _, err := Everyday(TimeOfDay{Hour: 24}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Everyday(24:00) err = %v", err)
	}
	if _, err := OnDays(0, TimeOfDay{Hour: 9}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("OnDays(empty) err = %v", err)
	}
	if _, err := Once(Date{2023, time.February, 29}, TimeOfDay{}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Once(2023-02-29) err = %v", err)
	}
	r, err := OnDays(NewDaySet(time.Sunday, time.Sunday), TimeOfDay{Hour: 6, Minute: 15})
	if err != nil {
		t.Fatalf("OnDays error: %v", err)
	}
	if r.String() != "DAYS@sun@06:15" {
		t.Fatalf("String = %q", r.String())
	}
	if !(Rule{}).IsZero() || r.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}
