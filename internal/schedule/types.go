package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the recurrence family of a Rule.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindEveryday
	KindWeekday
	KindWeekend
	KindDays
	KindOnce
)

func (k Kind) String() string {
	switch k {
	case KindEveryday:
		return "EVERYDAY"
	case KindWeekday:
		return "WEEKDAY"
	case KindWeekend:
		return "WEEKEND"
	case KindDays:
		return "DAYS"
	case KindOnce:
		return "ONCE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// fields is the number of '@'-separated fields an expression of this kind carries.
func (k Kind) fields() int {
	switch k {
	case KindDays, KindOnce:
		return 3
	default:
		return 2
	}
}

func parseKind(s string) (Kind, bool) {
	switch strings.ToUpper(s) {
	case "EVERYDAY":
		return KindEveryday, true
	case "WEEKDAY":
		return KindWeekday, true
	case "WEEKEND":
		return KindWeekend, true
	case "DAYS":
		return KindDays, true
	case "ONCE":
		return KindOnce, true
	}
	return KindInvalid, false
}

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates hour 0..23 and minute 0..59.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, invalid("hour", fmt.Sprint(hour), "must be 0..23")
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, invalid("minute", fmt.Sprint(minute), "must be 0..59")
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	// time.Date normalises overflow, so a real date survives the round trip.
	n := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	return n.Year() == d.Year && n.Month() == d.Month && n.Day() == d.Day
}

func (d Date) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day) }

// DaySet is a set of weekdays, one bit per time.Weekday.
type DaySet uint8

// weekOrder is the canonical serialisation order, Monday first.
var weekOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

var dayTags = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// NewDaySet builds a set from the given weekdays; duplicates collapse.
func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s DaySet) With(d time.Weekday) DaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s DaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

func (s DaySet) Len() int {
	n := 0
	for _, d := range weekOrder {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days lists the members Monday first.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for _, d := range weekOrder {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DaySet) String() string {
	tags := make([]string, 0, 7)
	for _, d := range s.Days() {
		tags = append(tags, dayTag(d))
	}
	return strings.Join(tags, ",")
}

func dayTag(d time.Weekday) string {
	return strings.ToLower(d.String()[:3])
}
