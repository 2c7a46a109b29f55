package schedule

import "time"

// Rule is a validated recurrence rule. The zero value is not a usable rule;
// build one with Parse or the kind constructors.
type Rule struct {
	kind Kind
	at   TimeOfDay
	days DaySet // KindDays only
	date Date   // KindOnce only
}

func Everyday(at TimeOfDay) (Rule, error) { return simple(KindEveryday, at) }

// Weekdays fires Monday through Friday.
func Weekdays(at TimeOfDay) (Rule, error) { return simple(KindWeekday, at) }

// Weekend fires Saturday and Sunday.
func Weekend(at TimeOfDay) (Rule, error) { return simple(KindWeekend, at) }

func OnDays(days DaySet, at TimeOfDay) (Rule, error) {
	if !at.valid() {
		return Rule{}, invalid("time", at.String(), "out of range")
	}
	if days.Len() == 0 {
		return Rule{}, invalid("days", "", "at least one day required")
	}
	return Rule{kind: KindDays, at: at, days: days}, nil
}

func Once(date Date, at TimeOfDay) (Rule, error) {
	if !at.valid() {
		return Rule{}, invalid("time", at.String(), "out of range")
	}
	if !date.valid() {
		return Rule{}, invalid("date", date.String(), "not a calendar date")
	}
	return Rule{kind: KindOnce, at: at, date: date}, nil
}

// OnceAt builds a one-shot rule for the minute of t in t's location.
func OnceAt(t time.Time) Rule {
	return Rule{kind: KindOnce, at: TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, date: DateOf(t)}
}

func simple(k Kind, at TimeOfDay) (Rule, error) {
	if !at.valid() {
		return Rule{}, invalid("time", at.String(), "out of range")
	}
	return Rule{kind: k, at: at}, nil
}

func (r Rule) Kind() Kind    { return r.kind }
func (r Rule) At() TimeOfDay { return r.at }
func (r Rule) Days() DaySet  { return r.days }
func (r Rule) Date() Date    { return r.date }
func (r Rule) IsZero() bool  { return r.kind == KindInvalid }
func (r Rule) OneShot() bool { return r.kind == KindOnce }

// String renders the canonical expression accepted by Parse.
func (r Rule) String() string {
	switch r.kind {
	case KindEveryday, KindWeekday, KindWeekend:
		return r.kind.String() + "@" + r.at.String()
	case KindDays:
		return r.kind.String() + "@" + r.days.String() + "@" + r.at.String()
	case KindOnce:
		return r.kind.String() + "@" + r.date.String() + "@" + r.at.String()
	default:
		return ""
	}
}
