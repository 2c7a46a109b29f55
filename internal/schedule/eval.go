package schedule

import (
	"fmt"
	"time"
)

// searchDays bounds the forward scan in Next. Three weeks covers a weekly rule
// whose wall time falls into a DST gap on one occurrence.
const searchDays = 21

// IsDue reports whether the rule fires during the minute containing now,
// evaluated in now's location. Seconds and below are ignored.
//
// A minute the caller never evaluates is simply missed; there is no catch-up.
func (r Rule) IsDue(now time.Time) bool {
	if now.Hour() != r.at.Hour || now.Minute() != r.at.Minute {
		return false
	}
	return r.firesOn(now)
}

// firesOn reports whether the rule's day predicate holds for the date of t.
func (r Rule) firesOn(t time.Time) bool {
	switch r.kind {
	case KindEveryday:
		return true
	case KindWeekday:
		wd := t.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case KindWeekend:
		wd := t.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case KindDays:
		return r.days.Has(t.Weekday())
	case KindOnce:
		return DateOf(t) == r.date
	default:
		panic(fmt.Sprintf("schedule: rule with unhandled kind %v", r.kind))
	}
}

// Next returns the earliest minute strictly after the minute of after at which
// the rule is due, in after's location. One-shot rules whose moment is not in
// the future return ErrNoFutureOccurrence. Wall times skipped by a DST change
// are not occurrences.
func (r Rule) Next(after time.Time) (time.Time, error) {
	loc := after.Location()
	floor := after.Add(-time.Duration(after.Second())*time.Second - time.Duration(after.Nanosecond()))

	if r.kind == KindOnce {
		c := time.Date(r.date.Year, r.date.Month, r.date.Day, r.at.Hour, r.at.Minute, 0, 0, loc)
		if !r.exists(c) || !c.After(floor) {
			return time.Time{}, ErrNoFutureOccurrence
		}
		return c, nil
	}
	if r.kind == KindInvalid {
		panic("schedule: Next on zero Rule")
	}

	y, m, d := after.Date()
	for i := 0; i <= searchDays; i++ {
		c := time.Date(y, m, d+i, r.at.Hour, r.at.Minute, 0, 0, loc)
		if !r.exists(c) || !c.After(floor) {
			continue
		}
		if r.firesOn(c) {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("schedule: no occurrence of %s within %d days of %s", r, searchDays, after)
}

// NextN returns up to n successive occurrences after after. It fails only when
// there is no first occurrence.
func (r Rule) NextN(after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, n)
	cur := after
	for len(out) < n {
		next, err := r.Next(cur)
		if err != nil {
			if len(out) > 0 {
				break
			}
			return nil, err
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// exists is false when time.Date normalised c out of a DST gap.
func (r Rule) exists(c time.Time) bool {
	return c.Hour() == r.at.Hour && c.Minute() == r.at.Minute
}
