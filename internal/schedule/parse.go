package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Parse turns an expression such as "WEEKDAY@08:30", "DAYS@mon,wed,fri@09:00"
// or "ONCE@2025-12-31@23:59" into a Rule. Kind and day tags are case-insensitive;
// whitespace around the expression and around each field is ignored.
func Parse(expr string) (Rule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return Rule{}, invalid("expression", expr, "empty")
	}
	if !isASCII(s) {
		return Rule{}, invalid("expression", expr, "must be ASCII")
	}
	parts := strings.Split(s, "@")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	kind, ok := parseKind(parts[0])
	if !ok {
		return Rule{}, invalid("kind", parts[0], "want WEEKDAY, WEEKEND, DAYS, ONCE or EVERYDAY")
	}
	if want := kind.fields(); len(parts) != want {
		return Rule{}, invalid("fields", s, fmt.Sprintf("%s takes %d fields, got %d", kind, want, len(parts)))
	}

	at, err := ParseTimeOfDay(parts[len(parts)-1])
	if err != nil {
		return Rule{}, err
	}

	switch kind {
	case KindEveryday, KindWeekday, KindWeekend:
		return simple(kind, at)
	case KindDays:
		days, err := ParseDays(parts[1])
		if err != nil {
			return Rule{}, err
		}
		return OnDays(days, at)
	case KindOnce:
		date, err := ParseDate(parts[1])
		if err != nil {
			return Rule{}, err
		}
		return Once(date, at)
	default:
		panic(fmt.Sprintf("schedule: unhandled kind %v", kind))
	}
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) Rule {
	r, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseTimeOfDay accepts "HH:MM" with one or two digits per component.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, invalid("time", s, "want HH:MM")
	}
	h, ok := smallUint(hh)
	if !ok {
		return TimeOfDay{}, invalid("hour", hh, "want 1-2 digits")
	}
	m, ok := smallUint(mm)
	if !ok {
		return TimeOfDay{}, invalid("minute", mm, "want 1-2 digits")
	}
	return NewTimeOfDay(h, m)
}

// ParseDays reads a comma-separated list of three-letter day tags.
func ParseDays(s string) (DaySet, error) {
	if strings.TrimSpace(s) == "" {
		return 0, invalid("days", s, "at least one day required")
	}
	if !isASCII(s) {
		return 0, invalid("days", s, "must be ASCII")
	}
	var set DaySet
	for _, tok := range strings.Split(s, ",") {
		tag := strings.ToLower(strings.TrimSpace(tok))
		d, ok := dayTags[tag]
		if !ok {
			return 0, invalid("days", tok, "want mon, tue, wed, thu, fri, sat or sun")
		}
		set = set.With(d)
	}
	return set, nil
}

// ParseDate reads YYYY-MM-DD and rejects dates that do not exist.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, invalid("date", s, "want a real YYYY-MM-DD date")
	}
	return DateOf(t), nil
}

// isASCII guards the case folding below: strings.ToUpper maps some non-ASCII
// runes onto ASCII letters (U+017F to 'S').
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func smallUint(s string) (int, bool) {
	if len(s) < 1 || len(s) > 2 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
