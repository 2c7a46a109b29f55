package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule matches every parse failure returned by Parse and the rule constructors.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrNoFutureOccurrence is returned by Next for one-shot rules whose moment has passed.
	ErrNoFutureOccurrence = errors.New("no future occurrence")
)

// InvalidScheduleError names the offending field and value.
type InvalidScheduleError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid schedule: %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid schedule: %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

func invalid(field, value, reason string) error {
	return &InvalidScheduleError{Field: field, Value: value, Reason: reason}
}
