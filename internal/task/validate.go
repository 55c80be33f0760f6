package task

import (
	"fmt"
	"strings"
)

// Normalize validates an intent and returns a cleaned copy.
//
// Checks run in a fixed order and the first failure wins: name, frequency,
// interval, check times. The name is trimmed, and an interval on anything but
// every_n_days is dropped.
func Normalize(in Intent) (Intent, error) {
	out := Intent{
		TaskName:  strings.TrimSpace(in.TaskName),
		Frequency: Frequency(strings.TrimSpace(string(in.Frequency))),
	}

	if out.TaskName == "" {
		return Intent{}, invalid(ErrEmptyTaskName, "")
	}
	if !out.Frequency.Valid() {
		return Intent{}, invalid(ErrInvalidFrequency, fmt.Sprintf("%q", in.Frequency))
	}
	if out.Frequency == EveryNDays {
		if in.Interval == nil {
			return Intent{}, invalid(ErrMissingOrInvalidInterval, "interval is required for every_n_days")
		}
		if *in.Interval < 1 {
			return Intent{}, invalid(ErrMissingOrInvalidInterval, fmt.Sprintf("interval %d < 1", *in.Interval))
		}
		n := *in.Interval
		out.Interval = &n
	}

	if len(in.CheckTimes) == 0 {
		return Intent{}, invalid(ErrInvalidCheckTimes, "at least one check time is required")
	}
	seen := make(map[CheckTime]bool, len(in.CheckTimes))
	out.CheckTimes = make([]CheckTime, 0, len(in.CheckTimes))
	for _, c := range in.CheckTimes {
		if !c.Valid() {
			return Intent{}, invalid(ErrInvalidCheckTimes, fmt.Sprintf("unknown check time %q", c))
		}
		if seen[c] {
			return Intent{}, invalid(ErrInvalidCheckTimes, fmt.Sprintf("duplicate check time %q", c))
		}
		seen[c] = true
		out.CheckTimes = append(out.CheckTimes, c)
	}
	return out, nil
}
