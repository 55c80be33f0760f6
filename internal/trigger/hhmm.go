package trigger

import (
	"fmt"
	"regexp"
	"strconv"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// parseHHMM parses a wall-clock time of day like "08:30" or "8:30".
func parseHHMM(s string) (hour, minute int, err error) {
	m := reHHMM.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q (out of range)", s)
	}
	return hour, minute, nil
}

// dailySpec turns a time of day into a 5-field cron expression.
func dailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
