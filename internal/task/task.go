package task

import (
	"fmt"
	"time"
)

type Frequency string

const (
	Once       Frequency = "once"
	Daily      Frequency = "daily"
	EveryNDays Frequency = "every_n_days"
	Weekly     Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Once, Daily, EveryNDays, Weekly:
		return true
	}
	return false
}

// CheckTime is one of the three daily slots a record fires in.
type CheckTime string

const (
	Morning   CheckTime = "morning"
	Afternoon CheckTime = "afternoon"
	Evening   CheckTime = "evening"
)

// CheckTimes lists the slots in firing order.
var CheckTimes = []CheckTime{Morning, Afternoon, Evening}

func (c CheckTime) Valid() bool {
	switch c {
	case Morning, Afternoon, Evening:
		return true
	}
	return false
}

// ParseCheckTime accepts the slot names used in config, CLI args and URLs.
func ParseCheckTime(s string) (CheckTime, error) {
	c := CheckTime(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown check time %q", s)
	}
	return c, nil
}

// Intent is a registration request as produced by the NLU layer.
// Interval is nil when the model did not supply one.
type Intent struct {
	TaskName   string      `json:"task_name"`
	Frequency  Frequency   `json:"frequency"`
	Interval   *int        `json:"interval"`
	CheckTimes []CheckTime `json:"check_times"`
}

// Record is one persisted row: a task bound to a single check time.
//
// A registration with N check times produces N records sharing name,
// frequency and interval. GroupID ties them together for listing only.
type Record struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"group_id"`
	ChatID      int64      `json:"chat_id"`
	TaskName    string     `json:"task_name"`
	Frequency   Frequency  `json:"frequency"`
	Interval    *int       `json:"interval,omitempty"`
	CheckTime   CheckTime  `json:"check_time"`
	Active      bool       `json:"active"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IntervalDays returns the interval, or 0 when absent.
func (r Record) IntervalDays() int {
	if r.Interval == nil {
		return 0
	}
	return *r.Interval
}

// Label renders the frequency for chat messages.
func (r Record) Label() string {
	switch r.Frequency {
	case Once:
		return "한 번"
	case Daily:
		return "매일"
	case Weekly:
		return "매주"
	case EveryNDays:
		return fmt.Sprintf("%d일마다", r.IntervalDays())
	default:
		return string(r.Frequency)
	}
}

// SlotLabel is the Korean name of a check time.
func SlotLabel(c CheckTime) string {
	switch c {
	case Morning:
		return "아침"
	case Afternoon:
		return "오후"
	case Evening:
		return "저녁"
	default:
		return string(c)
	}
}
