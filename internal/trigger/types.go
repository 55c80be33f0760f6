package trigger

import (
	"time"

	"remindbot/internal/task"
)

// SlotFired is emitted once per check-point firing.
type SlotFired struct {
	Slot task.CheckTime
	At   time.Time // in the scheduler's location
	// Manual marks events produced by Fire rather than the clock.
	Manual bool
}

// Config maps each slot to an "HH:MM" wall-clock time in Timezone.
type Config struct {
	Timezone string
	Slots    map[task.CheckTime]string
}

type SlotInfo struct {
	Slot task.CheckTime `json:"slot"`
	At   string         `json:"at"`   // HH:MM
	Spec string         `json:"spec"` // cron expression
	Next time.Time      `json:"next"`
	Prev time.Time      `json:"prev,omitempty"`
}

type Snapshot struct {
	Timezone string     `json:"timezone"`
	Running  bool       `json:"running"`
	Fired    uint64     `json:"fired"`
	Slots    []SlotInfo `json:"slots"`
}
