package dispatcher

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/task"
)

// Sender is the messaging collaborator. Failures are opaque.
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) SendNotification(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// NotificationError wraps a failed send. The record keeps its state and
// stays due for the next matching trigger.
type NotificationError struct {
	TaskID string
	ChatID int64
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify chat %d (task %s): %v", e.ChatID, e.TaskID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

type Config struct {
	Workers      int
	StoreTimeout time.Duration
	SendTimeout  time.Duration
	// Location is applied to trigger timestamps before due checks.
	Location *time.Location
}

// Report summarizes one slot batch.
//
// Candidates = Due + Skipped + Abandoned; Due = Sent + Failed.
type Report struct {
	Slot       task.CheckTime `json:"slot"`
	At         time.Time      `json:"at"`
	Candidates int            `json:"candidates"`
	Due        int            `json:"due"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Abandoned  int            `json:"abandoned"`
	Took       time.Duration  `json:"took"`
}

// Fired is the payload of eventbus.ReminderFired.
type Fired struct {
	Record task.Record
	At     time.Time
}

// Failed is the payload of eventbus.ReminderFailed.
type Failed struct {
	TaskID string
	ChatID int64
	Slot   task.CheckTime
	At     time.Time
	Err    string
}
