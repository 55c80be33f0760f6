package dispatcher

import (
	"fmt"

	"remindbot/internal/task"
)

// Render builds the reminder text for a record.
func Render(r task.Record) string {
	return fmt.Sprintf("⏰ 리마인더: %s\n(%s · %s)", r.TaskName, r.Label(), task.SlotLabel(r.CheckTime))
}
