package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	if sent, err := Ready(); sent || err != nil {
		t.Fatalf("Ready = %v, %v", sent, err)
	}
	if sent, err := Status("running"); sent || err != nil {
		t.Fatalf("Status = %v, %v", sent, err)
	}
	if WatchdogInterval() != 0 {
		t.Fatal("watchdog should be off")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watchdog(ctx); err != nil {
		t.Fatalf("Watchdog: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Watchdog should return immediately when disabled")
	}
}
