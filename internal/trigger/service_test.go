package trigger

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

func defaultSlots() map[task.CheckTime]string {
	return map[task.CheckTime]string{
		task.Morning:   "08:30",
		task.Afternoon: "14:00",
		task.Evening:   "22:00",
	}
}

func newTestService(t *testing.T, tz string) *Service {
	t.Helper()
	s, err := New(Config{Timezone: tz, Slots: defaultSlots()}, logx.Nop())
	if err != nil {
		t.Skipf("trigger.New(%s): %v", tz, err)
	}
	return s
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"08:30", 8, 30, false},
		{"8:30", 8, 30, false},
		{" 22:00 ", 22, 0, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"830", 0, 0, true},
	}
	for _, tc := range cases {
		h, m, err := parseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseHHMM(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || h != tc.h || m != tc.m {
			t.Errorf("parseHHMM(%q) = %d, %d, %v", tc.in, h, m, err)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Timezone: "Nowhere/Nope", Slots: defaultSlots()}, logx.Nop()); err == nil {
		t.Fatal("expected timezone error")
	}
	slots := defaultSlots()
	delete(slots, task.Afternoon)
	if _, err := New(Config{Timezone: "UTC", Slots: slots}, logx.Nop()); err == nil {
		t.Fatal("expected missing slot error")
	}
	slots = defaultSlots()
	slots[task.Evening] = "25:00"
	if _, err := New(Config{Timezone: "UTC", Slots: slots}, logx.Nop()); err == nil {
		t.Fatal("expected bad time error")
	}
}

func TestNextRunUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "Asia/Seoul")
	seoul := s.Location()

	// 23:00 Seoul: the next evening firing is tomorrow 22:00 local.
	after := time.Date(2026, 3, 2, 23, 0, 0, 0, seoul)
	next, ok := s.NextRun(task.Evening, after)
	if !ok {
		t.Fatal("NextRun: slot not found")
	}
	want := time.Date(2026, 3, 3, 22, 0, 0, 0, seoul)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// Same instant expressed in UTC gives the same answer.
	next2, _ := s.NextRun(task.Evening, after.UTC())
	if !next2.Equal(want) {
		t.Fatalf("next from UTC = %v, want %v", next2, want)
	}
}

func TestNextRunAcrossDST(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "America/New_York")
	ny := s.Location()
	// Evening of the day before spring-forward; the next 08:30 is on the 23h day.
	after := time.Date(2026, 3, 7, 22, 30, 0, 0, ny)
	next, _ := s.NextRun(task.Morning, after)
	want := time.Date(2026, 3, 8, 8, 30, 0, 0, ny)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestSnapshotBeforeAndAfterStart(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "UTC")
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	snap := s.Snapshot()
	if snap.Running || len(snap.Slots) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := snap.Slots[0]; got.Slot != task.Morning || !got.Next.Equal(time.Date(2026, 3, 3, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("morning = %+v", got)
	}
	if got := snap.Slots[1]; !got.Next.Equal(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("afternoon = %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())
	snap = s.Snapshot()
	if !snap.Running {
		t.Fatal("expected running")
	}
	for _, si := range snap.Slots {
		if si.Next.IsZero() {
			t.Fatalf("slot %s has no next run", si.Slot)
		}
	}
}

func TestEmitBlocksUntilConsumed(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "UTC")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	done := make(chan struct{})
	go func() {
		s.emit(SlotFired{Slot: task.Evening, At: time.Now()})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("emit returned before the event was consumed")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case ev := <-s.Events():
		if ev.Slot != task.Evening || ev.Manual {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	<-done
	if s.Snapshot().Fired != 1 {
		t.Fatal("fired counter not incremented")
	}
}

func TestEmitGivesUpOnShutdown(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "UTC")
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		s.emit(SlotFired{Slot: task.Morning, At: time.Now()})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit did not return after cancel")
	}
	s.Stop(context.Background())
}

func TestFire(t *testing.T) {
	t.Parallel()

	s := newTestService(t, "Asia/Seoul")
	go func() { _ = s.Fire(context.Background(), task.Afternoon) }()

	select {
	case ev := <-s.Events():
		if ev.Slot != task.Afternoon || !ev.Manual || ev.At.Location() != s.Location() {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	if err := s.Fire(context.Background(), "midnight"); err == nil {
		t.Fatal("expected unknown slot error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Fire(ctx, task.Morning); err == nil {
		t.Fatal("expected context error with no consumer")
	}
}
