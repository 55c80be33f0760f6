package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/task"
	kit "remindbot/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	started bool
	stopped bool
	menu    []kit.BotCommand
	texts   []string

	notified chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notified: make(chan string, 8)}
}

func (f *fakeTransport) Start(context.Context, chan<- kit.Update) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeTransport) SendNotification(_ context.Context, _ int64, text string) error {
	f.notified <- text
	return nil
}

func (f *fakeTransport) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func testConfig(t *testing.T) string {
	db := filepath.Join(t.TempDir(), "tasks.db")
	return writeConfig(t, `{
  "telegram": {"token": "unused"},
  "logging": {"level": "error"},
  "storage": {"driver": "sqlite", "path": "`+filepath.ToSlash(db)+`"},
  "scheduler": {"timezone": "UTC"},
  "nlu": {"provider": "none"}
}`)
}

func TestFireDeliversDueReminders(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	a, err := New(testConfig(t), WithTransport(tr), WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := a.reg.Register(ctx, 42, task.Intent{
		TaskName:   "스트레칭",
		Frequency:  task.Daily,
		CheckTimes: []task.CheckTime{task.Evening},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Fire(ctx, task.Evening); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	select {
	case text := <-tr.notified:
		if !strings.Contains(text, "스트레칭") {
			t.Fatalf("notification = %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reminder delivered")
	}

	// Morning has no tasks.
	if err := a.Fire(ctx, task.Morning); err != nil {
		t.Fatalf("Fire morning: %v", err)
	}
	select {
	case text := <-tr.notified:
		t.Fatalf("unexpected reminder %q", text)
	case <-time.After(100 * time.Millisecond):
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.started || !tr.stopped {
		t.Fatalf("transport started=%v stopped=%v", tr.started, tr.stopped)
	}
	if len(tr.menu) != 3 {
		t.Fatalf("menu = %+v", tr.menu)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `{"scheduler": {"timezone": "Mars/Olympus"}, "nlu": {"provider": "none"}}`)
	if _, err := New(p, WithTransport(newFakeTransport()), WithEnviron(map[string]string{})); err == nil {
		t.Fatal("expected config error")
	}
}

func TestMappings(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Storage.Driver = " SQLite "
	cfg.Storage.Path = "/tmp/x.db"
	cfg.Dispatcher.SendTimeout = "3s"
	cfg.Scheduler.Slots = config.SlotTimes{Morning: "07:00", Afternoon: "13:00", Evening: "21:30"}

	sc, err := StorageConfig(cfg)
	if err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("storage = %+v, %v", sc, err)
	}
	dc, err := dispatcherConfig(cfg, time.UTC)
	if err != nil || dc.SendTimeout != 3*time.Second || dc.StoreTimeout != config.DefaultStoreTimeout || dc.Location != time.UTC {
		t.Fatalf("dispatcher = %+v, %v", dc, err)
	}
	cfg.Telegram.Token = "123:abc"
	if ac, err := adapterConfig(cfg); err != nil || ac.SendTimeout != 3*time.Second {
		t.Fatalf("adapter = %+v, %v", ac, err)
	}
	if tc := triggerConfig(cfg); tc.Slots[task.Evening] != "21:30" {
		t.Fatalf("trigger = %+v", tc)
	}

	cfg.NLU.Timeout = "soon"
	if _, err := nluConfig(cfg); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestApplyConfigReportsRestart(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(t), WithTransport(newFakeTransport()), WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	prev := a.cfgm.Get()
	next := *prev
	next.Logging.Level = "debug"
	if got := a.applyConfig(prev, &next); got != &next {
		t.Fatal("applyConfig should return the new config")
	}
	next2 := next
	next2.Scheduler.Timezone = "Asia/Seoul"
	if got := a.applyConfig(&next, &next2); got != &next2 {
		t.Fatal("applyConfig should return the new config")
	}
}

func TestDispatchNowWithoutStart(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	a, err := New(testConfig(t), WithTransport(tr), WithEnviron(map[string]string{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.reg.Register(ctx, 7, task.Intent{
		TaskName:   "병원 예약",
		Frequency:  task.Once,
		CheckTimes: []task.CheckTime{task.Morning},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	rep, err := a.DispatchNow(ctx, task.Morning)
	if err != nil || rep.Sent != 1 {
		t.Fatalf("first = %+v, %v", rep, err)
	}
	rep, err = a.DispatchNow(ctx, task.Morning)
	if err != nil || rep.Candidates != 0 {
		t.Fatalf("second = %+v, %v", rep, err)
	}
}
