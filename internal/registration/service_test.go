package registration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/nlu"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "t.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeParser struct {
	res   nlu.Result
	err   error
	calls int
}

func (f *fakeParser) ParseIntent(context.Context, string) (nlu.Result, error) {
	f.calls++
	return f.res, f.err
}

// failingStore refuses every insert.
type failingStore struct{ storage.Store }

func (failingStore) InsertTasks(context.Context, []task.Record) error {
	return errors.New("disk full")
}

func intPtr(n int) *int { return &n }

func TestRegisterOneRecordPerSlot(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	svc := New(st, nil, bus, logx.Nop())
	ctx := context.Background()

	recs, err := svc.Register(ctx, 42, task.Intent{
		TaskName:   " 물주기 ",
		Frequency:  task.EveryNDays,
		Interval:   intPtr(3),
		CheckTimes: []task.CheckTime{task.Morning, task.Afternoon, task.Evening},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	ids := map[string]bool{}
	for i, r := range recs {
		if r.TaskName != "물주기" || r.Frequency != task.EveryNDays || r.IntervalDays() != 3 {
			t.Fatalf("record %d = %+v", i, r)
		}
		if !r.Active || r.LastFiredAt != nil || r.ChatID != 42 {
			t.Fatalf("record %d state = %+v", i, r)
		}
		if r.GroupID != recs[0].GroupID {
			t.Fatal("records of one registration must share a group id")
		}
		ids[r.ID] = true
	}
	if len(ids) != 3 {
		t.Fatalf("ids not unique: %v", ids)
	}

	stored, err := st.ListByChat(ctx, 42)
	if err != nil || len(stored) != 3 {
		t.Fatalf("stored = %d, %v", len(stored), err)
	}

	select {
	case ev := <-events:
		if ev.Type != eventbus.TaskRegistered {
			t.Fatalf("event = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no task.registered event")
	}
}

func TestRegisterScenarioStretching(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	svc := New(st, nil, nil, logx.Nop())
	recs, err := svc.Register(context.Background(), 1, task.Intent{
		TaskName:   "스트레칭",
		Frequency:  task.Daily,
		CheckTimes: []task.CheckTime{task.Evening},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(recs) != 1 || recs[0].CheckTime != task.Evening || !recs[0].Active || recs[0].Interval != nil {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestRegisterRejectsWithoutWriting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   task.Intent
		want error
	}{
		{"empty name", task.Intent{Frequency: task.Daily, CheckTimes: []task.CheckTime{task.Evening}}, task.ErrEmptyTaskName},
		{"bad frequency", task.Intent{TaskName: "x", Frequency: "yearly", CheckTimes: []task.CheckTime{task.Evening}}, task.ErrInvalidFrequency},
		{"every n absent interval", task.Intent{TaskName: "x", Frequency: task.EveryNDays, CheckTimes: []task.CheckTime{task.Evening}}, task.ErrMissingOrInvalidInterval},
		{"every n zero interval", task.Intent{TaskName: "x", Frequency: task.EveryNDays, Interval: intPtr(0), CheckTimes: []task.CheckTime{task.Evening}}, task.ErrMissingOrInvalidInterval},
		{"no slots", task.Intent{TaskName: "x", Frequency: task.Daily}, task.ErrInvalidCheckTimes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := newStore(t)
			svc := New(st, nil, nil, logx.Nop())
			_, err := svc.Register(context.Background(), 9, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			recs, _ := st.ListByChat(context.Background(), 9)
			if len(recs) != 0 {
				t.Fatalf("rows written on rejection: %+v", recs)
			}
		})
	}
}

func TestRegisterPersistenceError(t *testing.T) {
	t.Parallel()

	svc := New(failingStore{}, nil, nil, logx.Nop())
	_, err := svc.Register(context.Background(), 1, task.Intent{TaskName: "x", Frequency: task.Once, CheckTimes: []task.CheckTime{task.Morning}})
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestRegisterText(t *testing.T) {
	t.Parallel()

	intent := &task.Intent{TaskName: "스트레칭", Frequency: task.Daily, CheckTimes: []task.CheckTime{task.Evening}}
	cases := []struct {
		name    string
		parser  *fakeParser
		wantErr error
		wantN   int
	}{
		{"register", &fakeParser{res: nlu.Result{Kind: nlu.KindRegisterTask, Intent: intent}}, nil, 1},
		{"chat", &fakeParser{res: nlu.Result{Kind: nlu.KindChat}}, ErrNotATask, 0},
		{"parse error", &fakeParser{err: &nlu.ParseError{Provider: "fake", Err: fmt.Errorf("bad json")}}, nlu.ErrParse, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := newStore(t)
			svc := New(st, tc.parser, nil, logx.Nop())
			recs, err := svc.RegisterText(context.Background(), 5, "매일 저녁 스트레칭")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("RegisterText: %v", err)
			}
			if len(recs) != tc.wantN {
				t.Fatalf("records = %d, want %d", len(recs), tc.wantN)
			}
			stored, _ := st.ListByChat(context.Background(), 5)
			if len(stored) != tc.wantN {
				t.Fatalf("stored = %d, want %d", len(stored), tc.wantN)
			}
		})
	}
}

func TestRegisterTextWithoutParser(t *testing.T) {
	t.Parallel()

	svc := New(newStore(t), nil, nil, logx.Nop())
	if _, err := svc.RegisterText(context.Background(), 1, "hi"); !errors.Is(err, nlu.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
