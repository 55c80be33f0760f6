// Package trigger fires the three daily check-points.
//
// Each slot is a robfig/cron entry in the configured location. Missed
// firings while the process is down are not replayed: on Start cron computes
// the next occurrence from the current wall clock.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

type slotDef struct {
	slot    task.CheckTime
	at      string
	spec    string
	entryID cron.EntryID
}

type Service struct {
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	now    func() time.Time

	out chan SlotFired

	mu    sync.Mutex
	c     *cron.Cron
	ctx   context.Context
	defs  []slotDef
	fired atomic.Uint64
}

// New validates cfg and prepares the schedule. Nothing fires until Start.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("trigger: timezone %q: %w", tz, err)
	}

	s := &Service{
		log:    log.With(logx.String("comp", "trigger")),
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:    time.Now,
		out:    make(chan SlotFired),
	}
	for _, slot := range task.CheckTimes {
		raw, ok := cfg.Slots[slot]
		if !ok {
			return nil, fmt.Errorf("trigger: no time configured for %s", slot)
		}
		h, m, err := parseHHMM(raw)
		if err != nil {
			return nil, fmt.Errorf("trigger: %s: %w", slot, err)
		}
		spec := dailySpec(h, m)
		if _, err := s.parser.Parse(spec); err != nil {
			return nil, fmt.Errorf("trigger: %s: %w", slot, err)
		}
		s.defs = append(s.defs, slotDef{slot: slot, at: fmt.Sprintf("%02d:%02d", h, m), spec: spec})
	}
	return s, nil
}

// Events is the subscriber channel. It is unbuffered: a firing waits for the
// consumer instead of being dropped, until the Start context ends.
func (s *Service) Events() <-chan SlotFired { return s.out }

func (s *Service) Location() *time.Location { return s.loc }

// Start registers the cron entries and begins firing. ctx bounds pending sends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		d := &s.defs[i]
		slot := d.slot
		id, err := c.AddFunc(d.spec, func() { s.emit(SlotFired{Slot: slot, At: s.now().In(s.loc)}) })
		if err != nil {
			return fmt.Errorf("trigger: add %s: %w", slot, err)
		}
		d.entryID = id
	}
	c.Start()
	s.c = c

	fields := []logx.Field{logx.String("tz", s.loc.String())}
	for _, d := range s.defs {
		fields = append(fields, logx.Time(string(d.slot), c.Entry(d.entryID).Next))
	}
	s.log.Info("trigger started", fields...)
	return nil
}

// Stop halts the clock and waits for running callbacks, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("trigger stopped")
}

// Fire emits a synthetic event for slot now. It blocks like a real firing.
func (s *Service) Fire(ctx context.Context, slot task.CheckTime) error {
	if !slot.Valid() {
		return fmt.Errorf("trigger: unknown slot %q", slot)
	}
	ev := SlotFired{Slot: slot, At: s.now().In(s.loc), Manual: true}
	select {
	case s.out <- ev:
		s.fired.Add(1)
		s.log.Info("slot fired manually", logx.String("slot", string(slot)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) emit(ev SlotFired) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	select {
	case s.out <- ev:
		s.fired.Add(1)
		s.log.Debug("slot fired", logx.String("slot", string(ev.Slot)), logx.Time("at", ev.At))
	case <-ctx.Done():
		s.log.Warn("slot firing abandoned at shutdown", logx.String("slot", string(ev.Slot)))
	}
}

// Snapshot reports the schedule. Before Start, Next is computed from the clock.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	defs := append([]slotDef(nil), s.defs...)
	s.mu.Unlock()

	snap := Snapshot{Timezone: s.loc.String(), Running: c != nil, Fired: s.fired.Load()}
	now := s.now().In(s.loc)
	for _, d := range defs {
		info := SlotInfo{Slot: d.slot, At: d.at, Spec: d.spec}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		} else if sched, err := s.parser.Parse(d.spec); err == nil {
			info.Next = sched.Next(now)
		}
		snap.Slots = append(snap.Slots, info)
	}
	return snap
}

// NextRun returns the next firing of slot after t.
func (s *Service) NextRun(slot task.CheckTime, t time.Time) (time.Time, bool) {
	for _, d := range s.defs {
		if d.slot != slot {
			continue
		}
		sched, err := s.parser.Parse(d.spec)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(t.In(s.loc)), true
	}
	return time.Time{}, false
}
