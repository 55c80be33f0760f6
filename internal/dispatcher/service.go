// Package dispatcher turns slot firings into reminders.
//
// For each firing it lists the slot's active records and, with bounded
// concurrency, runs read / due check / send / mark-fired per record under a
// per-record lock. Only a successful send followed by a successful
// compare-and-set mutates a record; any failure leaves it due for the next
// matching trigger.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

const (
	defaultWorkers      = 4
	defaultStoreTimeout = 5 * time.Second
	defaultSendTimeout  = 10 * time.Second
)

type outcome int

const (
	outSkipped outcome = iota
	outSent
	outFailed
)

type Service struct {
	cfg    Config
	store  storage.Store
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger
	locks  *keyedMutex

	render func(task.Record) string
}

func New(store storage.Store, sender Sender, bus eventbus.Bus, cfg Config, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		sender: sender,
		bus:    bus,
		log:    log.With(logx.String("comp", "dispatcher")),
		locks:  newKeyedMutex(),
		render: Render,
	}
}

// Run dispatches events one batch at a time until ctx ends or events closes.
func (s *Service) Run(ctx context.Context, events <-chan trigger.SlotFired) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := s.Dispatch(ctx, ev); err != nil {
				s.log.Error("slot dispatch failed", logx.String("slot", string(ev.Slot)), logx.Err(err))
			}
		}
	}
}

// Dispatch processes one slot firing.
//
// Cancelling ctx abandons records that have not started; records already in
// progress finish, each step bounded by the store and send timeouts. The
// returned error is non-nil only when the candidate list could not be read.
func (s *Service) Dispatch(ctx context.Context, ev trigger.SlotFired) (Report, error) {
	start := time.Now()
	at := ev.At
	if s.cfg.Location != nil {
		at = at.In(s.cfg.Location)
	}
	rep := Report{Slot: ev.Slot, At: at}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	// Per-record work must not be cut short by shutdown.
	work := context.WithoutCancel(ctx)

	lctx, cancel := context.WithTimeout(work, s.cfg.StoreTimeout)
	recs, err := s.store.ListActiveBySlot(lctx, ev.Slot)
	cancel()
	if err != nil {
		rep.Took = time.Since(start)
		s.publishBatch(rep)
		return rep, err
	}
	rep.Candidates = len(recs)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)
	for _, r := range recs {
		if ctx.Err() != nil {
			mu.Lock()
			rep.Abandoned++
			mu.Unlock()
			continue
		}
		id := r.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				rep.Abandoned++
				mu.Unlock()
				return nil
			}
			out := s.process(work, id, ev.Slot, at)
			mu.Lock()
			switch out {
			case outSent:
				rep.Due++
				rep.Sent++
			case outFailed:
				rep.Due++
				rep.Failed++
			default:
				rep.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	rep.Took = time.Since(start)

	lvl := s.log.Info
	if rep.Failed > 0 {
		lvl = s.log.Warn
	}
	lvl("slot dispatched",
		logx.String("slot", string(rep.Slot)),
		logx.Time("at", rep.At),
		logx.Bool("manual", ev.Manual),
		logx.Int("candidates", rep.Candidates),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("abandoned", rep.Abandoned),
		logx.Duration("took", rep.Took),
	)
	s.publishBatch(rep)
	return rep, nil
}

func (s *Service) publishBatch(rep Report) {
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderBatch, Data: rep})
}

// process is the per-record read-modify-write. It holds the record's lock
// for the whole sequence.
func (s *Service) process(ctx context.Context, id string, slot task.CheckTime, at time.Time) outcome {
	unlock := s.locks.Lock(id)
	defer unlock()

	log := s.log.With(logx.String("task_id", id), logx.String("slot", string(slot)))

	gctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	rec, err := s.store.Get(gctx, id)
	cancel()
	if errors.Is(err, storage.ErrNotFound) {
		return outSkipped
	}
	if err != nil {
		log.Warn("task read failed", logx.Err(err))
		s.publishFailed(id, 0, slot, at, err)
		return outFailed
	}
	if !task.IsDue(rec, slot, at) {
		return outSkipped
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err = s.sender.SendNotification(sctx, rec.ChatID, s.render(rec))
	cancel()
	if err != nil {
		nerr := &NotificationError{TaskID: rec.ID, ChatID: rec.ChatID, Err: err}
		log.Warn("reminder not delivered", logx.Int64("chat_id", rec.ChatID), logx.Err(nerr))
		s.publishFailed(rec.ID, rec.ChatID, slot, at, nerr)
		return outFailed
	}

	retire := rec.Frequency == task.Once
	mctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	err = s.store.MarkFired(mctx, rec.ID, rec.LastFiredAt, at, retire)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrNotFound):
		// Another writer fired or retired it after our read. Our send still went out.
		log.Warn("task changed while dispatching", logx.Err(err))
	default:
		// Delivered but not recorded: it stays due and will be sent again.
		log.Error("reminder sent but not recorded", logx.Int64("chat_id", rec.ChatID), logx.Err(err))
		s.publishFailed(rec.ID, rec.ChatID, slot, at, err)
		return outFailed
	}

	fired := rec
	fired.LastFiredAt = &at
	if retire {
		fired.Active = false
	}
	log.Debug("reminder sent", logx.Int64("chat_id", rec.ChatID), logx.Bool("retired", retire))
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderFired, Data: Fired{Record: fired, At: at}})
	return outSent
}

func (s *Service) publishFailed(id string, chatID int64, slot task.CheckTime, at time.Time, err error) {
	s.bus.Publish(eventbus.Event{
		Type: eventbus.ReminderFailed,
		Data: Failed{TaskID: id, ChatID: chatID, Slot: slot, At: at, Err: err.Error()},
	})
}
