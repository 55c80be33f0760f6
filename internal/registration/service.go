// Package registration turns task intents into stored records.
package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/nlu"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

// ErrNotATask is returned by RegisterText when the parser classified the
// message as conversation rather than a registration.
var ErrNotATask = errors.New("message is not a task registration")

// Registered is the payload of eventbus.TaskRegistered.
type Registered struct {
	ChatID  int64
	GroupID string
	Records []task.Record
}

type Service struct {
	store  storage.Store
	parser nlu.Parser
	bus    eventbus.Bus
	log    logx.Logger

	newID func() string
}

// New wires the service. parser may be nil when no NLU provider is configured;
// RegisterText then reports nlu.ErrUnavailable.
func New(store storage.Store, parser nlu.Parser, bus eventbus.Bus, log logx.Logger) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{
		store:  store,
		parser: parser,
		bus:    bus,
		log:    log.With(logx.String("comp", "registration")),
		newID:  uuid.NewString,
	}
}

// Register validates intent and stores one record per check time in a single
// atomic write. Validation failures are *task.ValidationError; store failures
// wrap storage.ErrPersistence. Nothing is written on error.
func (s *Service) Register(ctx context.Context, chatID int64, intent task.Intent) ([]task.Record, error) {
	in, err := task.Normalize(intent)
	if err != nil {
		return nil, err
	}

	group := s.newID()
	recs := make([]task.Record, 0, len(in.CheckTimes))
	for _, slot := range in.CheckTimes {
		r := task.Record{
			ID:        s.newID(),
			GroupID:   group,
			ChatID:    chatID,
			TaskName:  in.TaskName,
			Frequency: in.Frequency,
			CheckTime: slot,
			Active:    true,
		}
		if in.Interval != nil {
			n := *in.Interval
			r.Interval = &n
		}
		recs = append(recs, r)
	}

	if err := s.store.InsertTasks(ctx, recs); err != nil {
		s.log.Warn("registration not persisted", logx.Int64("chat_id", chatID), logx.Err(err))
		if !errors.Is(err, storage.ErrPersistence) {
			err = fmt.Errorf("%w: %w", storage.ErrPersistence, err)
		}
		return nil, err
	}

	s.log.Info("task registered",
		logx.Int64("chat_id", chatID),
		logx.String("group_id", group),
		logx.String("name", in.TaskName),
		logx.String("frequency", string(in.Frequency)),
		logx.Int("slots", len(recs)),
	)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TaskRegistered,
		Data: Registered{ChatID: chatID, GroupID: group, Records: recs},
	})
	return recs, nil
}

// RegisterText asks the parser for an intent and registers it. A parse
// failure (nlu.ErrParse) or a chat classification (ErrNotATask) never touches
// the store.
func (s *Service) RegisterText(ctx context.Context, chatID int64, text string) ([]task.Record, error) {
	if s.parser == nil {
		return nil, nlu.ErrUnavailable
	}
	res, err := s.parser.ParseIntent(ctx, text)
	if err != nil {
		return nil, err
	}
	if res.Kind != nlu.KindRegisterTask || res.Intent == nil {
		return nil, ErrNotATask
	}
	return s.Register(ctx, chatID, *res.Intent)
}
