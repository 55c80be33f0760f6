package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/task"
)

var (
	// ErrPersistence wraps every driver failure.
	ErrPersistence = errors.New("persistence")
	ErrNotFound    = errors.New("task not found")
	// ErrConflict means MarkFired lost its compare-and-set: the record was
	// fired or retired by someone else since it was read.
	ErrConflict = errors.New("task changed concurrently")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Store is the task table.
type Store interface {
	// InsertTasks writes all records or none. Zero CreatedAt values are
	// stamped in place.
	InsertTasks(ctx context.Context, recs []task.Record) error
	// ListActiveBySlot returns active records of one check time, oldest first.
	ListActiveBySlot(ctx context.Context, slot task.CheckTime) ([]task.Record, error)
	// ListByChat returns every record of a chat, including retired ones.
	ListByChat(ctx context.Context, chatID int64) ([]task.Record, error)
	Get(ctx context.Context, id string) (task.Record, error)
	// MarkFired sets last_fired_at=firedAt (and active=false when retire)
	// only if the record is still active and last_fired_at still equals prev.
	MarkFired(ctx context.Context, id string, prev *time.Time, firedAt time.Time, retire bool) error
	Close() error
}

func persistErr(op string, err error) error {
	return fmt.Errorf("storage %s: %w: %w", op, ErrPersistence, err)
}

func clone(r task.Record) task.Record {
	if r.Interval != nil {
		n := *r.Interval
		r.Interval = &n
	}
	if r.LastFiredAt != nil {
		t := *r.LastFiredAt
		r.LastFiredAt = &t
	}
	return r
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UnixMilli() == b.UnixMilli()
}
