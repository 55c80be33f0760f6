package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

const compactEvery = 500

// fileStore keeps every record in memory and persists changes as JSON lines.
//
// Files:
//   - <prefix>.tasks.snapshot.json (full table, rewritten on compaction)
//   - <prefix>.tasks.journal.jsonl (one line per registration or firing)
//
// A registration is a single journal line, so a torn write loses the whole
// registration on replay and never a part of it.
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	writes       int

	byID  map[string]*task.Record
	order []string // insertion order
}

type journalEntry struct {
	Op      string        `json:"op"` // "insert" | "fired"
	Records []task.Record `json:"records,omitempty"`
	ID      string        `json:"id,omitempty"`
	FiredAt int64         `json:"fired_at,omitempty"` // unix millis
	Retire  bool          `json:"retire,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistErr("open", err)
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".tasks.snapshot.json",
		byID:         map[string]*task.Record{},
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, persistErr("load snapshot", err)
	}

	jf, err := os.OpenFile(prefix+".tasks.journal.jsonl", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, persistErr("open journal", err)
	}
	if err := s.replay(jf); err != nil {
		_ = jf.Close()
		return nil, persistErr("replay journal", err)
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	var recs []task.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return err
	}
	for i := range recs {
		s.put(recs[i])
	}
	return nil
}

// replay applies complete journal lines and truncates a trailing partial one
// so later appends start on a fresh line.
func (s *fileStore) replay(f *os.File) error {
	r := bufio.NewReader(f)
	var good int64
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				s.log.Warn("dropping torn journal line", logx.Int("bytes", len(line)))
			}
			break
		}
		if err != nil {
			return err
		}
		good += int64(len(line))

		var e journalEntry
		if err := json.Unmarshal(bytes.TrimSpace(line), &e); err != nil {
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			continue
		}
		s.apply(e)
	}
	if err := f.Truncate(good); err != nil {
		return err
	}
	_, err := f.Seek(good, io.SeekStart)
	return err
}

func (s *fileStore) put(r task.Record) {
	if _, ok := s.byID[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	c := clone(r)
	s.byID[r.ID] = &c
}

func (s *fileStore) apply(e journalEntry) {
	switch e.Op {
	case "insert":
		for _, r := range e.Records {
			s.put(r)
		}
	case "fired":
		r, ok := s.byID[e.ID]
		if !ok {
			return
		}
		t := time.UnixMilli(e.FiredAt)
		r.LastFiredAt = &t
		if e.Retire {
			r.Active = false
		}
	}
}

// appendLocked writes and syncs one journal line. The in-memory table is only
// touched after this succeeds.
func (s *fileStore) appendLocked(e journalEntry) error {
	if s.journal == nil {
		return errors.New("store closed")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	off, err := s.journal.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(b); err != nil {
		// Roll back a short write so the next line starts clean.
		_ = s.journal.Truncate(off)
		_, _ = s.journal.Seek(off, io.SeekStart)
		return err
	}
	return s.journal.Sync()
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.writes%compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("task journal compaction failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	recs := make([]task.Record, 0, len(s.order))
	for _, id := range s.order {
		recs = append(recs, *s.byID[id])
	}
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Replaying the old journal over the new snapshot would be harmless, so a
	// crash between rename and truncate loses nothing.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekStart)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) InsertTasks(ctx context.Context, recs []task.Record) error {
	if err := ctx.Err(); err != nil {
		return persistErr("insert", err)
	}
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	seen := make(map[string]bool, len(recs))
	for i := range recs {
		if recs[i].CreatedAt.IsZero() {
			recs[i].CreatedAt = now
		}
		id := recs[i].ID
		if _, dup := s.byID[id]; dup || seen[id] {
			return persistErr("insert", fmt.Errorf("duplicate id %q", id))
		}
		seen[id] = true
	}

	if err := s.appendLocked(journalEntry{Op: "insert", Records: recs}); err != nil {
		return persistErr("insert", err)
	}
	for _, r := range recs {
		s.put(r)
	}
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) filter(keep func(*task.Record) bool) []task.Record {
	var out []task.Record
	for _, id := range s.order {
		if r := s.byID[id]; keep(r) {
			out = append(out, clone(*r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *fileStore) ListActiveBySlot(ctx context.Context, slot task.CheckTime) ([]task.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistErr("list slot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(r *task.Record) bool { return r.Active && r.CheckTime == slot }), nil
}

func (s *fileStore) ListByChat(ctx context.Context, chatID int64) ([]task.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistErr("list chat", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(r *task.Record) bool { return r.ChatID == chatID }), nil
}

func (s *fileStore) Get(ctx context.Context, id string) (task.Record, error) {
	if err := ctx.Err(); err != nil {
		return task.Record{}, persistErr("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return task.Record{}, ErrNotFound
	}
	return clone(*r), nil
}

func (s *fileStore) MarkFired(ctx context.Context, id string, prev *time.Time, firedAt time.Time, retire bool) error {
	if err := ctx.Err(); err != nil {
		return persistErr("mark fired", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !r.Active || !sameInstant(r.LastFiredAt, prev) {
		return ErrConflict
	}

	e := journalEntry{Op: "fired", ID: id, FiredAt: firedAt.UnixMilli(), Retire: retire}
	if err := s.appendLocked(e); err != nil {
		return persistErr("mark fired", err)
	}
	s.apply(e)
	s.afterWriteLocked()
	return nil
}
