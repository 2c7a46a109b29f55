package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// fileStore keeps everything in memory and, when a path prefix is set,
// mirrors it to disk.
//
// Files:
//   - <prefix>.reminders.json      (snapshot, rewritten atomically on every change)
//   - <prefix>.audit.jsonl         (append-only JSON Lines)
//   - <prefix>.dedup.snapshot.json (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl (append-only journal)
//
// The dedup journal is periodically compacted into its snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	remindersPath string
	reminders     map[int64]ReminderRecord
	nextID        int64

	auditFile *os.File

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli

	dedupWrites int
	closed      bool
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

type remindersSnapshot struct {
	NextID    int64            `json:"next_id"`
	Reminders []ReminderRecord `json:"reminders"`
}

func openMemory(log logx.Logger) *fileStore {
	return &fileStore{
		log:       log,
		reminders: map[int64]ReminderRecord{},
		nextID:    1,
		dedup:     map[string]int64{},
	}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := openMemory(log)
	s.remindersPath = prefix + ".reminders.json"
	s.dedupSnapshotPath = prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	if err := s.loadReminders(); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	_ = loadDedupSnapshot(s.dedupSnapshotPath, s.dedup)
	_ = replayDedupJournal(journalPath, s.dedup)
	pruneExpiredDedup(s.dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	s.auditFile = af
	s.dedupJournalFile = jf
	return s, nil
}

func (s *fileStore) persistent() bool { return s.remindersPath != "" }

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.dedupJournalFile != nil {
		err2 = s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) CreateReminder(ctx context.Context, r ReminderRecord) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrDisabled
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.ID = s.nextID
	s.nextID++
	s.reminders[r.ID] = r
	if err := s.saveRemindersLocked(); err != nil {
		delete(s.reminders, r.ID)
		s.nextID--
		return 0, err
	}
	return r.ID, nil
}

func (s *fileStore) GetReminder(ctx context.Context, userID, id int64) (ReminderRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return ReminderRecord{}, ErrNotFound
	}
	return r, nil
}

func (s *fileStore) ListReminders(ctx context.Context, userID int64) ([]ReminderRecord, error) {
	_ = ctx
	return s.list(func(r ReminderRecord) bool { return r.UserID == userID }), nil
}

func (s *fileStore) ListEnabledReminders(ctx context.Context) ([]ReminderRecord, error) {
	_ = ctx
	return s.list(func(r ReminderRecord) bool { return r.Enabled }), nil
}

func (s *fileStore) list(keep func(ReminderRecord) bool) []ReminderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReminderRecord, 0, len(s.reminders))
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fileStore) SetReminderEnabled(ctx context.Context, userID, id int64, enabled bool) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	prev := r
	r.Enabled = enabled
	s.reminders[id] = r
	if err := s.saveRemindersLocked(); err != nil {
		s.reminders[id] = prev
		return false, err
	}
	return true, nil
}

func (s *fileStore) DeleteReminder(ctx context.Context, userID, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.reminders, id)
	if err := s.saveRemindersLocked(); err != nil {
		s.reminders[id] = r
		return false, err
	}
	return true, nil
}

func (s *fileStore) MarkReminderFired(ctx context.Context, id int64, at time.Time, disable bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	prev := r
	r.LastFiredAt = at
	if disable {
		r.Enabled = false
	}
	s.reminders[id] = r
	if err := s.saveRemindersLocked(); err != nil {
		s.reminders[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) loadReminders() error {
	b, err := os.ReadFile(s.remindersPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap remindersSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, r := range snap.Reminders {
		s.reminders[r.ID] = r
		if r.ID >= snap.NextID {
			snap.NextID = r.ID + 1
		}
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

func (s *fileStore) saveRemindersLocked() error {
	if !s.persistent() {
		return nil
	}
	snap := remindersSnapshot{NextID: s.nextID, Reminders: make([]ReminderRecord, 0, len(s.reminders))}
	for _, r := range s.reminders {
		snap.Reminders = append(snap.Reminders, r)
	}
	sort.Slice(snap.Reminders, func(i, j int) bool { return snap.Reminders[i].ID < snap.Reminders[j].ID })
	return writeJSONAtomic(s.remindersPath, snap)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.persistent() {
		return nil
	}
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[key] = ms
	if !s.persistent() {
		return nil
	}
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}

	if err := json.NewEncoder(s.dedupJournalFile).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.dedup)
	if err := writeJSONAtomic(s.dedupSnapshotPath, s.dedup); err != nil {
		return err
	}
	if err := s.dedupJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.dedupJournalFile.Seek(0, 2)
	return err
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
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
	return os.Rename(tmp, path)
}

func loadDedupSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return s.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
