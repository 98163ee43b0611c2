package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"endwatch/pkg/logx"
)

const historyFormatVersion = "1"

// HistoryEntry is one observed snapshot. Entries are never deleted.
type HistoryEntry struct {
	Data      Snapshot  `json:"data"`
	FetchTime time.Time `json:"fetch_time"`
}

// kindHistory is the append-only ledger for one (platform, kind) pair.
// Invariant: LastID, when set, always references a key present in Data;
// Data only grows.
type kindHistory struct {
	Data        map[string]HistoryEntry `json:"data"`
	LastUpdated time.Time               `json:"last_updated"`
	LastID      string                  `json:"last_id,omitempty"`
}

type historyFile struct {
	Version   string                                    `json:"version"`
	Platforms map[Platform]map[ConfigKind]*kindHistory `json:"platforms"`
}

// ChangeRecord is the result of comparing a fresh snapshot against the
// stored latest after normalization.
type ChangeRecord struct {
	Old     Snapshot
	New     Snapshot
	Changed bool
	// First marks the first-ever observation for this (platform, kind):
	// a baseline entry is written but no notification may be emitted.
	First bool
}

// Store is the versioned snapshot store, persisted as a single JSON file.
//
// All mutation goes through one mutex: concurrent ticks for the same
// (platform, kind) must be serialized so the read-modify-write of the
// append never interleaves.
type Store struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	hist historyFile
}

// OpenStore loads the persisted history. An absent file is a bootstrap; a
// corrupt one is reset to empty (logged, not fatal).
func OpenStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:  log,
		path: path,
		hist: historyFile{
			Version:   historyFormatVersion,
			Platforms: map[Platform]map[ConfigKind]*kindHistory{},
		},
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("history file unreadable; starting empty", logx.String("path", path), logx.Err(err))
		}
		return s
	}
	var h historyFile
	if err := json.Unmarshal(b, &h); err != nil {
		log.Warn("history file corrupt; resetting", logx.String("path", path), logx.Err(err))
		return s
	}
	if h.Platforms == nil {
		h.Platforms = map[Platform]map[ConfigKind]*kindHistory{}
	}
	h.Version = historyFormatVersion
	s.hist = h
	return s
}

// CheckAndAppend compares fresh against the stored latest for (platform,
// kind), appends a new entry when the normalized forms differ, refreshes the
// latest entry's timestamp when they don't, and persists either way.
//
// A persistence failure is logged and the in-memory ChangeRecord is still
// returned: the on-disk history simply lags and a later tick re-diffs
// against the stale baseline, which normalization keeps safe.
func (s *Store) CheckAndAppend(platform Platform, kind ConfigKind, fresh Snapshot, now time.Time) ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := s.hist.Platforms[platform]
	if byKind == nil {
		byKind = map[ConfigKind]*kindHistory{}
		s.hist.Platforms[platform] = byKind
	}
	h := byKind[kind]
	if h == nil {
		h = &kindHistory{Data: map[string]HistoryEntry{}}
		byKind[kind] = h
	}

	rec := ChangeRecord{New: fresh}
	if h.LastID == "" {
		rec.Old = EmptySnapshot()
		rec.Changed = true
		rec.First = true
		s.appendLocked(h, fresh, now)
		s.persistLocked()
		return rec
	}

	latest := h.Data[h.LastID]
	rec.Old = latest.Data
	rec.Changed = !SnapshotsEqual(latest.Data, fresh)

	if rec.Changed {
		s.appendLocked(h, fresh, now)
	} else {
		latest.FetchTime = now
		h.Data[h.LastID] = latest
		h.LastUpdated = now
	}
	s.persistLocked()
	return rec
}

func (s *Store) appendLocked(h *kindHistory, snap Snapshot, now time.Time) {
	id := uuid.NewString()
	h.Data[id] = HistoryEntry{Data: snap, FetchTime: now}
	h.LastID = id
	h.LastUpdated = now
}

// Latest returns the most recent snapshot for (platform, kind), read-only.
func (s *Store) Latest(platform Platform, kind ConfigKind) (Snapshot, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.hist.Platforms[platform][kind]
	if h == nil || h.LastID == "" {
		return Snapshot{}, time.Time{}, false
	}
	e, ok := h.Data[h.LastID]
	if !ok {
		return Snapshot{}, time.Time{}, false
	}
	return e.Data, e.FetchTime, true
}

// EntryCount reports how many entries exist for (platform, kind).
func (s *Store) EntryCount(platform Platform, kind ConfigKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hist.Platforms[platform][kind]
	if h == nil {
		return 0
	}
	return len(h.Data)
}

func (s *Store) persistLocked() {
	b, err := json.MarshalIndent(&s.hist, "", "  ")
	if err != nil {
		s.log.Error("history marshal failed", logx.Err(err))
		return
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Warn("history dir create failed", logx.String("path", s.path), logx.Err(err))
			return
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.log.Warn("history write failed", logx.String("path", s.path), logx.Err(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("history rename failed", logx.String("path", s.path), logx.Err(err))
	}
}
