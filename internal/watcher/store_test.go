package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"endwatch/pkg/logx"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return OpenStore(filepath.Join(t.TempDir(), "history.json"), logx.Nop())
}

func TestStoreFirstObservationIsBaseline(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	snap := RecordSnapshot(map[string]any{"version": "1.0.0"})

	rec := s.CheckAndAppend(PlatformDefault, KindResVersion, snap, time.Now())
	if !rec.First {
		t.Fatal("first observation must be flagged First")
	}
	if !rec.Changed {
		t.Fatal("first observation counts as a change (against empty)")
	}
	if !rec.Old.IsEmpty() {
		t.Fatalf("Old = %+v, want empty", rec.Old)
	}
	if n := s.EntryCount(PlatformDefault, KindResVersion); n != 1 {
		t.Fatalf("EntryCount = %d, want 1", n)
	}
}

func TestStoreUnchangedRefreshesTimestamp(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(10 * time.Second)

	snap := RecordSnapshot(map[string]any{"asset": "https://cdn.example.com/a?sign=111", "sdkenv": "prod"})
	s.CheckAndAppend(PlatformDefault, KindNetworkConfig, snap, t0)

	// Same config, different signed URL: no change, timestamp refreshed.
	again := RecordSnapshot(map[string]any{"asset": "https://cdn.example.com/a?sign=222", "sdkenv": "prod"})
	rec := s.CheckAndAppend(PlatformDefault, KindNetworkConfig, again, t1)
	if rec.Changed || rec.First {
		t.Fatalf("rec = %+v, want unchanged", rec)
	}
	if n := s.EntryCount(PlatformDefault, KindNetworkConfig); n != 1 {
		t.Fatalf("EntryCount = %d, want 1", n)
	}
	_, at, ok := s.Latest(PlatformDefault, KindNetworkConfig)
	if !ok || !at.Equal(t1) {
		t.Fatalf("Latest time = %v (ok=%v), want %v", at, ok, t1)
	}
}

func TestStoreChangeAppendsAndRepoints(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	now := time.Now()
	s.CheckAndAppend(PlatformAndroid, KindResVersion, RecordSnapshot(map[string]any{"version": "1.0.0"}), now)

	rec := s.CheckAndAppend(PlatformAndroid, KindResVersion, RecordSnapshot(map[string]any{"version": "1.0.1"}), now.Add(time.Minute))
	if !rec.Changed || rec.First {
		t.Fatalf("rec = %+v, want changed non-first", rec)
	}
	if rec.Old.StringField("version") != "1.0.0" {
		t.Fatalf("Old version = %q", rec.Old.StringField("version"))
	}
	if n := s.EntryCount(PlatformAndroid, KindResVersion); n != 2 {
		t.Fatalf("EntryCount = %d, want 2 (append-only)", n)
	}
	latest, _, _ := s.Latest(PlatformAndroid, KindResVersion)
	if latest.StringField("version") != "1.0.1" {
		t.Fatalf("Latest version = %q", latest.StringField("version"))
	}
}

func TestStoreErrorTransitionsAreChanges(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	now := time.Now()
	ok := RecordSnapshot(map[string]any{"version": "1.0.0"})
	errA := ErrorSnapshot(RemoteError{Code: 5004, Reason: "RESOURCE_NOT_FOUND", Message: "gone"})
	errB := ErrorSnapshot(RemoteError{Code: 5004, Reason: "RESOURCE_NOT_FOUND", Message: "gone"})
	errC := ErrorSnapshot(RemoteError{Code: 500, Reason: "INTERNAL", Message: "boom"})

	s.CheckAndAppend(PlatformDefault, KindResVersion, ok, now)
	if rec := s.CheckAndAppend(PlatformDefault, KindResVersion, errA, now); !rec.Changed {
		t.Fatal("value to error must be a change")
	}
	if rec := s.CheckAndAppend(PlatformDefault, KindResVersion, errB, now); rec.Changed {
		t.Fatal("identical error must not be a change")
	}
	if rec := s.CheckAndAppend(PlatformDefault, KindResVersion, errC, now); !rec.Changed {
		t.Fatal("error detail change must be a change")
	}
	if rec := s.CheckAndAppend(PlatformDefault, KindResVersion, ok, now); !rec.Changed {
		t.Fatal("error to value (recovery) must be a change")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	s1 := OpenStore(path, logx.Nop())
	s1.CheckAndAppend(PlatformDefault, KindServerConfig, RecordSnapshot(map[string]any{"addr": "cn.example.com", "port": float64(443)}), time.Now())

	s2 := OpenStore(path, logx.Nop())
	snap, _, ok := s2.Latest(PlatformDefault, KindServerConfig)
	if !ok {
		t.Fatal("reopened store lost the latest snapshot")
	}
	if snap.StringField("addr") != "cn.example.com" {
		t.Fatalf("addr = %q", snap.StringField("addr"))
	}
	// Reopen + identical fetch must not look like a change.
	rec := s2.CheckAndAppend(PlatformDefault, KindServerConfig, RecordSnapshot(map[string]any{"addr": "cn.example.com", "port": float64(443)}), time.Now())
	if rec.Changed {
		t.Fatal("identical snapshot after reopen flagged as change")
	}
}

func TestStoreEmptyMapStableAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	s1 := OpenStore(path, logx.Nop())
	s1.CheckAndAppend(PlatformDefault, KindGameConfig, MapSnapshot(map[string]any{}), time.Now())

	// An empty map must survive the persist/reload round trip without looking
	// like a change on the next tick.
	s2 := OpenStore(path, logx.Nop())
	rec := s2.CheckAndAppend(PlatformDefault, KindGameConfig, MapSnapshot(map[string]any{}), time.Now())
	if rec.Changed || rec.First {
		t.Fatalf("rec = %+v, want unchanged", rec)
	}
	if n := s2.EntryCount(PlatformDefault, KindGameConfig); n != 1 {
		t.Fatalf("EntryCount = %d, want 1", n)
	}
}

func TestStoreCorruptFileResets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := OpenStore(path, logx.Nop())
	if n := s.EntryCount(PlatformDefault, KindResVersion); n != 0 {
		t.Fatalf("EntryCount = %d, want 0 after reset", n)
	}
	rec := s.CheckAndAppend(PlatformDefault, KindResVersion, RecordSnapshot(map[string]any{"version": "1.0.0"}), time.Now())
	if !rec.First {
		t.Fatal("post-reset observation must be a fresh baseline")
	}
}
