package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"endwatch/pkg/logx"
)

func openTestFileStore(t *testing.T, path string) Store {
	t.Helper()
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestFileStoreAddRemoveList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestFileStore(t, filepath.Join(t.TempDir(), "subs.json"))

	added, err := s.Add(ctx, Subscription{ChatID: 42, Title: "ops", AddedAt: time.Now()})
	if err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	added, err = s.Add(ctx, Subscription{ChatID: 42, Title: "ops again"})
	if err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if added {
		t.Fatal("duplicate Add reported as new")
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ChatID != 42 || list[0].Title != "ops" {
		t.Fatalf("List = %+v", list)
	}

	removed, err := s.Remove(ctx, 42)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = s.Remove(ctx, 42)
	if err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if removed {
		t.Fatal("Remove of absent chat reported true")
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.json")

	s1 := openTestFileStore(t, path)
	for _, id := range []int64{3, 1, 2} {
		if _, err := s1.Add(ctx, Subscription{ChatID: id, AddedAt: time.Now()}); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	s2 := openTestFileStore(t, path)
	list, err := s2.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	// List is sorted by chat id.
	for i, want := range []int64{1, 2, 3} {
		if list[i].ChatID != want {
			t.Fatalf("list[%d] = %d, want %d", i, list[i].ChatID, want)
		}
	}
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.json")
	if err := os.WriteFile(path, []byte("[broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := openTestFileStore(t, path)
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("List = %+v, want empty", list)
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Fatalf("corrupt file not kept aside: %v", err)
	}
}

func TestOpenDriverSelection(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "memory"} {
		s, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if _, err := s.List(context.Background()); err != nil {
			t.Fatalf("List(%q): %v", driver, err)
		}
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path must fail")
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must fail")
	}
}
