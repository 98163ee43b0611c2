package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"endwatch/pkg/logx"
)

// Open initializes the configured store.
// An empty or "none" driver yields a memory-only registry.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none", "memory":
		return newMemStore(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

type memStore struct {
	mu   sync.Mutex
	subs map[int64]Subscription
}

func newMemStore() *memStore {
	return &memStore{subs: map[int64]Subscription{}}
}

func (s *memStore) Add(ctx context.Context, sub Subscription) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ChatID]; ok {
		return false, nil
	}
	s.subs[sub.ChatID] = sub
	return true, nil
}

func (s *memStore) Remove(ctx context.Context, chatID int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[chatID]; !ok {
		return false, nil
	}
	delete(s.subs, chatID)
	return true, nil
}

func (s *memStore) List(ctx context.Context) ([]Subscription, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (s *memStore) Close() error { return nil }
