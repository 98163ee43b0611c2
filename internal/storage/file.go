package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"endwatch/pkg/logx"
)

// fileStore keeps the whole registry in memory and rewrites a single JSON
// snapshot on every mutation (tmp + rename, so a crash never leaves a torn
// file). Subscription lists are tiny; durability beats cleverness here.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	subs map[int64]Subscription
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, subs: map[int64]Subscription{}}
	if err := s.load(); err != nil {
		// A corrupt registry is not fatal: start empty, keep the bad file aside.
		log.Warn("subscription file unreadable; starting empty", logx.String("path", path), logx.Err(err))
		_ = os.Rename(path, path+".corrupt")
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(b) == 0 {
		return nil
	}
	var list []Subscription
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, sub := range list {
		s.subs[sub.ChatID] = sub
	}
	return nil
}

func (s *fileStore) persistLocked() error {
	list := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		list = append(list, sub)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChatID < list[j].ChatID })

	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Add(ctx context.Context, sub Subscription) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ChatID]; ok {
		return false, nil
	}
	s.subs[sub.ChatID] = sub
	if err := s.persistLocked(); err != nil {
		delete(s.subs, sub.ChatID)
		return false, err
	}
	return true, nil
}

func (s *fileStore) Remove(ctx context.Context, chatID int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.subs[chatID]
	if !ok {
		return false, nil
	}
	delete(s.subs, chatID)
	if err := s.persistLocked(); err != nil {
		s.subs[chatID] = old
		return false, err
	}
	return true, nil
}

func (s *fileStore) List(ctx context.Context) ([]Subscription, error) {
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

func (s *fileStore) Close() error { return nil }
