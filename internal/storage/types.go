package storage

import (
	"context"
	"time"
)

// Config configures the subscription registry backend.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", subscriptions live in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscription is one chat that wants update notifications.
type Subscription struct {
	ChatID  int64     `json:"chat_id"`
	Title   string    `json:"title,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Store is the subscription registry.
// Add reports whether the chat was newly added; Remove whether it existed.
type Store interface {
	Add(ctx context.Context, sub Subscription) (bool, error)
	Remove(ctx context.Context, chatID int64) (bool, error)
	List(ctx context.Context) ([]Subscription, error)
	Close() error
}
