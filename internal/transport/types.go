package transport

import "context"

// Message is an inbound chat message, normalized across adapters.
type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	DisablePreview bool
}

// Adapter is the delivery boundary. The watcher core only hands rendered
// text to it; delivery is best-effort, at most once per detected change.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
