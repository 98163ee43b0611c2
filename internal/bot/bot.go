package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"endwatch/internal/storage"
	"endwatch/internal/transport"
	"endwatch/internal/watcher"
	"endwatch/pkg/logx"
)

// Service wires inbound commands to the watcher and fans change messages out
// to subscribed chats.
type Service struct {
	log     logx.Logger
	adapter transport.Adapter
	subs    storage.Store
	checker *watcher.Checker

	limiter *rate.Limiter
	jitter  func() time.Duration

	inbound chan transport.Message
}

func New(log logx.Logger, adapter transport.Adapter, subs storage.Store, checker *watcher.Checker) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		adapter: adapter,
		subs:    subs,
		checker: checker,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		// Small random pause between subscriber sends on top of the limiter.
		jitter: func() time.Duration {
			return 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
		},
		inbound: make(chan transport.Message, 64),
	}
}

// Start begins consuming inbound messages. The adapter's own long-poll loop
// is started by the caller with the same channel.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-s.inbound:
				s.handle(ctx, msg)
			}
		}
	}()
}

func (s *Service) Inbound() chan transport.Message { return s.inbound }

func (s *Service) handle(ctx context.Context, msg transport.Message) {
	cmd, arg := splitCommand(msg.Text)
	var reply string

	switch cmd {
	case "/subscribe":
		reply = s.cmdSubscribe(ctx, msg)
	case "/unsubscribe":
		reply = s.cmdUnsubscribe(ctx, msg)
	case "/status":
		reply = s.cmdStatus()
	case "/check":
		reply = s.cmdCheck(ctx)
	case "/version":
		reply = s.cmdVersion(arg)
	case "/network":
		reply = s.cmdNetwork()
	default:
		return
	}

	if err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, reply, nil); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func (s *Service) cmdSubscribe(ctx context.Context, msg transport.Message) string {
	added, err := s.subs.Add(ctx, storage.Subscription{
		ChatID:  msg.ChatID,
		Title:   msg.ChatTitle,
		AddedAt: time.Now(),
	})
	if err != nil {
		s.log.Error("subscribe failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return "Subscription failed, try again later."
	}
	if !added {
		return "This chat is already subscribed."
	}
	s.log.Info("chat subscribed", logx.Int64("chat_id", msg.ChatID), logx.String("title", msg.ChatTitle))
	return "Subscribed. Config change notifications will be delivered here."
}

func (s *Service) cmdUnsubscribe(ctx context.Context, msg transport.Message) string {
	removed, err := s.subs.Remove(ctx, msg.ChatID)
	if err != nil {
		s.log.Error("unsubscribe failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return "Unsubscribe failed, try again later."
	}
	if !removed {
		return "This chat was not subscribed."
	}
	s.log.Info("chat unsubscribed", logx.Int64("chat_id", msg.ChatID))
	return "Unsubscribed."
}

func (s *Service) cmdStatus() string {
	var b strings.Builder
	b.WriteString("Watcher status\n")
	for _, p := range s.checker.Platforms() {
		fmt.Fprintf(&b, "\n%s:\n", p.DisplayName())
		for _, kind := range watcher.Kinds {
			snap, at, ok := s.checker.Store().Latest(p, kind)
			if !ok {
				fmt.Fprintf(&b, "  %s: no data yet\n", kind)
				continue
			}
			n := s.checker.Store().EntryCount(p, kind)
			state := "ok"
			if snap.IsError() {
				state = "error " + snap.Err.String()
			}
			fmt.Fprintf(&b, "  %s: %s, %d versions, last %s\n",
				kind, state, n, at.Format("2006-01-02 15:04:05"))
		}
	}
	return b.String()
}

func (s *Service) cmdCheck(ctx context.Context) string {
	msgs := s.checker.RunTick(ctx)
	if len(msgs) == 0 {
		return "Checked all platforms: no changes."
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Text)
	}
	go s.Broadcast(ctx, msgs)
	return strings.Join(parts, "\n\n")
}

func (s *Service) cmdVersion(arg string) string {
	platform := watcher.PlatformDefault
	if strings.EqualFold(arg, "android") {
		platform = watcher.PlatformAndroid
	}
	snap, at, ok := s.checker.Store().Latest(platform, watcher.KindLauncherVersion)
	if !ok {
		return fmt.Sprintf("No client version recorded for %s yet.", platform.DisplayName())
	}
	if snap.IsError() {
		return fmt.Sprintf("%s client version endpoint erroring: %s", platform.DisplayName(), snap.Err.String())
	}
	version := snap.StringField("version")
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("%s client version: %s (as of %s)",
		platform.DisplayName(), version, at.Format("2006-01-02 15:04:05"))
}

func (s *Service) cmdNetwork() string {
	snap, at, ok := s.checker.Store().Latest(watcher.ReferencePlatform, watcher.KindNetworkConfig)
	if !ok {
		return "No network config recorded yet."
	}
	if snap.IsError() {
		return "Network config endpoint erroring: " + snap.Err.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Network config (as of %s)\n", at.Format("2006-01-02 15:04:05"))
	for _, line := range watcher.FormatSnapshot(snap) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Broadcast delivers each message to every subscriber, rate limited with a
// small jitter between sends. Failures are logged per chat and never abort
// the fan-out.
func (s *Service) Broadcast(ctx context.Context, msgs []watcher.OutMessage) {
	if len(msgs) == 0 {
		return
	}
	subs, err := s.subs.List(ctx)
	if err != nil {
		s.log.Error("subscriber list failed", logx.Err(err))
		return
	}
	if len(subs) == 0 {
		s.log.Debug("changes detected but no subscribers")
		return
	}

	sent, failed := 0, 0
	for _, m := range msgs {
		for _, sub := range subs {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: sub.ChatID}, m.Text, &transport.SendOptions{DisablePreview: true})
			if err != nil {
				failed++
				s.log.Warn("notification send failed", logx.Int64("chat_id", sub.ChatID), logx.Err(err))
			} else {
				sent++
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.jitter()):
			}
		}
	}
	s.log.Info("broadcast done",
		logx.Int("messages", len(msgs)), logx.Int("sent", sent), logx.Int("failed", failed))
}

// BroadcastBulletins renders fresh announcements and fans them out.
func (s *Service) BroadcastBulletins(ctx context.Context, details []watcher.BulletinDetail) {
	msgs := make([]watcher.OutMessage, 0, len(details))
	for _, d := range details {
		title := d.Title
		if title == "" {
			title = d.Header
		}
		msgs = append(msgs, watcher.OutMessage{
			Text: fmt.Sprintf("📣 New announcement\n%s", title),
		})
	}
	s.Broadcast(ctx, msgs)
}

func splitCommand(text string) (cmd, arg string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", ""
	}
	cmd = fields[0]
	// Strip the @botname suffix used in group chats.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return strings.ToLower(cmd), arg
}
