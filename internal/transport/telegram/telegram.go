package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"endwatch/internal/transport"
	"endwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter wraps a telebot long-poll bot behind transport.Adapter.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- transport.Message)

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.forward(transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ChatTitle:    chatTitle(m.Chat),
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		})
		return nil
	})
}

func chatTitle(c *tele.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (a *Adapter) forward(msg transport.Message) {
	v := a.out.Load()
	ch, _ := v.(chan<- transport.Message)
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
		// Consumer slower than the poll loop; drop rather than block telebot.
		a.log.Debug("inbound message dropped (consumer busy)", logx.Int64("chat_id", msg.ChatID))
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return errors.New("telegram adapter already started")
	}
	a.out.Store(out)
	a.running = true
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		a.log.Info("telegram adapter started", logx.String("bot", a.bot.Me.Username))
		a.bot.Start()
	}()
	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	done := a.done
	a.runMu.Unlock()

	a.bot.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	_ = ctx // telebot manages its own request timeouts
	sendOpt := &tele.SendOptions{}
	if opt != nil && opt.DisablePreview {
		sendOpt.DisableWebPagePreview = true
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOpt)
	return err
}
