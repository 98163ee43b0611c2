package core

import (
	"context"
	"fmt"
	"time"

	"endwatch/internal/bot"
	"endwatch/internal/config"
	"endwatch/internal/scheduler"
	"endwatch/internal/storage"
	"endwatch/internal/transport/telegram"
	"endwatch/internal/watcher"
	"endwatch/pkg/logx"
)

// App owns every service and wires them together at startup.
type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	subs    storage.Store
	checker *watcher.Checker
	bull    *watcher.BulletinWatcher
	sched   *scheduler.Service
	bot     *bot.Service

	stopWatch context.CancelFunc
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	durs, err := cfg.ResolveDurations()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logCfg(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: durs.PollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	subs, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: durs.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open subscription store: %w", err)
	}

	historyFile := cfg.Watcher.HistoryFile
	if historyFile == "" {
		historyFile = "./data/config_history.json"
	}

	wlog := log.With(logx.String("comp", "watcher"))
	fetcher := watcher.NewFetcher(wlog, durs.RequestTimeout, cfg.Watcher.Oversea)
	resolver := watcher.NewResolver(wlog, fetcher)
	store := watcher.OpenStore(historyFile, wlog)
	checker := watcher.NewChecker(wlog, fetcher, resolver, store, platforms(cfg.Watcher.Platforms))

	var bull *watcher.BulletinWatcher
	if cfg.Bulletin != nil && cfg.Bulletin.Enabled {
		aggFile := cfg.Bulletin.AggregateFile
		if aggFile == "" {
			aggFile = "./data/bulletin.aggregate.json"
		}
		bull = watcher.NewBulletinWatcher(log.With(logx.String("comp", "bulletin")), durs.RequestTimeout, aggFile)
	}

	app := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.String("comp", "app")),
		adapter: adapter,
		subs:    subs,
		checker: checker,
		bull:    bull,
		sched:   scheduler.New(log.With(logx.String("comp", "scheduler"))),
		bot:     bot.New(log.With(logx.String("comp", "bot")), adapter, subs, checker),
	}
	if err := app.registerJobs(cfg, durs); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) registerJobs(cfg *config.Config, durs config.Durations) error {
	if cfg.Watcher.IsEnabled() {
		err := a.sched.Every("watcher", durs.WatchInterval, 2*time.Minute, func(ctx context.Context) error {
			msgs := a.checker.RunTick(ctx)
			a.bot.Broadcast(ctx, msgs)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if a.bull != nil {
		err := a.sched.Every("bulletin", durs.BulletinInterval, 2*time.Minute, func(ctx context.Context) error {
			fresh, err := a.bull.Check(ctx)
			if err != nil {
				return err
			}
			a.bot.BroadcastBulletins(ctx, fresh)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.bot.Start(ctx)
	if err := a.adapter.Start(ctx, a.bot.Inbound()); err != nil {
		return err
	}
	a.sched.Start(ctx)

	// Live reload: only the logging section applies without restart.
	// Watch blocks until its context is cancelled, so it gets its own goroutine.
	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	go func() {
		if err := a.cfgm.Watch(watchCtx, func(cfg *config.Config) {
			a.logs.Apply(logCfg(cfg))
			a.log.Info("logging config reapplied")
		}); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.sched.Stop()
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if err := a.subs.Close(); err != nil {
		a.log.Warn("subscription store close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func platforms(names []string) []watcher.Platform {
	out := make([]watcher.Platform, 0, len(names))
	for _, n := range names {
		out = append(out, watcher.Platform(n))
	}
	return out
}
