package watcher

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"endwatch/pkg/logx"
)

// ErrPlatformBusy marks a tick skipped because the previous tick for the
// same platform is still in flight.
var ErrPlatformBusy = errors.New("platform check still running")

// Checker drives one fetch→diff→persist pass per platform and composes the
// batch into outbound messages.
//
// Within a platform the five kinds have a partial order: the launcher
// descriptor (and the token derived from it) must land before res_version;
// the remaining three kinds run concurrently. Platforms themselves run
// concurrently, each behind its own reentrancy guard.
type Checker struct {
	log       logx.Logger
	fetcher   *Fetcher
	resolver  *Resolver
	store     *Store
	platforms []Platform

	mu   sync.Mutex
	busy map[Platform]bool
}

func NewChecker(log logx.Logger, fetcher *Fetcher, resolver *Resolver, store *Store, platforms []Platform) *Checker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if len(platforms) == 0 {
		platforms = []Platform{PlatformDefault, PlatformAndroid}
	}
	return &Checker{
		log:       log,
		fetcher:   fetcher,
		resolver:  resolver,
		store:     store,
		platforms: platforms,
		busy:      map[Platform]bool{},
	}
}

func (c *Checker) Platforms() []Platform { return c.platforms }

func (c *Checker) Store() *Store { return c.store }

func (c *Checker) tryAcquire(p Platform) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[p] {
		return false
	}
	c.busy[p] = true
	return true
}

func (c *Checker) release(p Platform) {
	c.mu.Lock()
	c.busy[p] = false
	c.mu.Unlock()
}

// RunTick checks every platform and returns the composed messages for the
// whole batch. One platform's failure degrades it to "no changes" and never
// aborts the others.
func (c *Checker) RunTick(ctx context.Context) []OutMessage {
	results := make([]PlatformResult, len(c.platforms))

	var wg sync.WaitGroup
	for i, p := range c.platforms {
		wg.Add(1)
		go func(i int, p Platform) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("panic checking platform",
						logx.String("platform", string(p)),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
					results[i] = PlatformResult{Platform: p}
				}
			}()
			res, err := c.CheckPlatform(ctx, p)
			if err != nil {
				if !errors.Is(err, ErrPlatformBusy) {
					c.log.Warn("platform check failed", logx.String("platform", string(p)), logx.Err(err))
				}
				results[i] = PlatformResult{Platform: p}
				return
			}
			results[i] = res
		}(i, p)
	}
	wg.Wait()

	return ComposeBatch(results)
}

// CheckPlatform runs the per-platform pipeline:
// FETCH → NORMALIZE_AND_DIFF → PERSIST → (SUPPRESS_IF_FIRST) → COLLECT.
// A kind whose fetch fails at the transport level is skipped for this tick.
func (c *Checker) CheckPlatform(ctx context.Context, platform Platform) (PlatformResult, error) {
	if !c.tryAcquire(platform) {
		c.log.Debug("tick skipped; previous check still running", logx.String("platform", platform.DisplayName()))
		return PlatformResult{}, ErrPlatformBusy
	}
	defer c.release(platform)

	res := PlatformResult{
		Platform: platform,
		Records:  map[ConfigKind]ChangeRecord{},
	}
	var resMu sync.Mutex
	record := func(kind ConfigKind, rec ChangeRecord) {
		resMu.Lock()
		res.Records[kind] = rec
		resMu.Unlock()
	}

	checkKind := func(kind ConfigKind, params *ResolvedParams) {
		snap, ok := c.fetcher.Fetch(ctx, kind, platform, params)
		if !ok {
			return // transport failure: not persisted, retried next tick
		}
		record(kind, c.store.CheckAndAppend(platform, kind, snap, time.Now()))
	}

	var wg sync.WaitGroup

	// The three kinds independent of the launcher chain.
	for _, kind := range []ConfigKind{KindNetworkConfig, KindGameConfig, KindServerConfig} {
		wg.Add(1)
		go func(kind ConfigKind) {
			defer wg.Done()
			checkKind(kind, nil)
		}(kind)
	}

	// The dependent chain: launcher descriptor first, then the token, then
	// res_version. A resolution failure degrades only res_version; the four
	// other kinds are already on their way.
	wg.Add(1)
	go func() {
		defer wg.Done()

		launcher, ok := c.fetcher.Fetch(ctx, KindLauncherVersion, platform, nil)
		if ok {
			record(KindLauncherVersion, c.store.CheckAndAppend(platform, KindLauncherVersion, launcher, time.Now()))
		}

		params, err := c.resolver.Resolve(ctx, platform, launcher)
		if err != nil {
			c.log.Debug("res_version check skipped",
				logx.String("platform", string(platform)), logx.Err(err))
			return
		}
		checkKind(KindResVersion, &params)
	}()

	wg.Wait()
	return res, nil
}
