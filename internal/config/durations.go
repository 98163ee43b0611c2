package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations is every duration-string field of Config parsed once, with this
// bot's defaults applied. Resolving up front means the watcher, scheduler and
// storage wiring never see a raw string.
type Durations struct {
	// PollTimeout bounds one Telegram long-poll request.
	PollTimeout time.Duration
	// WatchInterval is the config-check tick period.
	WatchInterval time.Duration
	// RequestTimeout bounds one remote-config or bulletin HTTP request.
	RequestTimeout time.Duration
	// BulletinInterval is the announcement poll period.
	BulletinInterval time.Duration
	// BusyTimeout is the sqlite busy timeout; zero keeps the driver default.
	BusyTimeout time.Duration
}

// ResolveDurations validates and applies defaults to every duration field.
// An omitted (or "0") field falls back to its default; a negative or
// unparseable value is a configuration error.
func (c *Config) ResolveDurations() (Durations, error) {
	var d Durations
	var err error
	if d.PollTimeout, err = durationField("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return Durations{}, err
	}
	if d.WatchInterval, err = durationField("watcher.interval", c.Watcher.Interval, 10*time.Second); err != nil {
		return Durations{}, err
	}
	if d.RequestTimeout, err = durationField("watcher.request_timeout", c.Watcher.RequestTimeout, 30*time.Second); err != nil {
		return Durations{}, err
	}
	if d.BusyTimeout, err = durationField("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		return Durations{}, err
	}

	d.BulletinInterval = 60 * time.Second
	if c.Bulletin != nil {
		v, err := durationField("bulletin.interval", c.Bulletin.Interval, d.BulletinInterval)
		if err != nil {
			return Durations{}, err
		}
		d.BulletinInterval = v
	}
	return d, nil
}

func durationField(name, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: cannot parse %q as a duration: %w", name, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", name, raw)
	}
	if v == 0 {
		return def, nil
	}
	return v, nil
}
