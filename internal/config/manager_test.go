package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc"},
		"logging": {"level": "debug", "console": true},
		"watcher": {"interval": "30s", "platforms": ["default"], "oversea": true},
		"storage": {"driver": "file", "path": "./data/subs.json"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Watcher.Interval != "30s" || !cfg.Watcher.Oversea {
		t.Fatalf("watcher = %+v", cfg.Watcher)
	}
	if !cfg.Watcher.IsEnabled() {
		t.Fatal("omitted watcher.enabled must default to true")
	}
	if cfg.Bulletin != nil {
		t.Fatal("omitted bulletin section must stay nil")
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
watcher:
  enabled: false
  platforms:
    - default
    - android
bulletin:
  enabled: true
  interval: 90s
storage:
  driver: none
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watcher.IsEnabled() {
		t.Fatal("explicit watcher.enabled=false ignored")
	}
	if len(cfg.Watcher.Platforms) != 2 || cfg.Watcher.Platforms[1] != "android" {
		t.Fatalf("platforms = %v", cfg.Watcher.Platforms)
	}
	if cfg.Bulletin == nil || !cfg.Bulletin.Enabled || cfg.Bulletin.Interval != "90s" {
		t.Fatalf("bulletin = %+v", cfg.Bulletin)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}, "tpyo": true}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}

	path = writeConfig(t, "config2.json", `{"watcher": {"intrval": "10s"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown nested field accepted")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}{"again": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestResolveDurationsDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	d, err := cfg.ResolveDurations()
	if err != nil {
		t.Fatalf("ResolveDurations: %v", err)
	}
	if d.PollTimeout != 10*time.Second {
		t.Fatalf("PollTimeout = %v", d.PollTimeout)
	}
	if d.WatchInterval != 10*time.Second {
		t.Fatalf("WatchInterval = %v", d.WatchInterval)
	}
	if d.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout = %v", d.RequestTimeout)
	}
	if d.BulletinInterval != 60*time.Second {
		t.Fatalf("BulletinInterval = %v", d.BulletinInterval)
	}
	if d.BusyTimeout != 0 {
		t.Fatalf("BusyTimeout = %v", d.BusyTimeout)
	}
}

func TestResolveDurationsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Watcher:  WatcherConfig{Interval: "90s", RequestTimeout: "5s"},
		Bulletin: &BulletinConfig{Enabled: true, Interval: "2m"},
		Storage:  StorageConfig{BusyTimeout: "250ms"},
	}
	d, err := cfg.ResolveDurations()
	if err != nil {
		t.Fatalf("ResolveDurations: %v", err)
	}
	if d.WatchInterval != 90*time.Second {
		t.Fatalf("WatchInterval = %v", d.WatchInterval)
	}
	if d.RequestTimeout != 5*time.Second {
		t.Fatalf("RequestTimeout = %v", d.RequestTimeout)
	}
	if d.BulletinInterval != 2*time.Minute {
		t.Fatalf("BulletinInterval = %v", d.BulletinInterval)
	}
	if d.BusyTimeout != 250*time.Millisecond {
		t.Fatalf("BusyTimeout = %v", d.BusyTimeout)
	}
}

func TestResolveDurationsRejectsBadValues(t *testing.T) {
	t.Parallel()
	cfg := Config{Watcher: WatcherConfig{Interval: "ten seconds"}}
	if _, err := cfg.ResolveDurations(); err == nil {
		t.Fatal("unparseable duration accepted")
	}

	cfg = Config{Watcher: WatcherConfig{Interval: "-5s"}}
	if _, err := cfg.ResolveDurations(); err == nil {
		t.Fatal("negative duration accepted")
	}

	// A "0" field falls back to its default rather than erroring.
	cfg = Config{Watcher: WatcherConfig{Interval: "0s"}}
	d, err := cfg.ResolveDurations()
	if err != nil || d.WatchInterval != 10*time.Second {
		t.Fatalf("zero interval: %v, %v", d.WatchInterval, err)
	}
}
