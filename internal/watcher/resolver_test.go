package watcher

import (
	"context"
	"errors"
	"testing"

	"endwatch/pkg/logx"
)

func TestResolveNonReferenceWithoutCache(t *testing.T) {
	t.Parallel()
	r := NewResolver(logx.Nop(), nil)
	_, err := r.Resolve(context.Background(), PlatformAndroid, Snapshot{})
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestResolveFailsOnBadLauncherDescriptor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		launcher Snapshot
	}{
		{name: "empty", launcher: EmptySnapshot()},
		{name: "error shape", launcher: ErrorSnapshot(RemoteError{Code: 500})},
		{name: "no version", launcher: RecordSnapshot(map[string]any{"request_version": "1.0"})},
		{name: "no package path", launcher: RecordSnapshot(map[string]any{"version": "1.0.0"})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(logx.Nop(), nil)
			_, err := r.Resolve(context.Background(), ReferencePlatform, tt.launcher)
			if !errors.Is(err, ErrNoToken) {
				t.Fatalf("err = %v, want ErrNoToken", err)
			}
		})
	}
}

func TestResolveUsesCacheAcrossPlatforms(t *testing.T) {
	t.Parallel()
	r := NewResolver(logx.Nop(), nil)
	r.cached = &ResolvedParams{Version: "1.0.0", RandStr: "tok"}

	for _, p := range []Platform{PlatformDefault, PlatformAndroid} {
		got, err := r.Resolve(context.Background(), p, Snapshot{})
		if err != nil {
			t.Fatalf("Resolve(%s): %v", p, err)
		}
		if got.Version != "1.0.0" || got.RandStr != "tok" {
			t.Fatalf("Resolve(%s) = %+v", p, got)
		}
	}
}

func TestPackagePathPrefersPathAndStripsQuery(t *testing.T) {
	t.Parallel()
	s := RecordSnapshot(map[string]any{
		"version": "1.0.0",
		"pkg": map[string]any{
			"path": "https://dl.example.com/client/pkg?sign=abc",
			"url":  "https://dl.example.com/other",
		},
	})
	if got := packagePath(s); got != "https://dl.example.com/client/pkg" {
		t.Fatalf("packagePath = %q", got)
	}

	s = RecordSnapshot(map[string]any{
		"pkg": map[string]any{"web_url": "https://dl.example.com/web?x=1"},
	})
	if got := packagePath(s); got != "https://dl.example.com/web" {
		t.Fatalf("packagePath fallback = %q", got)
	}

	if got := packagePath(RecordSnapshot(map[string]any{"pkg": map[string]any{}})); got != "" {
		t.Fatalf("packagePath empty pkg = %q", got)
	}
}
