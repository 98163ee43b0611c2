package watcher

import (
	"context"
	"errors"
	"testing"

	"endwatch/pkg/logx"
)

func TestCheckerPlatformBusyGuard(t *testing.T) {
	t.Parallel()
	c := NewChecker(logx.Nop(), nil, nil, testStore(t), []Platform{PlatformDefault})

	if !c.tryAcquire(PlatformDefault) {
		t.Fatal("first acquire failed")
	}
	_, err := c.CheckPlatform(context.Background(), PlatformDefault)
	if !errors.Is(err, ErrPlatformBusy) {
		t.Fatalf("err = %v, want ErrPlatformBusy", err)
	}
	c.release(PlatformDefault)
	if !c.tryAcquire(PlatformDefault) {
		t.Fatal("acquire after release failed")
	}
	// Busy guards are per platform.
	if !c.tryAcquire(PlatformAndroid) {
		t.Fatal("other platform blocked by unrelated guard")
	}
}

func TestCheckerDefaultPlatforms(t *testing.T) {
	t.Parallel()
	c := NewChecker(logx.Nop(), nil, nil, testStore(t), nil)
	got := c.Platforms()
	if len(got) != 2 || got[0] != PlatformDefault || got[1] != PlatformAndroid {
		t.Fatalf("Platforms = %v", got)
	}
}
