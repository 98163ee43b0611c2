package watcher

import (
	"strings"
	"testing"

	"endwatch/pkg/logx"
)

func TestBuildURLExpandsDevice(t *testing.T) {
	t.Parallel()
	u := BuildURL(KindNetworkConfig, PlatformAndroid, nil)
	// The config endpoints address the mobile client with the lowercase
	// device segment; "Android" is only the display name.
	if !strings.Contains(u, "/android/network_config") {
		t.Fatalf("url = %s", u)
	}
	if strings.Contains(u, "{device}") {
		t.Fatalf("unexpanded template: %s", u)
	}

	u = BuildURL(KindServerConfig, PlatformDefault, nil)
	if !strings.Contains(u, "/default/server_config_China") {
		t.Fatalf("url = %s", u)
	}
}

func TestBuildURLResVersionParams(t *testing.T) {
	t.Parallel()
	u := BuildURL(KindResVersion, PlatformDefault, &ResolvedParams{Version: "1.0.0", RandStr: "a b+c"})
	if !strings.Contains(u, "version=1.0.0") {
		t.Fatalf("url = %s", u)
	}
	// Dependent parameters must be query-escaped.
	if !strings.Contains(u, "rand_str=a+b%2Bc") {
		t.Fatalf("url = %s", u)
	}
}

func TestBuildURLLauncherIsFixed(t *testing.T) {
	t.Parallel()
	a := BuildURL(KindLauncherVersion, PlatformDefault, nil)
	b := BuildURL(KindLauncherVersion, PlatformAndroid, nil)
	if a != b {
		t.Fatalf("launcher url varies by platform: %s vs %s", a, b)
	}
	if !strings.Contains(a, "launcher.hypergryph.com") {
		t.Fatalf("url = %s", a)
	}
}

func TestClassifyBodyPlainJSONWins(t *testing.T) {
	t.Parallel()
	f := NewFetcher(logx.Nop(), 0, false)
	body, ok := f.classifyBody(KindNetworkConfig, []byte(`  {"sdkenv":"prod"}  `))
	if !ok {
		t.Fatal("plain JSON rejected")
	}
	if string(body) != `{"sdkenv":"prod"}` {
		t.Fatalf("body = %q", body)
	}
}

func TestClassifyBodyRejectsGarbage(t *testing.T) {
	t.Parallel()
	f := NewFetcher(logx.Nop(), 0, false)
	if _, ok := f.classifyBody(KindServerConfig, []byte("not json, not base64 either")); ok {
		t.Fatal("garbage accepted for a plain-only kind")
	}
	if _, ok := f.classifyBody(KindNetworkConfig, []byte("")); ok {
		t.Fatal("empty body accepted")
	}
}
