package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"endwatch/pkg/logx"
)

const remoteConfigBase = "https://game-config.hypergryph.com/api/remote_config/get_remote_config/3/prod-cbt/default"

// kindURLs are the per-kind endpoint templates. {device} is the platform;
// res_version additionally needs {version} and {rand_str} from the resolver.
var kindURLs = map[ConfigKind]string{
	KindNetworkConfig:   remoteConfigBase + "/{device}/network_config",
	KindGameConfig:      remoteConfigBase + "/{device}/game_config",
	KindResVersion:      remoteConfigBase + "/{device}/res_version?version={version}&rand_str={rand_str}",
	KindServerConfig:    remoteConfigBase + "/{device}/server_config_China",
	KindLauncherVersion: "https://launcher.hypergryph.com/api/game/get_latest?appcode=CAdYGoQmEUZnxXGf&channel=1",
}

// maybeEncrypted marks the kinds whose body sometimes arrives AES-encrypted
// instead of plain JSON. The others have always been plain upstream.
var maybeEncrypted = map[ConfigKind]bool{
	KindNetworkConfig: true,
	KindGameConfig:    true,
}

// ResolvedParams are the dependent parameters required by the res_version
// endpoint, derived from the launcher descriptor (see Resolver).
type ResolvedParams struct {
	Version string
	RandStr string
}

// Fetcher retrieves and decodes remote configuration.
type Fetcher struct {
	log     logx.Logger
	http    *resty.Client
	oversea bool
}

func NewFetcher(log logx.Logger, timeout time.Duration, oversea bool) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		log:     log,
		http:    resty.New().SetTimeout(timeout),
		oversea: oversea,
	}
}

// BuildURL expands a kind's URL template. params may be nil for kinds that
// don't need dependent parameters.
func BuildURL(kind ConfigKind, platform Platform, params *ResolvedParams) string {
	u := kindURLs[kind]
	u = strings.ReplaceAll(u, "{device}", string(platform))
	if params != nil {
		u = strings.ReplaceAll(u, "{version}", url.QueryEscape(params.Version))
		u = strings.ReplaceAll(u, "{rand_str}", url.QueryEscape(params.RandStr))
	}
	return u
}

// Fetch retrieves one (kind, platform) snapshot.
//
// The bool result distinguishes "got a snapshot" from a transport-level
// failure (timeout, connection error, non-2xx without a decodable body):
// transport failures produce no snapshot, are not persisted and are simply
// retried next tick. A decodable failure body, by contrast, becomes a
// RemoteError snapshot and is historized like any other value.
func (f *Fetcher) Fetch(ctx context.Context, kind ConfigKind, platform Platform, params *ResolvedParams) (Snapshot, bool) {
	u := BuildURL(kind, platform, params)

	resp, err := f.http.R().SetContext(ctx).Get(u)
	if err != nil {
		f.log.Warn("config fetch failed",
			logx.String("kind", string(kind)),
			logx.String("platform", string(platform)),
			logx.Err(err))
		return Snapshot{}, false
	}

	body := resp.Body()
	jsonBody, ok := f.classifyBody(kind, body)
	if !ok {
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			f.log.Warn("config fetch rejected",
				logx.String("kind", string(kind)),
				logx.String("platform", string(platform)),
				logx.Int("status", resp.StatusCode()))
			return Snapshot{}, false
		}
		// 2xx with an unintelligible body: make it a diffable error value.
		return DecodeSnapshot(kind, body), true
	}

	return DecodeSnapshot(kind, jsonBody), true
}

// classifyBody detects the payload layer: plain JSON first, then (for the
// kinds that are sometimes encrypted) the base64 AES text-config path.
func (f *Fetcher) classifyBody(kind ConfigKind, body []byte) ([]byte, bool) {
	trimmed := []byte(strings.TrimSpace(string(body)))
	if len(trimmed) == 0 {
		return nil, false
	}
	if json.Valid(trimmed) {
		return trimmed, true
	}
	if !maybeEncrypted[kind] {
		return nil, false
	}
	plain, err := DecryptConfigText(string(trimmed), f.oversea)
	if err != nil {
		f.log.Debug("encrypted payload decrypt failed", logx.String("kind", string(kind)), logx.Err(err))
		return nil, false
	}
	if !json.Valid(plain) {
		return nil, false
	}
	return plain, true
}

// GetRaw issues a plain GET and returns the body, for the ancillary binary
// endpoint used by the resolver.
func (f *Fetcher) GetRaw(ctx context.Context, u string) ([]byte, error) {
	resp, err := f.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode())
	}
	return resp.Body(), nil
}
