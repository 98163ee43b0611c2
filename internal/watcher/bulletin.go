package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"endwatch/pkg/logx"
)

// The bulletin poller is the simple sibling of the config watcher: same
// diff-and-notify shape, no cryptography, no dependent fetches.

const (
	bulletinBase = "https://game-hub.hypergryph.com"
	bulletinGame = "endfield_cbt2"
	bulletinLang = "zh-cn"
)

var bulletinPlatforms = []Platform{PlatformDefault, PlatformAndroid}

// bulletinAggregateURL builds the per-platform listing URL. The bulletin API
// addresses platforms by display name (Windows/Android), not by the device
// segment the config endpoints use.
func bulletinAggregateURL(platform Platform) string {
	return fmt.Sprintf(
		"%s/bulletin/aggregate?lang=%s&platform=%s&server=China&type=1&code=%s&hideDetail=1",
		bulletinBase, bulletinLang, platform.DisplayName(), bulletinGame,
	)
}

// BulletinItem is one entry of the aggregate listing.
type BulletinItem struct {
	CID         string `json:"cid"`
	Type        int    `json:"type"`
	Tab         string `json:"tab"`
	OrderType   int    `json:"orderType"`
	OrderWeight int    `json:"orderWeight"`
	DisplayType string `json:"displayType"`
	StartAt     int64  `json:"startAt"`
	Focus       int    `json:"focus"`
	Title       string `json:"title"`
}

// BulletinTarget is one platform's aggregate listing.
type BulletinTarget struct {
	TopicCID  string         `json:"topicCid"`
	Platform  string         `json:"platform"`
	Version   string         `json:"version"`
	UpdatedAt int64          `json:"updatedAt"`
	List      []BulletinItem `json:"list"`
}

// BulletinDetail is a fetched announcement body.
type BulletinDetail struct {
	CID         string         `json:"cid"`
	Title       string         `json:"title"`
	Header      string         `json:"header"`
	Tab         string         `json:"tab"`
	DisplayType string         `json:"displayType"`
	StartAt     int64          `json:"startAt"`
	Data        map[string]any `json:"data,omitempty"`
}

// bulletinAggregate is the persisted bulletin state: every announcement seen
// (by cid), revised announcements under versioned "cid_N" keys, and the last
// per-platform listing.
type bulletinAggregate struct {
	Data   map[string]BulletinDetail `json:"data"`
	Update map[string]BulletinDetail `json:"update"`
	Target map[string]BulletinTarget `json:"target"`
}

func newBulletinAggregate() bulletinAggregate {
	return bulletinAggregate{
		Data:   map[string]BulletinDetail{},
		Update: map[string]BulletinDetail{},
		Target: map[string]BulletinTarget{},
	}
}

// BulletinWatcher polls the bulletin aggregate endpoints and reports new or
// revised announcements.
type BulletinWatcher struct {
	log  logx.Logger
	http *resty.Client
	path string

	mu sync.Mutex
}

func NewBulletinWatcher(log logx.Logger, timeout time.Duration, path string) *BulletinWatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BulletinWatcher{
		log:  log,
		http: resty.New().SetTimeout(timeout),
		path: path,
	}
}

// Check fetches every platform's listing, pulls details for announcements
// that are new or revised, persists the aggregate and returns the fresh
// details. The very first run writes the baseline and reports nothing.
func (w *BulletinWatcher) Check(ctx context.Context) ([]BulletinDetail, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	firstRun := false
	agg, err := w.load()
	if err != nil {
		if os.IsNotExist(err) {
			firstRun = true
		} else {
			w.log.Warn("bulletin aggregate unreadable; starting fresh", logx.Err(err))
		}
		agg = newBulletinAggregate()
	}

	var items []BulletinItem
	fetchedAny := false
	for _, p := range bulletinPlatforms {
		target, err := w.fetchTarget(ctx, p)
		if err != nil {
			w.log.Warn("bulletin listing fetch failed", logx.String("platform", string(p)), logx.Err(err))
			continue
		}
		fetchedAny = true
		agg.Target[p.DisplayName()] = target
		items = append(items, target.List...)
	}
	if !fetchedAny {
		return nil, fmt.Errorf("no bulletin listing reachable")
	}

	fresh := w.process(ctx, dedupeByStartAt(items), &agg)
	w.persist(agg)

	if firstRun {
		w.log.Info("bulletin baseline written; changes will be reported from the next poll")
		return nil, nil
	}
	return fresh, nil
}

func (w *BulletinWatcher) fetchTarget(ctx context.Context, platform Platform) (BulletinTarget, error) {
	u := bulletinAggregateURL(platform)
	var envelope struct {
		Code int            `json:"code"`
		Data BulletinTarget `json:"data"`
	}
	resp, err := w.http.R().SetContext(ctx).SetResult(&envelope).Get(u)
	if err != nil {
		return BulletinTarget{}, err
	}
	if resp.StatusCode() != 200 {
		return BulletinTarget{}, fmt.Errorf("status %d", resp.StatusCode())
	}
	if envelope.Code != 0 {
		return BulletinTarget{}, fmt.Errorf("api code %d", envelope.Code)
	}
	return envelope.Data, nil
}

func (w *BulletinWatcher) fetchDetail(ctx context.Context, cid string) (BulletinDetail, error) {
	u := fmt.Sprintf("%s/bulletin/detail/%s?lang=%s&code=%s", bulletinBase, cid, bulletinLang, bulletinGame)
	var envelope struct {
		Code int            `json:"code"`
		Data BulletinDetail `json:"data"`
	}
	resp, err := w.http.R().SetContext(ctx).SetResult(&envelope).Get(u)
	if err != nil {
		return BulletinDetail{}, err
	}
	if resp.StatusCode() != 200 {
		return BulletinDetail{}, fmt.Errorf("status %d", resp.StatusCode())
	}
	return envelope.Data, nil
}

// process walks the deduplicated listing and pulls details for announcements
// not seen before, or seen with a different startAt (a revision). Revisions
// are kept under versioned "cid_N" keys so every published text survives.
func (w *BulletinWatcher) process(ctx context.Context, items []BulletinItem, agg *bulletinAggregate) []BulletinDetail {
	var fresh []BulletinDetail

	for _, item := range items {
		revisedKey := ""
		known := false
		for key, det := range agg.Update {
			if det.CID != item.CID {
				continue
			}
			known = true
			if det.StartAt != item.StartAt {
				delete(agg.Update, key)
				revisedKey = key
			}
			break
		}

		switch {
		case revisedKey != "":
			det, err := w.fetchDetail(ctx, item.CID)
			if err != nil {
				w.log.Warn("bulletin detail fetch failed", logx.String("cid", item.CID), logx.Err(err))
				continue
			}
			agg.Update[nextUpdateKey(item.CID, revisedKey)] = det
			fresh = append(fresh, det)
			w.log.Info("revised bulletin", logx.String("cid", item.CID), logx.String("title", item.Title))

		case !known:
			if _, seen := agg.Data[item.CID]; seen {
				continue
			}
			det, err := w.fetchDetail(ctx, item.CID)
			if err != nil {
				w.log.Warn("bulletin detail fetch failed", logx.String("cid", item.CID), logx.Err(err))
				continue
			}
			agg.Data[item.CID] = det
			agg.Update[item.CID+"_1"] = det
			fresh = append(fresh, det)
			w.log.Info("new bulletin", logx.String("cid", item.CID), logx.String("title", item.Title))
		}
	}
	return fresh
}

// nextUpdateKey bumps "cid_N" to "cid_N+1".
func nextUpdateKey(cid, existing string) string {
	if i := strings.LastIndexByte(existing, '_'); i >= 0 {
		if n, err := strconv.Atoi(existing[i+1:]); err == nil {
			return fmt.Sprintf("%s_%d", cid, n+1)
		}
	}
	return cid + "_1"
}

// dedupeByStartAt drops listing entries sharing a startAt (the same bulletin
// surfaces on several platforms) and sorts newest first.
func dedupeByStartAt(items []BulletinItem) []BulletinItem {
	seen := map[int64]bool{}
	out := make([]BulletinItem, 0, len(items))
	for _, it := range items {
		if seen[it.StartAt] {
			continue
		}
		seen[it.StartAt] = true
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt > out[j].StartAt })
	return out
}

func (w *BulletinWatcher) load() (bulletinAggregate, error) {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return bulletinAggregate{}, err
	}
	var agg bulletinAggregate
	if err := json.Unmarshal(b, &agg); err != nil {
		return bulletinAggregate{}, err
	}
	if agg.Data == nil {
		agg.Data = map[string]BulletinDetail{}
	}
	if agg.Update == nil {
		agg.Update = map[string]BulletinDetail{}
	}
	if agg.Target == nil {
		agg.Target = map[string]BulletinTarget{}
	}
	return agg, nil
}

func (w *BulletinWatcher) persist(agg bulletinAggregate) {
	b, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		w.log.Error("bulletin aggregate marshal failed", logx.Err(err))
		return
	}
	if dir := filepath.Dir(w.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.log.Warn("bulletin dir create failed", logx.Err(err))
			return
		}
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		w.log.Warn("bulletin aggregate write failed", logx.Err(err))
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		w.log.Warn("bulletin aggregate rename failed", logx.Err(err))
	}
}
