package watcher

import (
	"fmt"
	"sort"
	"strings"
)

// Priority orders notifications within one message. Lower sorts first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

var kindPriority = map[ConfigKind]Priority{
	KindResVersion:      PriorityCritical,
	KindNetworkConfig:   PriorityHigh,
	KindServerConfig:    PriorityMedium,
	KindGameConfig:      PriorityMedium,
	KindLauncherVersion: PriorityLow,
}

var priorityIcon = map[Priority]string{
	PriorityCritical: "🚨",
	PriorityHigh:     "⚡",
	PriorityMedium:   "📢",
	PriorityLow:      "ℹ️",
}

var kindTitle = map[ConfigKind]string{
	KindNetworkConfig:   "Network config update",
	KindGameConfig:      "Game config update",
	KindResVersion:      "Resource version update",
	KindServerConfig:    "Server config update",
	KindLauncherVersion: "Client version update",
}

// Notification is one rendered per-kind change.
type Notification struct {
	Kind     ConfigKind
	Priority Priority
	Title    string
	Body     string
}

// PlatformResult collects one platform's change records for a tick.
type PlatformResult struct {
	Platform Platform
	Records  map[ConfigKind]ChangeRecord
}

// OutMessage is a fully rendered message for delivery. Platforms lists every
// platform that produced this exact body (grouping, see ComposeBatch).
type OutMessage struct {
	Platforms []Platform
	Text      string
}

// ComposeKind renders a single change record. It picks a dedicated template
// for transitions into/out of the RemoteError state and the generic per-kind
// formatter otherwise.
func ComposeKind(kind ConfigKind, rec ChangeRecord) Notification {
	n := Notification{
		Kind:     kind,
		Priority: kindPriority[kind],
		Title:    kindTitle[kind],
	}

	oldErr, newErr := rec.Old.IsError(), rec.New.IsError()
	switch {
	case !oldErr && newErr:
		n.Title = kindTitle[kind] + ": endpoint now erroring"
		n.Body = rec.New.Err.String()
	case oldErr && !newErr:
		n.Title = kindTitle[kind] + ": endpoint recovered"
		n.Body = formatFields(rec.New)
	case oldErr && newErr:
		n.Title = kindTitle[kind] + ": error detail changed"
		n.Body = formatErrorDelta(*rec.Old.Err, *rec.New.Err)
	case kind == KindGameConfig:
		n.Body = formatMapChanges(rec.Old.Fields, rec.New.Fields)
	default:
		n.Body = formatRecordChanges(rec.Old.Fields, rec.New.Fields)
	}

	if n.Body == "" {
		n.Body = "config updated"
	}
	return n
}

// formatRecordChanges renders "field: old → new" lines for every differing
// field of a scalar-record kind.
func formatRecordChanges(oldM, newM map[string]any) string {
	d := DiffMaps(normalizeValue(asMap(oldM)).(map[string]any), normalizeValue(asMap(newM)).(map[string]any))
	var lines []string
	for _, k := range sortedKeys(d.Changed) {
		c := d.Changed[k]
		lines = append(lines, fmt.Sprintf("%s: %v → %v", k, c.Old, c.New))
	}
	for _, k := range sortedKeys(d.Added) {
		lines = append(lines, fmt.Sprintf("%s: %v (new)", k, d.Added[k]))
	}
	for _, k := range sortedKeys(d.Removed) {
		lines = append(lines, fmt.Sprintf("%s: %v (removed)", k, d.Removed[k]))
	}
	return strings.Join(lines, "\n")
}

// formatMapChanges renders the added/removed/changed classification for the
// free-form map kind.
func formatMapChanges(oldM, newM map[string]any) string {
	d := DiffMaps(normalizeValue(asMap(oldM)).(map[string]any), normalizeValue(asMap(newM)).(map[string]any))

	var sections []string
	if len(d.Changed) > 0 {
		lines := make([]string, 0, len(d.Changed))
		for _, k := range sortedKeys(d.Changed) {
			c := d.Changed[k]
			lines = append(lines, fmt.Sprintf("%s: %v -> %v", k, c.Old, c.New))
		}
		sections = append(sections, "Updated:\n"+strings.Join(lines, "\n"))
	}
	if len(d.Added) > 0 {
		lines := make([]string, 0, len(d.Added))
		for _, k := range sortedKeys(d.Added) {
			lines = append(lines, fmt.Sprintf("%s: %v", k, d.Added[k]))
		}
		sections = append(sections, "New:\n"+strings.Join(lines, "\n"))
	}
	if len(d.Removed) > 0 {
		lines := make([]string, 0, len(d.Removed))
		for _, k := range sortedKeys(d.Removed) {
			lines = append(lines, fmt.Sprintf("%s: %v", k, d.Removed[k]))
		}
		sections = append(sections, "Deleted:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func formatErrorDelta(oldE, newE RemoteError) string {
	var lines []string
	if oldE.Code != newE.Code {
		lines = append(lines, fmt.Sprintf("code: %d → %d", oldE.Code, newE.Code))
	}
	if oldE.Reason != newE.Reason {
		lines = append(lines, fmt.Sprintf("reason: %s → %s", oldE.Reason, newE.Reason))
	}
	if oldE.Message != newE.Message {
		lines = append(lines, fmt.Sprintf("message: %s → %s", oldE.Message, newE.Message))
	}
	return strings.Join(lines, "\n")
}

func formatFields(s Snapshot) string {
	return strings.Join(FormatSnapshot(s), "\n")
}

// FormatSnapshot renders a snapshot's fields as sorted "key: value" lines.
func FormatSnapshot(s Snapshot) []string {
	lines := make([]string, 0, len(s.Fields))
	for _, k := range sortedKeys(s.Fields) {
		lines = append(lines, fmt.Sprintf("%s: %v", k, s.Fields[k]))
	}
	return lines
}

func asMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// composeBody renders one platform's changed records into the concatenated
// notification body plus the header icon of the highest-priority item.
// First-observation records are excluded: baselines are persisted silently.
//
// The body carries no platform header on purpose: grouping in ComposeBatch
// compares bodies byte for byte across platforms.
func composeBody(res PlatformResult) (icon, body string, ok bool) {
	var notifs []Notification
	for kind, rec := range res.Records {
		if !rec.Changed || rec.First {
			continue
		}
		notifs = append(notifs, ComposeKind(kind, rec))
	}
	if len(notifs) == 0 {
		return "", "", false
	}

	sort.Slice(notifs, func(i, j int) bool {
		if notifs[i].Priority != notifs[j].Priority {
			return notifs[i].Priority < notifs[j].Priority
		}
		return notifs[i].Kind < notifs[j].Kind
	})

	parts := make([]string, 0, len(notifs))
	for _, n := range notifs {
		parts = append(parts, fmt.Sprintf("%s %s\n%s", priorityIcon[n.Priority], n.Title, n.Body))
	}
	return priorityIcon[notifs[0].Priority], strings.Join(parts, "\n\n"), true
}

// ComposeBatch renders one message per distinct body across the batch.
// Platforms with byte-identical bodies are merged into a single message whose
// header names all of them; config that is genuinely shared across platforms
// is announced once instead of spamming near-duplicates.
func ComposeBatch(batch []PlatformResult) []OutMessage {
	type group struct {
		icon      string
		body      string
		platforms []Platform
	}
	var groups []*group
	index := map[string]*group{}

	for _, res := range batch {
		icon, body, ok := composeBody(res)
		if !ok {
			continue
		}
		if g, seen := index[body]; seen {
			g.platforms = append(g.platforms, res.Platform)
			continue
		}
		g := &group{icon: icon, body: body, platforms: []Platform{res.Platform}}
		index[body] = g
		groups = append(groups, g)
	}

	out := make([]OutMessage, 0, len(groups))
	for _, g := range groups {
		names := make([]string, 0, len(g.platforms))
		for _, p := range g.platforms {
			names = append(names, p.DisplayName())
		}
		header := fmt.Sprintf("%s %s update detected", g.icon, strings.Join(names, " / "))
		out = append(out, OutMessage{
			Platforms: g.platforms,
			Text:      header + "\n\n" + g.body,
		})
	}
	return out
}
