package watcher

import (
	"encoding/json"
	"fmt"
)

// Platform is the namespace under which remote configuration is fetched.
// It is a pure partition key; values come straight from the upstream URLs.
type Platform string

const (
	// PlatformDefault is the desktop client ("default" upstream, Windows in UI).
	PlatformDefault Platform = "default"
	PlatformAndroid Platform = "android"
)

// ReferencePlatform is the canonical platform for the shared-token cache:
// upstream hands out one token for all platforms, so it is derived once from
// the default client and reused.
const ReferencePlatform = PlatformDefault

// DisplayName is what notifications and the bulletin API call the platform.
// The config endpoints use the lowercase device segment; everything
// user-facing uses these names.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformDefault:
		return "Windows"
	case PlatformAndroid:
		return "Android"
	}
	return string(p)
}

// ConfigKind is one of the five remote configuration categories.
type ConfigKind string

const (
	KindNetworkConfig   ConfigKind = "network_config"
	KindGameConfig      ConfigKind = "game_config"
	KindResVersion      ConfigKind = "res_version"
	KindServerConfig    ConfigKind = "server_config"
	KindLauncherVersion ConfigKind = "launcher_version"
)

// Kinds lists every ConfigKind in a stable order.
var Kinds = []ConfigKind{
	KindNetworkConfig,
	KindGameConfig,
	KindResVersion,
	KindServerConfig,
	KindLauncherVersion,
}

// Shape discriminates the Snapshot union.
type Shape string

const (
	// ShapeEmpty is the zero/default snapshot (nothing fetched yet, or a
	// degraded res_version when token resolution failed).
	ShapeEmpty Shape = "empty"
	// ShapeRecord is a well-typed record matching the kind's schema.
	ShapeRecord Shape = "record"
	// ShapeMap is the free-form key/value map used by game_config.
	ShapeMap Shape = "map"
	// ShapeError is a structured upstream failure body. It is a legitimate,
	// diffable value: "the endpoint started erroring" is itself an event.
	ShapeError Shape = "error"
)

// RemoteError is a structured failure body returned by the upstream endpoint.
type RemoteError struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e RemoteError) String() string {
	return fmt.Sprintf("code=%d reason=%s message=%s", e.Code, e.Reason, e.Message)
}

// Snapshot is the decoded value of one (platform, kind) at one fetch instant.
//
// It is a tagged union: record and map shapes keep the decoded JSON object in
// Fields (so normalization and diffing work uniformly), error shape carries
// Err, empty carries nothing.
type Snapshot struct {
	Shape Shape `json:"shape"`
	// No omitempty: an empty record/map must round-trip as {} so a reload
	// never turns it into a nil map.
	Fields map[string]any `json:"fields"`
	Err    *RemoteError   `json:"error,omitempty"`
}

func EmptySnapshot() Snapshot { return Snapshot{Shape: ShapeEmpty} }

func RecordSnapshot(fields map[string]any) Snapshot {
	return Snapshot{Shape: ShapeRecord, Fields: fields}
}

func MapSnapshot(fields map[string]any) Snapshot {
	return Snapshot{Shape: ShapeMap, Fields: fields}
}

func ErrorSnapshot(e RemoteError) Snapshot {
	return Snapshot{Shape: ShapeError, Err: &e}
}

func (s Snapshot) IsEmpty() bool { return s.Shape == "" || s.Shape == ShapeEmpty }
func (s Snapshot) IsError() bool { return s.Shape == ShapeError }

// StringField returns a top-level string field ("" when absent or not a string).
func (s Snapshot) StringField(key string) string {
	v, _ := s.Fields[key].(string)
	return v
}

// BoolField returns a top-level bool field.
func (s Snapshot) BoolField(key string) bool {
	v, _ := s.Fields[key].(bool)
	return v
}

// ---- Kind schemas ----
//
// The typed records exist for schema validation: a payload fits a kind when it
// unmarshals into the kind's record type without type clashes AND carries all
// required keys. The snapshot itself keeps the generic decoded object.

type NetworkConfig struct {
	Asset       string `json:"asset"`
	HGAge       string `json:"hgage"`
	SDKEnv      string `json:"sdkenv"`
	U8Root      string `json:"u8root"`
	AppCode     int    `json:"appcode"`
	Channel     string `json:"channel"`
	NetLogID    string `json:"netlogid"`
	GameClose   bool   `json:"gameclose"`
	NetLogURL   string `json:"netlogurl"`
	AccountURL  string `json:"accounturl"`
	LauncherURL string `json:"launcherurl"`
}

type ResVersion struct {
	Version  string `json:"version"`
	KickFlag bool   `json:"kickFlag"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
	Port int    `json:"port"`
}

type LauncherVersion struct {
	Action         int            `json:"action"`
	Version        string         `json:"version"`
	RequestVersion string         `json:"request_version"`
	Pkg            map[string]any `json:"pkg,omitempty"`
	Patch          map[string]any `json:"patch,omitempty"`
}

// kindSchema describes how a kind's payload is validated and what its zero
// snapshot looks like. Static registry instead of reflection: each kind binds
// a probe type and its required keys at compile time.
type kindSchema struct {
	// probe returns a fresh pointer to the kind's record type.
	probe func() any
	// required lists keys that must be present for a schema fit.
	required []string
}

var kindSchemas = map[ConfigKind]kindSchema{
	KindNetworkConfig: {
		probe:    func() any { return &NetworkConfig{} },
		required: []string{"asset", "sdkenv", "u8root", "accounturl"},
	},
	KindResVersion: {
		probe:    func() any { return &ResVersion{} },
		required: []string{"version"},
	},
	KindServerConfig: {
		probe:    func() any { return &ServerConfig{} },
		required: []string{"addr", "port"},
	},
	KindLauncherVersion: {
		probe:    func() any { return &LauncherVersion{} },
		required: []string{"version", "request_version"},
	},
	// game_config intentionally absent: it is the free-form map kind.
}

// DecodeSnapshot classifies a decoded-JSON payload for a kind.
//
// Fit order is fixed: schema fit, then map fit (game_config only), then
// error fit; an unrecognized object becomes a synthetic RemoteError carrying
// the validation failure so it still participates in diffing.
func DecodeSnapshot(kind ConfigKind, raw []byte) Snapshot {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ErrorSnapshot(RemoteError{
			Code:    -1,
			Reason:  "invalid_payload",
			Message: truncateForMessage(string(raw)),
		})
	}

	if kind == KindGameConfig {
		return MapSnapshot(obj)
	}

	schema, ok := kindSchemas[kind]
	if !ok {
		return MapSnapshot(obj)
	}
	if err := fitSchema(schema, raw, obj); err != nil {
		if re, ok := fitRemoteError(obj); ok {
			return ErrorSnapshot(re)
		}
		return ErrorSnapshot(RemoteError{
			Code:    -1,
			Reason:  "schema_mismatch",
			Message: fmt.Sprintf("%s: %v (payload: %s)", kind, err, truncateForMessage(string(raw))),
		})
	}
	return RecordSnapshot(obj)
}

func fitSchema(schema kindSchema, raw []byte, obj map[string]any) error {
	for _, key := range schema.required {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("missing field %q", key)
		}
	}
	// Type-check against the record: json.Unmarshal fails on type clashes
	// while tolerating extra fields upstream may add.
	if err := json.Unmarshal(raw, schema.probe()); err != nil {
		return err
	}
	return nil
}

// fitRemoteError reports whether obj structurally matches {code, reason, message}.
func fitRemoteError(obj map[string]any) (RemoteError, bool) {
	code, ok := obj["code"].(float64)
	if !ok {
		return RemoteError{}, false
	}
	reason, hasReason := obj["reason"].(string)
	message, hasMessage := obj["message"].(string)
	if !hasReason && !hasMessage {
		return RemoteError{}, false
	}
	return RemoteError{Code: int(code), Reason: reason, Message: message}, true
}

func truncateForMessage(s string) string {
	const maxN = 300
	if len(s) <= maxN {
		return s
	}
	return s[:maxN-3] + "..."
}
