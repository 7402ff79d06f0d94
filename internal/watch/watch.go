// Package watch runs long-lived BRP watch subscriptions.
//
// A watch streams changes of one remote entity and appends every change to
// its own log file. The package is split the same way the work is:
//
//   - Registry: the process-wide table of subscriptions and their ids
//   - Sink: the append-only log file of one subscription
//   - task: the goroutine that turns stream payloads into log records
//   - Manager: validates requests, spawns tasks, stops and lists them
//
// Tool handlers only talk to the Manager.
package watch

import (
	"fmt"
	"time"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

// timeNow is a package-level variable so tests can pin the clock.
var timeNow = time.Now

// --- Kind ---

// Kind selects what a watch observes.
type Kind int

const (
	// KindValue watches field values of named components on one entity.
	KindValue Kind = iota + 1
	// KindStructure watches which component types one entity has.
	KindStructure
)

// String returns the short tag used in log file names and listings.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "get"
	case KindStructure:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Method is the BRP method whose watching variant backs this kind.
func (k Kind) Method() string {
	switch k {
	case KindValue:
		return brp.MethodGet
	case KindStructure:
		return brp.MethodList
	default:
		return ""
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k == KindValue || k == KindStructure
}

// MarshalText encodes the kind as its short tag.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid watch kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a short tag.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind converts "get" or "list" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "get":
		return KindValue, nil
	case "list":
		return KindStructure, nil
	default:
		return 0, fmt.Errorf("invalid watch kind %q: must be get or list", s)
	}
}

// --- State ---

// State is where a subscription is in its lifecycle.
type State string

const (
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// --- Subscription ---

// Subscription is a point-in-time copy of one watch.
type Subscription struct {
	ID         uint64    `json:"watch_id"`
	Kind       Kind      `json:"watch_type"`
	Entity     uint64    `json:"entity_id"`
	Components []string  `json:"components,omitempty"`
	Port       int       `json:"port"`
	LogPath    string    `json:"log_path"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	Err        string    `json:"error,omitempty"`
}

// Params returns the BRP params the watch streams with.
func (s Subscription) Params() map[string]any {
	params := map[string]any{"entity": s.Entity}
	if s.Kind == KindValue {
		params["components"] = s.Components
	}
	return params
}

// clone copies the subscription so callers never share its slices.
func (s Subscription) clone() Subscription {
	if s.Components != nil {
		s.Components = append([]string(nil), s.Components...)
	}
	return s
}

// StartResult is what a start request reports back: the id and where the
// records will be written.
type StartResult struct {
	ID      uint64 `json:"watch_id"`
	LogPath string `json:"log_path"`

	// Components are the trimmed, deduplicated names a value watch follows.
	Components []string `json:"components,omitempty"`
}

// Observer is told about every subscription change. Implementations must
// not block for long: they run on the start path and inside watch tasks.
type Observer interface {
	ObserveWatch(sub Subscription)
}

type nopObserver struct{}

func (nopObserver) ObserveWatch(Subscription) {}
