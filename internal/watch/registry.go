package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LogPrefix starts the name of every watch log file.
const LogPrefix = "bevy_brp_mcp_watch"

// LogFileName returns the file name for a watch's log:
// bevy_brp_mcp_watch_<id>_<kind>_<entity>_<unix-seconds>.log
func LogFileName(id uint64, kind Kind, entity uint64, created time.Time) string {
	return fmt.Sprintf("%s_%d_%s_%d_%d.log", LogPrefix, id, kind, entity, created.Unix())
}

// Params describes a subscription to register. Cancel and Done belong to
// the task that will serve it: Cancel asks it to end, Done closes once it
// has.
type Params struct {
	Kind       Kind
	Entity     uint64
	Components []string
	Port       int
	Cancel     context.CancelFunc
	Done       <-chan struct{}
}

type entry struct {
	sub    Subscription
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Registry is the process-wide table of active subscriptions. Every
// method is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
	nextID  atomic.Uint64
	logDir  string
	limit   int
}

// NewRegistry creates a registry that places log files in logDir and holds
// at most limit subscriptions. A limit below one means no cap.
func NewRegistry(logDir string, limit int) *Registry {
	return &Registry{
		entries: make(map[uint64]*entry),
		logDir:  logDir,
		limit:   limit,
	}
}

// Create allocates an id and log path for p and stores it in state
// Starting. Ids are never reused within the process. When the cap is
// reached it returns ErrResourceExhausted and allocates nothing.
func (r *Registry) Create(p Params) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && len(r.entries) >= r.limit {
		return Subscription{}, fmt.Errorf("%w: limit is %d", ErrResourceExhausted, r.limit)
	}

	id := r.nextID.Add(1)
	now := timeNow()
	sub := Subscription{
		ID:         id,
		Kind:       p.Kind,
		Entity:     p.Entity,
		Components: append([]string(nil), p.Components...),
		Port:       p.Port,
		LogPath:    filepath.Join(r.logDir, LogFileName(id, p.Kind, p.Entity, now)),
		State:      StateStarting,
		CreatedAt:  now,
	}
	if p.Kind != KindValue {
		sub.Components = nil
	}
	r.entries[id] = &entry{sub: sub, cancel: p.Cancel, done: p.Done}
	return sub.clone(), nil
}

// Get returns a snapshot of one subscription.
func (r *Registry) Get(id uint64) (Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e.sub.clone(), nil
}

// List returns snapshots of all subscriptions ordered by id.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	subs := make([]Subscription, 0, len(r.entries))
	for _, e := range r.entries {
		subs = append(subs, e.sub.clone())
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

// Len returns how many subscriptions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SetState moves a subscription to state. A terminal state is final and
// Stopping only leads to a terminal state; other transitions are ignored.
// errMsg is kept when non-empty.
func (r *Registry) SetState(id uint64, state State, errMsg string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	current := e.sub.State
	if !current.Terminal() && (current != StateStopping || state.Terminal()) {
		e.sub.State = state
		if errMsg != "" {
			e.sub.Err = errMsg
		}
	}
	return e.sub.clone(), nil
}

// Remove deletes a subscription and returns its last snapshot.
func (r *Registry) Remove(id uint64) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.entries, id)
	return e.sub.clone(), nil
}

// control returns the task handles of a subscription.
func (r *Registry) control(id uint64) (context.CancelFunc, <-chan struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e.cancel, e.done, nil
}

// handles returns the done channels of every registered task.
func (r *Registry) handles() map[uint64]<-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uint64]<-chan struct{}, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.done
	}
	return out
}
