package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures a Manager.
type Options struct {
	// LogDir receives the watch log files.
	LogDir string
	// MaxWatches caps active watches. Zero means no cap.
	MaxWatches int
	// StopTimeout bounds how long Stop waits for a task to exit.
	StopTimeout time.Duration
	// DefaultPort is used when a start request names port 0.
	DefaultPort int
	// Logger receives lifecycle logs. Nil means no logging.
	Logger *zap.Logger
	// Observer sees every subscription change. Nil means nobody does.
	Observer Observer
}

// Manager is the single entry point for watch operations. It validates
// requests, owns the registry, and starts and stops one task per watch.
type Manager struct {
	reg       *Registry
	transport Transport
	opts      Options
	log       *zap.Logger
	obs       Observer

	// base parents every task context; cancelAll ends them all.
	base      context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewManager creates a manager that opens streams through transport.
func NewManager(transport Transport, opts Options) *Manager {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var obs Observer = nopObserver{}
	if opts.Observer != nil {
		obs = opts.Observer
	}

	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		reg:       NewRegistry(opts.LogDir, opts.MaxWatches),
		transport: transport,
		opts:      opts,
		log:       log.Named("watch"),
		obs:       obs,
		base:      base,
		cancelAll: cancel,
	}
}

// StartValueWatch streams changes to the named components of entity.
// A port of 0 uses the default port.
func (m *Manager) StartValueWatch(entity uint64, components []string, port int) (StartResult, error) {
	if len(components) == 0 {
		return StartResult{}, &ValidationError{Field: "components", Reason: "at least one component type is required"}
	}
	cleaned := make([]string, 0, len(components))
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		c = strings.TrimSpace(c)
		if c == "" {
			return StartResult{}, &ValidationError{Field: "components", Reason: "component type names must not be empty"}
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		cleaned = append(cleaned, c)
	}
	return m.start(KindValue, entity, cleaned, port)
}

// StartStructureWatch streams component additions and removals on entity.
// A port of 0 uses the default port.
func (m *Manager) StartStructureWatch(entity uint64, port int) (StartResult, error) {
	return m.start(KindStructure, entity, nil, port)
}

func (m *Manager) start(kind Kind, entity uint64, components []string, port int) (StartResult, error) {
	if port == 0 {
		port = m.opts.DefaultPort
	}
	if port < 1 || port > 65535 {
		return StartResult{}, &ValidationError{Field: "port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", port)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return StartResult{}, ErrClosed
	}

	ctx, cancel := context.WithCancel(m.base)
	done := make(chan struct{})
	sub, err := m.reg.Create(Params{
		Kind:       kind,
		Entity:     entity,
		Components: components,
		Port:       port,
		Cancel:     cancel,
		Done:       done,
	})
	if err != nil {
		cancel()
		return StartResult{}, err
	}
	m.obs.ObserveWatch(sub)
	m.log.Info("watch created",
		zap.Uint64("watch_id", sub.ID),
		zap.Stringer("kind", kind),
		zap.Uint64("entity", entity),
		zap.Int("port", port),
		zap.String("log_path", sub.LogPath),
	)

	t := newTask(sub, m.transport, m.reg, m.obs, m.log)
	go m.serve(ctx, cancel, done, t)

	return StartResult{ID: sub.ID, LogPath: sub.LogPath, Components: sub.Components}, nil
}

// serve runs t and retires its subscription. The registry entry is gone
// before done closes, so a returned Stop never sees it again.
func (m *Manager) serve(ctx context.Context, cancel context.CancelFunc, done chan struct{}, t *task) {
	defer close(done)
	defer cancel()

	err := t.run(ctx)

	state, msg := StateStopped, ""
	if err != nil {
		state, msg = StateFailed, err.Error()
	}
	if _, serr := m.reg.SetState(t.sub.ID, state, msg); serr != nil {
		m.log.Warn("retiring unknown watch", zap.Uint64("watch_id", t.sub.ID))
	}
	final, rerr := m.reg.Remove(t.sub.ID)
	if rerr != nil {
		return
	}
	m.obs.ObserveWatch(final)
	m.log.Info("watch ended", zap.Uint64("watch_id", final.ID), zap.String("state", string(final.State)))
}

// Stop ends a watch and waits until its task has exited, so no record is
// appended after Stop returns nil. An unknown id yields ErrNotFound. If the
// task does not exit within the stop timeout Stop returns ErrStopTimeout and
// the watch stays listed until it does.
func (m *Manager) Stop(ctx context.Context, id uint64) error {
	cancel, done, err := m.reg.control(id)
	if err != nil {
		return err
	}
	if sub, err := m.reg.SetState(id, StateStopping, ""); err == nil {
		m.obs.ObserveWatch(sub)
	}
	cancel()

	timer := time.NewTimer(m.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("watch %d: %w", id, ErrStopTimeout)
	case <-ctx.Done():
		return fmt.Errorf("watch %d: %w: %v", id, ErrStopTimeout, ctx.Err())
	}
}

// Get returns a snapshot of one active watch.
func (m *Manager) Get(id uint64) (Subscription, error) {
	return m.reg.Get(id)
}

// List returns snapshots of all active watches ordered by id.
func (m *Manager) List() []Subscription {
	return m.reg.List()
}

// Shutdown stops every watch and refuses new ones. It waits for all tasks
// until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	handles := m.reg.handles()
	for id := range handles {
		if sub, err := m.reg.SetState(id, StateStopping, ""); err == nil {
			m.obs.ObserveWatch(sub)
		}
	}
	m.cancelAll()

	g, gctx := errgroup.WithContext(ctx)
	for id, done := range handles {
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("watch %d: %w", id, ErrStopTimeout)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.log.Info("all watches stopped", zap.Int("count", len(handles)))
	return nil
}
