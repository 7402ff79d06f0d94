package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

// Stream yields the payloads of one open watch stream.
type Stream interface {
	Next() (json.RawMessage, error)
	Close() error
}

// Transport opens watch streams against a BRP app.
type Transport interface {
	OpenStream(ctx context.Context, method string, params any, port int) (Stream, error)
}

// ClientTransport adapts a *brp.Client to Transport.
func ClientTransport(c *brp.Client) Transport {
	return clientTransport{c: c}
}

type clientTransport struct {
	c *brp.Client
}

func (t clientTransport) OpenStream(ctx context.Context, method string, params any, port int) (Stream, error) {
	s, err := t.c.OpenStream(ctx, method, params, port)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// errStreamEnded replaces io.EOF: a watch stream has no natural end, so
// the remote closing it is a lost connection.
var errStreamEnded = errors.New("stream closed by remote")

// --- payloads ---

type startedRecord struct {
	WatchID    uint64   `json:"watch_id"`
	WatchType  Kind     `json:"watch_type"`
	Entity     uint64   `json:"entity"`
	Components []string `json:"components,omitempty"`
	Port       int      `json:"port"`
	Method     string   `json:"method"`
	LogPath    string   `json:"log_path"`
}

type componentUpdate struct {
	Entity     uint64                     `json:"entity"`
	Components map[string]json.RawMessage `json:"components,omitempty"`
	Removed    []string                   `json:"removed,omitempty"`
	Errors     map[string]json.RawMessage `json:"errors,omitempty"`
	Update     json.RawMessage            `json:"update,omitempty"`
	Destroyed  bool                       `json:"destroyed,omitempty"`
}

type listDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

type listUpdate struct {
	Entity  uint64   `json:"entity"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Current []string `json:"current"`
}

type errorRecord struct {
	Entity uint64 `json:"entity"`
	Error  string `json:"error"`
	Code   int    `json:"code,omitempty"`
}

// --- task ---

// task serves one subscription: it owns the stream and the sink, and is the
// only writer of the subscription's log.
type task struct {
	sub       Subscription
	transport Transport
	sink      *Sink
	reg       *Registry
	obs       Observer
	log       *zap.Logger

	// current is the accumulated component set of a structure watch.
	current map[string]struct{}
}

func newTask(sub Subscription, transport Transport, reg *Registry, obs Observer, log *zap.Logger) *task {
	return &task{
		sub:       sub,
		transport: transport,
		sink:      NewSink(sub.LogPath),
		reg:       reg,
		obs:       obs,
		log:       log.With(zap.Uint64("watch_id", sub.ID), zap.Stringer("kind", sub.Kind), zap.Uint64("entity", sub.Entity)),
		current:   make(map[string]struct{}),
	}
}

// run streams until ctx is cancelled or the stream fails. It returns nil
// for a requested stop and the cause otherwise. No record is written once
// ctx is done.
func (t *task) run(ctx context.Context) error {
	defer t.sink.Close()

	if ctx.Err() != nil {
		return nil
	}

	stream, err := t.transport.OpenStream(ctx, t.sub.Kind.Method(), t.sub.Params(), t.sub.Port)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// Every log begins with WATCH_STARTED, even one that never streamed.
		if serr := t.sink.Append(RecordStarted, t.startedRecord()); serr != nil {
			t.log.Warn("writing start record", zap.Error(serr))
		}
		return t.fail(err)
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	if err := t.sink.Append(RecordStarted, t.startedRecord()); err != nil {
		return t.fail(err)
	}
	t.transition(StateStreaming)
	t.log.Info("watch streaming", zap.String("log_path", t.sub.LogPath))

	for {
		if ctx.Err() != nil {
			return nil
		}
		payload, err := stream.Next()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = &brp.ConnectionError{URL: fmt.Sprintf("port %d", t.sub.Port), Err: errStreamEnded}
			}
			if t.sub.Kind == KindValue && brp.IsEntityGone(err) {
				if werr := t.sink.Append(RecordComponentUpdate, componentUpdate{Entity: t.sub.Entity, Destroyed: true}); werr != nil {
					t.log.Warn("writing destroy record", zap.Error(werr))
				}
			}
			return t.fail(err)
		}

		if err := t.handle(payload); err != nil {
			return t.fail(err)
		}
	}
}

// handle turns one stream payload into one record.
func (t *task) handle(payload json.RawMessage) error {
	switch t.sub.Kind {
	case KindValue:
		return t.sink.Append(RecordComponentUpdate, t.componentUpdate(payload))
	case KindStructure:
		update, err := t.listUpdate(payload)
		if err != nil {
			return err
		}
		return t.sink.Append(RecordListUpdate, update)
	default:
		return fmt.Errorf("unknown watch kind %s", t.sub.Kind)
	}
}

// componentUpdate lifts the usual get-watch fields out of payload. Anything
// that is not an object is kept whole under "update".
func (t *task) componentUpdate(payload json.RawMessage) componentUpdate {
	update := componentUpdate{Entity: t.sub.Entity}
	if err := json.Unmarshal(payload, &update); err != nil || (update.Components == nil && update.Removed == nil && update.Errors == nil) {
		return componentUpdate{Entity: t.sub.Entity, Update: payload}
	}
	update.Entity = t.sub.Entity
	return update
}

func (t *task) listUpdate(payload json.RawMessage) (listUpdate, error) {
	var delta listDelta
	if err := json.Unmarshal(payload, &delta); err != nil {
		return listUpdate{}, &brp.DecodeError{Body: string(payload), Err: err}
	}
	for _, name := range delta.Added {
		t.current[name] = struct{}{}
	}
	for _, name := range delta.Removed {
		delete(t.current, name)
	}

	current := make([]string, 0, len(t.current))
	for name := range t.current {
		current = append(current, name)
	}
	sort.Strings(current)

	return listUpdate{
		Entity:  t.sub.Entity,
		Added:   nonNil(delta.Added),
		Removed: nonNil(delta.Removed),
		Current: current,
	}, nil
}

// fail writes the WATCH_ERROR record for cause and returns it.
func (t *task) fail(cause error) error {
	rec := errorRecord{Entity: t.sub.Entity, Error: cause.Error()}
	if pe, ok := brp.AsProtocolError(cause); ok {
		rec.Code = pe.Code
	}
	if err := t.sink.Append(RecordError, rec); err != nil {
		t.log.Warn("writing error record", zap.Error(err))
	}
	t.log.Warn("watch failed", zap.Error(cause))
	return cause
}

func (t *task) transition(state State) {
	sub, err := t.reg.SetState(t.sub.ID, state, "")
	if err != nil {
		return
	}
	t.obs.ObserveWatch(sub)
}

func (t *task) startedRecord() startedRecord {
	return startedRecord{
		WatchID:    t.sub.ID,
		WatchType:  t.sub.Kind,
		Entity:     t.sub.Entity,
		Components: t.sub.Components,
		Port:       t.sub.Port,
		Method:     brp.WatchMethod(t.sub.Kind.Method()),
		LogPath:    t.sub.LogPath,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
