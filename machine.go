package rssm

import (
	"context"
	"errors"
	"sync"

	"github.com/yowainwright/rssm/internal/hydrate"
	"github.com/yowainwright/rssm/pkg/activity"
	"github.com/yowainwright/rssm/pkg/storage"
)

// Machine is one named state container managing a single schema-typed value.
// All transitions are serialized; each applies zero or one persistence side
// effect. The zero value is not usable; construct with New.
type Machine[T any] struct {
	name    string
	cfg     machineConfig[T]
	log     Logger
	dec     *hydrate.Decoder[T]
	sync    *synchronizer[T]
	emitter *activity.Emitter

	mu     sync.Mutex
	state  State[T]
	closed bool
}

// New constructs a machine named name. The name doubles as the durable
// storage key; machines with different names are fully independent. New only
// fails on invalid configuration — persistence and validation problems at
// load time degrade to the caller-supplied initial data.
func New[T any](name string, opts ...Option[T]) (*Machine[T], error) {
	if name == "" {
		return nil, errors.New("rssm: machine name is required")
	}

	cfg := applyOptions(opts)
	log := Logger(noopLogger{})
	if cfg.logging {
		if cfg.logger != nil {
			log = cfg.logger
		} else {
			log = NewConsoleLogger(nil)
		}
	}
	if cfg.persist && cfg.adapter == nil {
		cfg.adapter = storage.NewMemoryAdapter()
	}

	m := &Machine[T]{
		name: name,
		cfg:  cfg,
		log:  log,
		dec:  hydrate.NewDecoder[T](),
	}
	if cfg.persist {
		m.sync = newSynchronizer(name, cfg, log, m.dec)
	}
	if cfg.activityHooks.Enabled() {
		m.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{Enabled: true})
	}

	m.state = m.initialState(context.Background())
	return m, nil
}

// initialState adopts the persisted record when one exists, otherwise the
// caller-supplied initial data. Both paths validate advisorily.
func (m *Machine[T]) initialState(ctx context.Context) State[T] {
	if m.sync != nil {
		if state, ok := m.sync.load(ctx); ok {
			if state.Data != nil {
				m.validate(*state.Data, "load")
			}
			m.log.Info("state rehydrated from storage", map[string]any{"machine": m.name})
			return state
		}
	}

	state := State[T]{}
	if m.cfg.initial != nil {
		m.validate(*m.cfg.initial, "load")
		cloned := cloneData(*m.cfg.initial)
		state.Data = &cloned
	}
	return state
}

// Name returns the machine's logical identity and storage key.
func (m *Machine[T]) Name() string {
	return m.name
}

// State returns a snapshot of the current state. The payload is cloned so
// callers can never alias the machine's own value.
func (m *Machine[T]) State() State[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine[T]) snapshotLocked() State[T] {
	snapshot := m.state
	if snapshot.Data != nil {
		cloned := cloneData(*snapshot.Data)
		snapshot.Data = &cloned
	}
	return snapshot
}

// Dispatch applies one action. Actions against the same machine are processed
// strictly in dispatch order. Validation and persistence failures never
// surface here; the only errors are usage errors.
func (m *Machine[T]) Dispatch(ctx context.Context, action Action[T]) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	next, eff, changed := m.reduce(m.state, action)
	if !changed {
		m.mu.Unlock()
		return nil
	}
	m.state = next

	if m.sync != nil {
		switch eff {
		case effectWrite:
			m.sync.write(ctx, next)
		case effectSchedule:
			m.sync.schedule(next)
		case effectRemove:
			m.sync.remove(ctx)
		}
	}
	m.mu.Unlock()

	m.emit(ctx, action, next)
	return nil
}

// Close flushes any pending deferred write and retires the machine. Further
// dispatches fail with ErrClosed. Close is idempotent.
func (m *Machine[T]) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.sync != nil {
		m.sync.flush()
	}
	return nil
}

func (m *Machine[T]) emit(ctx context.Context, action Action[T], next State[T]) {
	if m.emitter == nil {
		return
	}
	event := activity.Event{
		Verb:       string(action.Type),
		ObjectType: "state",
		ObjectID:   m.name,
		Metadata: map[string]any{
			"loading":   next.Loading,
			"has_data":  next.Data != nil,
			"has_error": next.Error != "",
		},
	}
	if err := m.emitter.Emit(ctx, event); err != nil {
		m.log.Warn("activity emission failed", map[string]any{"machine": m.name, "error": err.Error()})
	}
}

// decodePatch converts a merged field map back into T. Decode failures are
// advisory: the partial result is applied anyway and the mismatch logged.
func (m *Machine[T]) decodePatch(payload map[string]any) T {
	value, err := m.dec.Decode(hydrate.Context{Name: m.name}, payload)
	if err != nil {
		m.log.Warn("patch does not conform to schema type", map[string]any{"machine": m.name, "error": err.Error()})
	}
	return value
}
