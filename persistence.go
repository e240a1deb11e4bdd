package rssm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yowainwright/rssm/internal/hydrate"
	"github.com/yowainwright/rssm/pkg/storage"
)

// synchronizer bridges machine state to a durable key-value adapter. It is
// best-effort by contract: every storage failure is caught here and reduced
// to a log line so the in-memory transition always completes.
type synchronizer[T any] struct {
	adapter  storage.Adapter
	key      string
	ttl      time.Duration
	encrypt  bool
	log      Logger
	dec      *hydrate.Decoder[T]
	debounce *debouncer
}

func newSynchronizer[T any](key string, cfg machineConfig[T], log Logger, dec *hydrate.Decoder[T]) *synchronizer[T] {
	return &synchronizer[T]{
		adapter:  cfg.adapter,
		key:      key,
		ttl:      cfg.ttl,
		encrypt:  cfg.encrypt,
		log:      log,
		dec:      dec,
		debounce: newDebouncer(cfg.debounceDelay),
	}
}

// load reads the durable record once at construction time. Any read failure
// or missing/empty payload reports ok=false so the caller falls back to its
// initial data.
func (s *synchronizer[T]) load(ctx context.Context) (State[T], bool) {
	record, ok, err := s.adapter.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("load persisted state failed", map[string]any{"key": s.key, "error": err.Error()})
		return State[T]{}, false
	}
	if !ok || isNullPayload(record.Data) {
		return State[T]{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal(record.Data, &payload); err != nil {
		s.log.Warn("persisted record is corrupt", map[string]any{"key": s.key, "error": err.Error()})
		return State[T]{}, false
	}

	value, err := s.dec.Decode(hydrate.Context{Name: s.key}, payload)
	if err != nil {
		// Partial decodes are still adopted; schema drift is advisory.
		s.log.Warn("rehydrate persisted state", map[string]any{"key": s.key, "error": err.Error()})
	}

	return State[T]{Data: &value, Loading: record.Loading, Error: record.Error}, true
}

// write persists state synchronously, discarding any pending deferred write
// first so a stale flush cannot overwrite the fresher record. Failures are
// logged, never returned.
func (s *synchronizer[T]) write(ctx context.Context, state State[T]) {
	s.debounce.Stop()

	data := json.RawMessage("null")
	if state.Data != nil {
		raw, err := json.Marshal(state.Data)
		if err != nil {
			s.log.Error("marshal state for persistence failed", map[string]any{"key": s.key, "error": err.Error()})
			return
		}
		data = raw
	}

	record := storage.Record{
		Data:    data,
		Loading: state.Loading,
		Error:   state.Error,
		Meta: storage.Meta{
			SnapshotID: uuid.NewString(),
			UpdatedAt:  time.Now(),
		},
	}
	opts := storage.SetOptions{TTL: s.ttl, Encrypt: s.encrypt}
	if err := s.adapter.Set(ctx, s.key, record, opts); err != nil {
		s.log.Error("persist state failed", map[string]any{"key": s.key, "error": err.Error()})
	}
}

// schedule coalesces rapid writes; only the most recent state survives until
// the quiescence delay elapses.
func (s *synchronizer[T]) schedule(state State[T]) {
	s.debounce.Schedule(func() {
		s.write(context.Background(), state)
	})
}

// remove deletes the durable record and discards any pending deferred write,
// so a stale flush cannot resurrect destroyed state.
func (s *synchronizer[T]) remove(ctx context.Context) {
	s.debounce.Stop()
	if err := s.adapter.Remove(ctx, s.key); err != nil {
		s.log.Error("remove persisted state failed", map[string]any{"key": s.key, "error": err.Error()})
	}
}

// flush forces any pending deferred write to complete. Called on teardown so
// no update is silently lost.
func (s *synchronizer[T]) flush() {
	s.debounce.Flush()
}

func isNullPayload(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return string(raw) == "null"
}
