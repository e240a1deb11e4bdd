package rssm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yowainwright/rssm/pkg/storage"
)

type testDoc struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) record(level, msg string, fields []map[string]any) {
	merged := map[string]any{}
	for _, set := range fields {
		for k, v := range set {
			merged[k] = v
		}
	}
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: merged})
	l.mu.Unlock()
}

func (l *captureLogger) Info(msg string, fields ...map[string]any)  { l.record("info", msg, fields) }
func (l *captureLogger) Warn(msg string, fields ...map[string]any)  { l.record("warn", msg, fields) }
func (l *captureLogger) Error(msg string, fields ...map[string]any) { l.record("error", msg, fields) }

func (l *captureLogger) count(level, contains string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, contains) {
			n++
		}
	}
	return n
}

func (l *captureLogger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// recordingAdapter wraps a real adapter and counts calls.
type recordingAdapter struct {
	inner storage.Adapter

	mu      sync.Mutex
	sets    int
	removes int
	last    storage.Record
	failAll error
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{inner: storage.NewMemoryAdapter()}
}

func (a *recordingAdapter) Get(ctx context.Context, key string) (storage.Record, bool, error) {
	if a.failAll != nil {
		return storage.Record{}, false, a.failAll
	}
	return a.inner.Get(ctx, key)
}

func (a *recordingAdapter) Set(ctx context.Context, key string, record storage.Record, opts storage.SetOptions) error {
	a.mu.Lock()
	a.sets++
	a.last = record
	a.mu.Unlock()
	if a.failAll != nil {
		return a.failAll
	}
	return a.inner.Set(ctx, key, record, opts)
}

func (a *recordingAdapter) Remove(ctx context.Context, key string) error {
	a.mu.Lock()
	a.removes++
	a.mu.Unlock()
	if a.failAll != nil {
		return a.failAll
	}
	return a.inner.Remove(ctx, key)
}

func (a *recordingAdapter) setCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets
}

func (a *recordingAdapter) removeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removes
}

func (a *recordingAdapter) lastRecord() storage.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func failingSchema[T any](err error) SchemaFunc[T] {
	return func(value any) (T, error) {
		var zero T
		return zero, err
	}
}

func TestNewRequiresName(t *testing.T) {
	if _, err := New[testDoc](""); err == nil {
		t.Fatal("expected error for empty machine name")
	}
}

func TestCreateThenRead(t *testing.T) {
	m, err := New("docs", WithPersistence[testDoc](false))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	actions := m.Actions()
	ctx := context.Background()

	doc := testDoc{ID: "1", Count: 1}
	if err := actions.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	state := m.State()
	if state.Data == nil || *state.Data != doc {
		t.Fatalf("expected data %+v, got %+v", doc, state.Data)
	}
	if state.Loading || state.Error != "" {
		t.Fatalf("expected clean flags, got loading=%v error=%q", state.Loading, state.Error)
	}

	if err := actions.Read(ctx, doc); err != nil {
		t.Fatalf("read: %v", err)
	}
	state = m.State()
	if state.Data == nil || *state.Data != doc {
		t.Fatalf("read: expected data %+v, got %+v", doc, state.Data)
	}
}

func TestUpdateMergeSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("patch overrides, absent fields preserved", func(t *testing.T) {
		m, _ := New("docs", WithPersistence[testDoc](false))
		actions := m.Actions()
		if err := actions.Create(ctx, testDoc{ID: "1", Count: 1}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := actions.Update(ctx, map[string]any{"count": 2}); err != nil {
			t.Fatalf("update: %v", err)
		}
		state := m.State()
		want := testDoc{ID: "1", Count: 2}
		if state.Data == nil || *state.Data != want {
			t.Fatalf("expected %+v, got %+v", want, state.Data)
		}
	})

	t.Run("patch with absent data applied as-is", func(t *testing.T) {
		m, _ := New("docs", WithPersistence[testDoc](false))
		if err := m.Actions().Update(ctx, map[string]any{"count": 2}); err != nil {
			t.Fatalf("update: %v", err)
		}
		state := m.State()
		want := testDoc{Count: 2}
		if state.Data == nil || *state.Data != want {
			t.Fatalf("expected partial %+v, got %+v", want, state.Data)
		}
	})

	t.Run("update clears previous error", func(t *testing.T) {
		m, _ := New("docs", WithPersistence[testDoc](false))
		actions := m.Actions()
		if err := actions.Create(ctx, testDoc{ID: "1"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := actions.SetError(ctx, "boom"); err != nil {
			t.Fatalf("set error: %v", err)
		}
		if err := actions.Update(ctx, map[string]any{"count": 3}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if state := m.State(); state.Error != "" {
			t.Fatalf("expected error cleared, got %q", state.Error)
		}
	})
}

func TestUpdateNoChangeShortCircuit(t *testing.T) {
	logger := &captureLogger{}
	adapter := newRecordingAdapter()
	m, err := New("docs",
		WithAdapter[testDoc](adapter),
		WithDebounceDelay[testDoc](10*time.Millisecond),
		WithLogging[testDoc](true),
		WithLogger[testDoc](logger),
	)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	actions := m.Actions()
	ctx := context.Background()

	if err := actions.Create(ctx, testDoc{ID: "1", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := actions.Update(ctx, map[string]any{"count": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := actions.Update(ctx, map[string]any{"count": 2}); err != nil {
		t.Fatalf("repeat update: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	// One immediate create write plus exactly one coalesced update write.
	if got := adapter.setCount(); got != 2 {
		t.Fatalf("expected 2 writes, got %d", got)
	}
	if got := logger.count("info", "no changes"); got != 1 {
		t.Fatalf("expected one no-changes log, got %d", got)
	}
}

func TestInvalidPayloadStillApplied(t *testing.T) {
	ctx := context.Background()
	schemaErr := errors.New("bad shape")

	t.Run("logging enabled warns", func(t *testing.T) {
		logger := &captureLogger{}
		m, _ := New("docs",
			WithPersistence[testDoc](false),
			WithSchema[testDoc](failingSchema[testDoc](schemaErr)),
			WithLogging[testDoc](true),
			WithLogger[testDoc](logger),
		)
		doc := testDoc{ID: "1", Count: 1}
		if err := m.Actions().Create(ctx, doc); err != nil {
			t.Fatalf("create: %v", err)
		}
		if state := m.State(); state.Data == nil || *state.Data != doc {
			t.Fatalf("invalid payload must still be applied, got %+v", state.Data)
		}
		if got := logger.count("warn", "validation failed"); got != 1 {
			t.Fatalf("expected one validation warning, got %d", got)
		}
	})

	t.Run("logging disabled stays silent", func(t *testing.T) {
		logger := &captureLogger{}
		m, _ := New("docs",
			WithPersistence[testDoc](false),
			WithSchema[testDoc](failingSchema[testDoc](schemaErr)),
			WithLogger[testDoc](logger),
		)
		doc := testDoc{ID: "1", Count: 1}
		if err := m.Actions().Create(ctx, doc); err != nil {
			t.Fatalf("create: %v", err)
		}
		if state := m.State(); state.Data == nil || *state.Data != doc {
			t.Fatalf("invalid payload must still be applied, got %+v", state.Data)
		}
		if logger.len() != 0 {
			t.Fatalf("expected no log calls, got %d", logger.len())
		}
	})
}

func TestSetLoadingIdempotent(t *testing.T) {
	adapter := newRecordingAdapter()
	m, _ := New("docs",
		WithAdapter[testDoc](adapter),
		WithDebounceDelay[testDoc](10*time.Millisecond),
	)
	actions := m.Actions()
	ctx := context.Background()

	if err := actions.SetLoading(ctx, true); err != nil {
		t.Fatalf("set loading: %v", err)
	}
	if err := actions.SetLoading(ctx, true); err != nil {
		t.Fatalf("repeat set loading: %v", err)
	}
	if !m.State().Loading {
		t.Fatal("expected loading=true")
	}

	time.Sleep(60 * time.Millisecond)
	if got := adapter.setCount(); got != 1 {
		t.Fatalf("expected at most one write, got %d", got)
	}
}

func TestSetErrorSemantics(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	adapter := newRecordingAdapter()
	m, _ := New("docs",
		WithAdapter[testDoc](adapter),
		WithDebounceDelay[testDoc](10*time.Millisecond),
		WithLogging[testDoc](true),
		WithLogger[testDoc](logger),
	)
	actions := m.Actions()

	if err := actions.SetLoading(ctx, true); err != nil {
		t.Fatalf("set loading: %v", err)
	}
	if err := actions.SetError(ctx, "boom"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	state := m.State()
	if state.Error != "boom" {
		t.Fatalf("expected error %q, got %q", "boom", state.Error)
	}
	if state.Loading {
		t.Fatal("set error must force loading=false")
	}
	if got := logger.count("warn", "will be persisted"); got != 1 {
		t.Fatalf("expected one persisted-error warning, got %d", got)
	}

	before := logger.len()
	if err := actions.SetError(ctx, "boom"); err != nil {
		t.Fatalf("repeat set error: %v", err)
	}
	if logger.len() != before {
		t.Fatal("identical error must short-circuit without logging")
	}
}

func TestDestroyAndReset(t *testing.T) {
	ctx := context.Background()
	for _, verb := range []ActionType{ActionDestroy, ActionReset} {
		t.Run(string(verb), func(t *testing.T) {
			adapter := newRecordingAdapter()
			m, _ := New("docs", WithAdapter[testDoc](adapter))
			actions := m.Actions()

			if err := actions.Create(ctx, testDoc{ID: "1", Count: 1}); err != nil {
				t.Fatalf("create: %v", err)
			}
			var err error
			if verb == ActionDestroy {
				err = actions.Destroy(ctx)
			} else {
				err = actions.Reset(ctx)
			}
			if err != nil {
				t.Fatalf("%s: %v", verb, err)
			}

			state := m.State()
			if state.Data != nil || state.Loading || state.Error != "" {
				t.Fatalf("expected empty state, got %+v", state)
			}
			if got := adapter.removeCount(); got != 1 {
				t.Fatalf("expected exactly one removal, got %d", got)
			}
		})
	}
}

func TestUnknownActionIsNoop(t *testing.T) {
	m, _ := New("docs", WithPersistence[testDoc](false))
	ctx := context.Background()
	if err := m.Actions().Create(ctx, testDoc{ID: "1", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := m.State()

	if err := m.Dispatch(ctx, Action[testDoc]{Type: ActionType("bogus")}); err != nil {
		t.Fatalf("dispatch unknown: %v", err)
	}
	after := m.State()
	if *after.Data != *before.Data || after.Loading != before.Loading || after.Error != before.Error {
		t.Fatalf("unknown action must leave state untouched: %+v vs %+v", before, after)
	}
}

func TestAccessorUnbound(t *testing.T) {
	ctx := context.Background()
	var unbound Actions[testDoc]

	if err := unbound.Create(ctx, testDoc{}); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
	if err := unbound.Destroy(ctx); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
	if _, err := unbound.State(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	ctx := context.Background()
	m, _ := New("docs", WithPersistence[testDoc](false))
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close must be idempotent: %v", err)
	}
	if err := m.Actions().Create(ctx, testDoc{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStateSnapshotDoesNotAlias(t *testing.T) {
	type nested struct {
		Tags []string `json:"tags"`
	}
	ctx := context.Background()
	m, _ := New("docs", WithPersistence[nested](false))
	if err := m.Actions().Create(ctx, nested{Tags: []string{"a"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshot := m.State()
	snapshot.Data.Tags[0] = "mutated"

	if got := m.State().Data.Tags[0]; got != "a" {
		t.Fatalf("snapshot mutation leaked into machine state: %q", got)
	}
}

// Concrete end-to-end scenario with persistence disabled.
func TestCRUDScenario(t *testing.T) {
	ctx := context.Background()
	m, _ := New("scenario", WithPersistence[testDoc](false))
	actions := m.Actions()

	if err := actions.Create(ctx, testDoc{ID: "1", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := *m.State().Data; got != (testDoc{ID: "1", Count: 1}) {
		t.Fatalf("after create: %+v", got)
	}

	if err := actions.Update(ctx, map[string]any{"count": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := *m.State().Data; got != (testDoc{ID: "1", Count: 2}) {
		t.Fatalf("after update: %+v", got)
	}

	if err := actions.Update(ctx, map[string]any{"count": 2}); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if got := *m.State().Data; got != (testDoc{ID: "1", Count: 2}) {
		t.Fatalf("after no-op update: %+v", got)
	}

	if err := actions.Destroy(ctx); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if got := m.State(); got.Data != nil {
		t.Fatalf("after destroy: %+v", got)
	}
}
