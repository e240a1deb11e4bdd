package rssm

import "context"

// Actions is the closed seven-entry accessor a machine exposes to consuming
// code. The zero value is unbound; every call on it fails with ErrNotBound.
type Actions[T any] struct {
	machine *Machine[T]
}

// Actions returns the accessor bound to m.
func (m *Machine[T]) Actions() Actions[T] {
	return Actions[T]{machine: m}
}

// Create replaces the managed payload and persists it immediately.
func (a Actions[T]) Create(ctx context.Context, data T) error {
	return a.dispatch(ctx, Action[T]{Type: ActionCreate, Data: &data})
}

// Read behaves identically to Create; the distinct verb exists for callers
// that want to label cache-fill transitions separately.
func (a Actions[T]) Read(ctx context.Context, data T) error {
	return a.dispatch(ctx, Action[T]{Type: ActionRead, Data: &data})
}

// Update merges the partial patch onto the current payload. Patches that
// produce no change short-circuit without persisting.
func (a Actions[T]) Update(ctx context.Context, patch map[string]any) error {
	return a.dispatch(ctx, Action[T]{Type: ActionUpdate, Patch: patch})
}

// Destroy clears the payload and removes the durable record.
func (a Actions[T]) Destroy(ctx context.Context) error {
	return a.dispatch(ctx, Action[T]{Type: ActionDestroy})
}

// SetLoading sets the advisory loading flag. Repeats are no-ops.
func (a Actions[T]) SetLoading(ctx context.Context, loading bool) error {
	return a.dispatch(ctx, Action[T]{Type: ActionSetLoading, Loading: loading})
}

// SetError records an advisory error message and forces loading off. An
// empty message clears the error.
func (a Actions[T]) SetError(ctx context.Context, msg string) error {
	return a.dispatch(ctx, Action[T]{Type: ActionSetError, Error: msg})
}

// Reset clears the payload and removes the durable record, like Destroy.
func (a Actions[T]) Reset(ctx context.Context) error {
	return a.dispatch(ctx, Action[T]{Type: ActionReset})
}

// State exposes the bound machine's current snapshot.
func (a Actions[T]) State() (State[T], error) {
	if a.machine == nil {
		return State[T]{}, ErrNotBound
	}
	return a.machine.State(), nil
}

func (a Actions[T]) dispatch(ctx context.Context, action Action[T]) error {
	if a.machine == nil {
		return ErrNotBound
	}
	return a.machine.Dispatch(ctx, action)
}
