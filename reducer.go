package rssm

import "reflect"

// effect names the single persistence side effect a transition may request.
type effect int

const (
	effectNone effect = iota
	// effectWrite persists the next state synchronously within the transition.
	effectWrite
	// effectSchedule persists the next state through the debounced path.
	effectSchedule
	// effectRemove deletes the durable record synchronously.
	effectRemove
)

// reduce maps (state, action) to the next state plus the persistence effect.
// It never mutates its input; changed=false means the caller must keep the
// current state value untouched (same-reference short circuit).
func (m *Machine[T]) reduce(state State[T], action Action[T]) (State[T], effect, bool) {
	switch action.Type {
	case ActionCreate, ActionRead:
		next := State[T]{Loading: false, Error: ""}
		if action.Data != nil {
			m.validate(*action.Data, action.Type)
			cloned := cloneData(*action.Data)
			next.Data = &cloned
		}
		return next, effectWrite, true

	case ActionUpdate:
		return m.reduceUpdate(state, action)

	case ActionDestroy, ActionReset:
		m.log.Info("state reset", map[string]any{"machine": m.name, "action": string(action.Type)})
		return State[T]{}, effectRemove, true

	case ActionSetLoading:
		if state.Loading == action.Loading {
			return state, effectNone, false
		}
		next := state
		next.Loading = action.Loading
		return next, effectSchedule, true

	case ActionSetError:
		if state.Error == action.Error {
			return state, effectNone, false
		}
		if action.Error != "" {
			m.log.Warn("error will be persisted", map[string]any{"machine": m.name, "error": action.Error})
		}
		next := state
		next.Error = action.Error
		next.Loading = false
		return next, effectSchedule, true

	default:
		// Unknown action types leave state untouched.
		return state, effectNone, false
	}
}

func (m *Machine[T]) reduceUpdate(state State[T], action Action[T]) (State[T], effect, bool) {
	merged := action.Patch
	if state.Data != nil {
		base, err := dataAsMap(*state.Data)
		if err != nil {
			m.log.Warn("flatten current data failed", map[string]any{"machine": m.name, "error": err.Error()})
			base = map[string]any{}
		}
		merged = shallowMerge(base, action.Patch)
	}
	// When Data is absent the partial patch is adopted as-is, even though it
	// may not fully populate T. Callers relying on this should dispatch a
	// full create instead.
	decoded := m.decodePatch(merged)

	if state.Data != nil && reflect.DeepEqual(decoded, *state.Data) {
		m.log.Info("no changes detected, skipping update", map[string]any{"machine": m.name})
		return state, effectNone, false
	}

	m.validate(decoded, ActionUpdate)

	next := state
	next.Data = &decoded
	next.Error = ""
	return next, effectSchedule, true
}

// validate runs the advisory schema check. Failures are logged and never
// block the transition.
func (m *Machine[T]) validate(value any, action ActionType) {
	if m.cfg.schema == nil {
		return
	}
	if _, err := m.cfg.schema.Parse(value); err != nil {
		m.log.Warn("schema validation failed", map[string]any{
			"machine": m.name,
			"action":  string(action),
			"error":   err.Error(),
		})
	}
}
