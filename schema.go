package rssm

import (
	"errors"
	"fmt"

	"github.com/yowainwright/rssm/internal/hydrate"
)

// Rule is one boolean expression a candidate value must satisfy. Name and
// Message are optional labels surfaced in validation failures.
type Rule struct {
	Name    string
	Expr    string
	Message string
}

func (r Rule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Expr
}

func (r Rule) failure(engine string) error {
	msg := r.Message
	if msg == "" {
		msg = "rule evaluated to false"
	}
	return &ValidationError{
		Engine: engine,
		Rule:   r.label(),
		Err:    errors.New(msg),
	}
}

// ProgramCache stores compiled rule programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// decodeCandidate flattens value into a field map and strictly decodes it
// into T. A decode failure means the value does not conform to the schema
// type; the partial result is still returned for the advisory path.
func decodeCandidate[T any](value any) (T, map[string]any, error) {
	payload, err := dataAsMap(value)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	decoded, err := hydrate.NewDecoder[T](
		hydrate.WithDisallowUnknownFields[T](),
	).Decode(hydrate.Context{}, payload)
	return decoded, payload, err
}

// ruleHolds reports whether an evaluated rule result counts as satisfied.
// Only boolean true passes; anything else is a violation.
func ruleHolds(result any) bool {
	ok, isBool := result.(bool)
	return isBool && ok
}

func ruleEnvironment(payload map[string]any) map[string]any {
	env := make(map[string]any, len(payload)+1)
	for key, value := range payload {
		env[key] = value
	}
	env["value"] = payload
	return env
}

func joinRuleErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("rssm: %d rules failed: %w", len(errs), errors.Join(errs...))
	}
}
