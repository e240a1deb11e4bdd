package rssm

import (
	"errors"
	"fmt"
)

// ErrNotBound reports an accessor used without an owning machine. This is a
// programmer error, not a data condition, and is never swallowed.
var ErrNotBound = errors.New("rssm: actions used without a bound machine")

// ErrClosed reports a dispatch against a machine after Close.
var ErrClosed = errors.New("rssm: machine is closed")

// ValidationError captures validator metadata alongside the originating error.
type ValidationError struct {
	Engine string
	Rule   string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rssm: %s schema %s: %v", e.Engine, describeRule(e.Rule), e.Err)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeRule(rule string) string {
	if rule == "" {
		return "rule=<none>"
	}
	return fmt.Sprintf("rule=%q", rule)
}

func wrapSchemaError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	return fmt.Errorf("rssm: %s schema: %w", engine, err)
}

func wrapValidationError(engine, rule string, err error) error {
	if err == nil {
		return nil
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		if valErr.Engine == "" {
			valErr.Engine = engine
		}
		if valErr.Rule == "" {
			valErr.Rule = rule
		}
		return valErr
	}

	return &ValidationError{
		Engine: engine,
		Rule:   rule,
		Err:    err,
	}
}
