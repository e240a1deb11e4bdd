//go:build !js_eval

package rssm

import "errors"

// JSSchema is unavailable without the js_eval build tag.
type JSSchema[T any] struct{}

// NewJSSchema is unavailable without the js_eval build tag.
func NewJSSchema[T any](rules []Rule, opts ...JSSchemaOption) *JSSchema[T] {
	_ = applyJSSchemaOptions(opts)
	return nil
}

// Parse always fails without the js_eval build tag.
func (s *JSSchema[T]) Parse(any) (T, error) {
	var zero T
	return zero, errors.New("rssm: js schema requires the js_eval build tag")
}

func jsSchemaAvailable() bool {
	return false
}
