//go:build js_eval

package rssm

import (
	"fmt"

	"github.com/dop251/goja"
)

// JSSchema validates candidate values using goja-evaluated JavaScript rule
// expressions. Each Parse runs rules in a fresh runtime.
type JSSchema[T any] struct {
	rules    []Rule
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSSchema constructs a Schema backed by goja.
func NewJSSchema[T any](rules []Rule, opts ...JSSchemaOption) *JSSchema[T] {
	cfg := applyJSSchemaOptions(opts)
	return &JSSchema[T]{
		rules:    append([]Rule(nil), rules...),
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

// Parse decodes value into T and evaluates every rule against it. The decoded
// value is returned even when validation fails.
func (s *JSSchema[T]) Parse(value any) (T, error) {
	decoded, payload, err := decodeCandidate[T](value)
	if err != nil {
		return decoded, wrapSchemaError("js", err)
	}

	vm := goja.New()
	s.injectPayload(vm, payload)

	var failures []error
	for _, rule := range s.rules {
		if rule.Expr == "" {
			continue
		}
		result, err := s.run(vm, rule.Expr)
		if err != nil {
			failures = append(failures, wrapValidationError("js", rule.label(), err))
			continue
		}
		if !ruleHolds(result) {
			failures = append(failures, rule.failure("js"))
		}
	}
	return decoded, joinRuleErrors(failures)
}

func (s *JSSchema[T]) run(vm *goja.Runtime, expression string) (any, error) {
	program, err := s.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	if program != nil {
		value, err := vm.RunProgram(program)
		if err != nil {
			return nil, err
		}
		return value.Export(), nil
	}
	value, err := vm.RunString(wrapJSExpression(expression))
	if err != nil {
		return nil, err
	}
	return value.Export(), nil
}

func (s *JSSchema[T]) loadOrCompile(expression string) (*goja.Program, error) {
	if s.cache == nil {
		return nil, nil
	}
	if cached, ok := s.cache.Get(expression); ok {
		if program, ok := cached.(*goja.Program); ok {
			return program, nil
		}
	}
	program, err := goja.Compile("", wrapJSExpression(expression), false)
	if err != nil {
		return nil, err
	}
	s.cache.Set(expression, program)
	return program, nil
}

func (s *JSSchema[T]) injectPayload(vm *goja.Runtime, payload map[string]any) {
	vm.Set("value", payload)
	for key, val := range payload {
		vm.Set(key, val)
	}
	if s.registry != nil {
		vm.Set("call", func(name string, arguments ...any) (any, error) {
			return s.registry.Call(name, arguments...)
		})
		for _, name := range s.registry.Names() {
			fn := name
			vm.Set(fn, func(arguments ...any) (any, error) {
				return s.registry.Call(fn, arguments...)
			})
		}
	}
}

func wrapJSExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

func jsSchemaAvailable() bool {
	return true
}
