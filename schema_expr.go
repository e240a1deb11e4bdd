package rssm

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprSchemaOption configures an expr-backed schema instance.
type ExprSchemaOption[T any] func(*ExprSchema[T])

// ExprWithProgramCache wires a ProgramCache into the expr schema.
func ExprWithProgramCache[T any](cache ProgramCache) ExprSchemaOption[T] {
	return func(s *ExprSchema[T]) {
		s.cache = cache
	}
}

// ExprWithFunctions wires a FunctionRegistry into the expr schema.
func ExprWithFunctions[T any](registry *FunctionRegistry) ExprSchemaOption[T] {
	return func(s *ExprSchema[T]) {
		if registry == nil {
			return
		}
		s.registry = registry.Clone()
	}
}

// ExprSchema validates candidate values using github.com/expr-lang/expr rule
// expressions evaluated against the value's fields.
type ExprSchema[T any] struct {
	rules    []Rule
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprSchema constructs a Schema backed by expr-lang/expr.
func NewExprSchema[T any](rules []Rule, opts ...ExprSchemaOption[T]) *ExprSchema[T] {
	s := &ExprSchema[T]{rules: append([]Rule(nil), rules...)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Parse decodes value into T and evaluates every rule against it. The decoded
// value is returned even when validation fails.
func (s *ExprSchema[T]) Parse(value any) (T, error) {
	decoded, payload, err := decodeCandidate[T](value)
	if err != nil {
		return decoded, wrapSchemaError("expr", err)
	}

	env := ruleEnvironment(payload)
	if s.registry != nil {
		for _, name := range s.registry.Names() {
			fn := name
			env[fn] = func(arguments ...any) (any, error) {
				return s.registry.Call(fn, arguments...)
			}
		}
	}

	var failures []error
	for _, rule := range s.rules {
		if rule.Expr == "" {
			continue
		}
		program, err := s.loadOrCompile(rule.Expr, ruleEnvironment(payload))
		if err != nil {
			failures = append(failures, err)
			continue
		}
		result, err := exprlang.Run(program, env)
		if err != nil {
			failures = append(failures, wrapValidationError("expr", rule.label(), err))
			continue
		}
		if !ruleHolds(result) {
			failures = append(failures, rule.failure("expr"))
		}
	}
	return decoded, joinRuleErrors(failures)
}

func (s *ExprSchema[T]) loadOrCompile(expression string, fields map[string]any) (*exprvm.Program, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	// Payload fields are declared in the compile environment so their names
	// shadow expr builtins of the same name (count, len, and friends).
	options := []exprlang.Option{
		exprlang.Env(fields),
		exprlang.AllowUndefinedVariables(),
	}
	if s.registry != nil {
		for _, name := range s.registry.Names() {
			fn := name
			options = append(options, exprlang.Function(fn, func(arguments ...any) (any, error) {
				return s.registry.Call(fn, arguments...)
			}))
		}
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapValidationError("expr", expression, err)
	}
	if s.cache != nil {
		s.cache.Set(expression, program)
	}
	return program, nil
}
