package rssm

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELSchemaOption configures a CEL-backed schema instance.
type CELSchemaOption[T any] func(*CELSchema[T])

// CELWithProgramCache wires a ProgramCache into the CEL schema.
func CELWithProgramCache[T any](cache ProgramCache) CELSchemaOption[T] {
	return func(s *CELSchema[T]) {
		s.cache = cache
	}
}

// CELWithFunctions wires a FunctionRegistry into the CEL schema.
func CELWithFunctions[T any](registry *FunctionRegistry) CELSchemaOption[T] {
	return func(s *CELSchema[T]) {
		if registry == nil {
			return
		}
		s.registry = registry.Clone()
	}
}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

// CELSchema validates candidate values using google/cel-go rule expressions.
type CELSchema[T any] struct {
	rules    []Rule
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELSchema constructs a Schema backed by cel-go.
func NewCELSchema[T any](rules []Rule, opts ...CELSchemaOption[T]) *CELSchema[T] {
	s := &CELSchema[T]{rules: append([]Rule(nil), rules...)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Parse decodes value into T and evaluates every rule against it. The decoded
// value is returned even when validation fails.
func (s *CELSchema[T]) Parse(value any) (T, error) {
	decoded, payload, err := decodeCandidate[T](value)
	if err != nil {
		return decoded, wrapSchemaError("cel", err)
	}

	activation := ruleEnvironment(payload)
	if s.registry != nil {
		activation["call"] = func(name string, arguments ...any) (any, error) {
			return s.registry.Call(name, arguments...)
		}
	}

	var failures []error
	for _, rule := range s.rules {
		if rule.Expr == "" {
			continue
		}
		program, err := s.loadOrCompile(rule.Expr, payload)
		if err != nil {
			failures = append(failures, wrapValidationError("cel", rule.label(), err))
			continue
		}
		out, _, err := program.program.Eval(activation)
		if err != nil {
			failures = append(failures, wrapValidationError("cel", rule.label(), err))
			continue
		}
		if !ruleHolds(out.Value()) {
			failures = append(failures, rule.failure("cel"))
		}
	}
	return decoded, joinRuleErrors(failures)
}

func (s *CELSchema[T]) loadOrCompile(expression string, payload map[string]any) (*celProgram, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(expression); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := s.buildEnv(payload)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, err
	}

	bundle := &celProgram{env: env, program: prg}
	if s.cache != nil {
		s.cache.Set(expression, bundle)
	}
	return bundle, nil
}

func (s *CELSchema[T]) buildEnv(payload map[string]any) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("value", celgo.DynType),
	}
	if s.registry != nil {
		opts = append(opts, s.callFunction())
	}
	for key := range payload {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	return celgo.NewEnv(opts...)
}

// callFunction declares call(name, args...). CEL overloads carry fixed
// signatures, so each supported arity gets its own overload sharing one
// variadic binding.
func (s *CELSchema[T]) callFunction() celgo.EnvOption {
	binding := celgo.FunctionBinding(s.callBinding())
	args := []*celgo.Type{celgo.StringType}
	overloads := make([]celgo.FunctionOpt, 0, maxCallArity+1)
	for arity := 0; arity <= maxCallArity; arity++ {
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("call_dyn_%d", arity),
			append([]*celgo.Type(nil), args...),
			celgo.DynType,
			binding,
		))
		args = append(args, celgo.DynType)
	}
	return celgo.Function("call", overloads...)
}

// maxCallArity caps how many arguments call() accepts after the function name.
const maxCallArity = 4

func (s *CELSchema[T]) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if s.registry == nil {
			return types.NewErr("rssm: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("rssm: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("rssm: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := s.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
