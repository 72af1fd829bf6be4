// Package expression evaluates configuration expressions and string templates
// against a layered binding scope.
//
// Expressions use the expr-lang grammar: boolean, arithmetic, comparison,
// membership and string operators, member access and the expr builtins. The
// helpers utcnow, timestamp, format_duration and to_duration are registered on
// top of that. Nothing outside this grammar can be executed from configuration.
package expression

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/variables"
	"github.com/expr-lang/expr"
)

// Scope carries the bindings of one action invocation. Globals come from the
// Evaluator's variable store; Locals are the action's own fields and Extras
// the invocation's additional bindings.
type Scope struct {
	Locals map[string]any
	Extras map[string]any
}

// Layers returns the binding maps in increasing precedence.
func (s Scope) Layers() []map[string]any {
	return []map[string]any{s.Locals, s.Extras}
}

// Opts configures an Evaluator.
type Opts struct {
	Vars *variables.Store
}

// Option mutates Opts.
type Option func(*Opts)

// WithVariables sets the global variable store.
func WithVariables(vars *variables.Store) Option {
	return func(o *Opts) {
		o.Vars = vars
	}
}

// Evaluator evaluates expressions. It is safe for concurrent use.
type Evaluator struct {
	vars *variables.Store
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Evaluator{vars: cfg.Vars}
}

// Variables returns the global variable store, which may be nil.
func (e *Evaluator) Variables() *variables.Store {
	return e.vars
}

// Env flattens globals, locals and extras into one environment. Later layers
// win on name collisions.
func (e *Evaluator) Env(scope Scope) map[string]any {
	env := make(map[string]any)
	if e.vars != nil {
		for k, v := range e.vars.Snapshot() {
			env[k] = v
		}
	}
	for _, layer := range scope.Layers() {
		for k, v := range layer {
			env[k] = v
		}
	}
	return env
}

// Evaluate runs one expression. Failures are logged as an EvaluationError and
// yield (nil, false).
func (e *Evaluator) Evaluate(path models.ExecutionPath, src string, scope Scope) (any, bool) {
	if strings.TrimSpace(src) == "" {
		slog.Warn("Evaluator.Evaluate: nothing to evaluate", "path", path)
		return nil, false
	}
	out, err := e.run(src, e.Env(scope))
	if err != nil {
		slog.Error("Evaluator.Evaluate: evaluation failed", "error", &models.EvaluationError{Path: path, Expr: src, Err: err})
		return nil, false
	}
	slog.Debug("Evaluator.Evaluate: evaluated", "path", path, "expr", src)
	return out, true
}

// EvaluateBool evaluates src and applies Truthy to the result.
func (e *Evaluator) EvaluateBool(path models.ExecutionPath, src string, scope Scope) bool {
	v, ok := e.Evaluate(path, src, scope)
	return ok && Truthy(v)
}

// EvaluateTemplate interpolates {expr} fragments in s. "{{" and "}}" are
// literal braces. If any fragment fails the whole result is "".
func (e *Evaluator) EvaluateTemplate(path models.ExecutionPath, s string, scope Scope) string {
	if s == "" {
		return ""
	}
	parts, err := parseTemplate(s)
	if err != nil {
		slog.Error("Evaluator.EvaluateTemplate: malformed template", "path", path, "error", err)
		return ""
	}

	var env map[string]any
	var b strings.Builder
	for _, p := range parts {
		if !p.expr {
			b.WriteString(p.text)
			continue
		}
		if env == nil {
			env = e.Env(scope)
		}
		v, err := e.run(p.text, env)
		if err != nil {
			slog.Error("Evaluator.EvaluateTemplate: fragment failed", "path", path, "expr", p.text, "error", err)
			return ""
		}
		b.WriteString(Stringify(v))
	}
	return b.String()
}

func (e *Evaluator) run(src string, env map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	opts := append([]expr.Option{expr.Env(env)}, helpers()...)
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// Stringify renders a value for interpolation. Entities render through their
// String method; nil renders as "None" like unset optional fields.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "None"
		}
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Truthy reports the truth value of v: nil, false, zero numbers, empty
// strings and empty collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
