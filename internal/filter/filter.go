// Package filter evaluates CEL expressions (--where) against records.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ErrNotBool is returned when an expression does not evaluate to a bool.
var ErrNotBool = errors.New("filter expression must evaluate to a bool")

// Filter is a compiled expression. A nil Filter matches everything.
type Filter struct {
	src    string
	fields []string
	prg    cel.Program
}

// Compile parses expr with each of fields declared as a top-level variable,
// e.g. Compile(`status == "pendiente" && clientId == "c1"`, "status", "clientId").
// An empty expr returns a nil Filter.
func Compile(expr string, fields ...string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	opts := make([]cel.EnvOption, 0, len(fields))
	for _, f := range fields {
		opts = append(opts, cel.Variable(f, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("filter env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program filter %q: %w", expr, err)
	}
	return &Filter{src: expr, fields: fields, prg: prg}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match evaluates the filter against record's JSON form. Declared fields the
// record omits are bound to "".
func (f *Filter) Match(record any) (bool, error) {
	if f == nil {
		return true, nil
	}
	vars, err := bindings(record)
	if err != nil {
		return false, err
	}
	for _, name := range f.fields {
		if _, ok := vars[name]; !ok {
			vars[name] = ""
		}
	}
	out, _, err := f.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("eval filter %q: %w", f.src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBool, out.Value())
	}
	return b, nil
}

// Apply returns the items that match f, keeping their order.
func Apply[T any](f *Filter, items []T) ([]T, error) {
	if f == nil {
		return items, nil
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		ok, err := f.Match(it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func bindings(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	vars := map[string]any{}
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}
	return vars, nil
}
