// Package compiler compiles chain expressions into query plans.
package compiler

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/chainq-dev/chainq/query/chain"
	"github.com/chainq-dev/chainq/query/dispatch"
	"github.com/chainq-dev/chainq/query/expr"
	"github.com/chainq-dev/chainq/query/plan"
)

// Options carries compile-time inputs: values for pinned parameters and
// finished-query handles bound to lowercase root names.
type Options struct {
	Params map[string]interface{}
}

// Compile parses and compiles a chain expression into a query plan.
// Compilation is pure: no I/O, no shared state, safe to run concurrently.
func Compile(source string, opts *Options) (*plan.Plan, error) {
	tree, err := expr.ParseString("query", source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return CompileTree(tree, opts)
}

// CompileTree compiles an already-built expression tree into a query plan:
// unwrap the chain, expand aliases, bind pinned values, then fold each
// canonical step into the accumulating plan.
func CompileTree(tree expr.Node, opts *Options) (*plan.Plan, error) {
	if opts == nil {
		opts = &Options{}
	}
	root, steps, err := chain.Unwrap(tree)
	if err != nil {
		return nil, err
	}
	steps, err = dispatch.Canonicalize(steps)
	if err != nil {
		return nil, err
	}
	steps, err = bindPins(steps, opts.Params)
	if err != nil {
		return nil, err
	}

	p, err := rootPlan(root, opts.Params)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		p, err = p.Apply(step)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// rootPlan resolves the chain root. An uppercase root names an entity type;
// a lowercase root is an already-bound local value and must be supplied as a
// finished-query handle in the parameters.
func rootPlan(root string, params map[string]interface{}) (*plan.Plan, error) {
	r, _ := utf8.DecodeRuneInString(root)
	if unicode.IsUpper(r) {
		return plan.New(root), nil
	}
	v, ok := params[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnboundLocal, root)
	}
	base, ok := v.(*plan.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a query handle", ErrUnboundLocal, root)
	}
	return base, nil
}

// bindPins resolves ^name pins against the caller's parameters. Pins that
// already carry a value (built programmatically) are left alone.
func bindPins(steps []chain.Step, params map[string]interface{}) ([]chain.Step, error) {
	var missing string
	bind := func(n expr.Node) expr.Node {
		pin, ok := n.(*expr.Pin)
		if !ok || pin.Value != nil || pin.Name == "" {
			return n
		}
		v, ok := params[pin.Name]
		if !ok {
			if missing == "" {
				missing = pin.Name
			}
			return n
		}
		return &expr.Pin{Name: pin.Name, Value: v}
	}
	out := make([]chain.Step, len(steps))
	for i, step := range steps {
		args := make([]expr.Node, len(step.Args))
		for j, arg := range step.Args {
			args[j] = expr.RewriteFunc(arg, bind, nil)
		}
		out[i] = chain.Step{Name: step.Name, Bang: step.Bang, Args: args}
	}
	if missing != "" {
		return nil, fmt.Errorf("%w: ^%s", ErrUnboundPin, missing)
	}
	return out, nil
}
