// Package binding resolves bare identifiers into qualified field references.
package binding

import (
	"strconv"

	"github.com/chainq-dev/chainq/query/expr"
)

// Context carries the per-step binding decision: which row placeholders are
// in scope for the step's expressions, and whether they were declared
// explicitly.
type Context struct {
	names    []string          // declared binding names, position order
	aliases  map[string]string // alias -> named binding (from alias: ident pairs)
	explicit bool
}

// Detect classifies the first argument of a step. It is an explicit binding
// iff it is a list whose every element is a bare identifier or an
// alias: identifier pair; otherwise a single default binding is synthesized.
//
// The shape check is inherently ambiguous for a plain list value whose
// elements happen to all be bare identifiers; pin such a value (^list) to
// defeat detection.
func Detect(args []expr.Node) (*Context, []expr.Node) {
	if len(args) > 0 {
		if list, ok := args[0].(*expr.List); ok && isBindingList(list) {
			ctx := &Context{explicit: true, aliases: map[string]string{}}
			for _, item := range list.Items {
				switch v := item.(type) {
				case *expr.Ident:
					ctx.names = append(ctx.names, v.Name)
				case *expr.Pair:
					ctx.aliases[v.Key] = v.Value.(*expr.Ident).Name
				}
			}
			return ctx, args[1:]
		}
	}
	return &Context{}, args
}

func isBindingList(list *expr.List) bool {
	if len(list.Items) == 0 {
		return false
	}
	for _, item := range list.Items {
		switch v := item.(type) {
		case *expr.Ident:
		case *expr.Pair:
			if _, ok := v.Value.(*expr.Ident); !ok {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Explicit reports whether the context came from an explicit binding list.
func (c *Context) Explicit() bool { return c.explicit }

// Label canonicalizes a declared binding name to its positional label
// (b0, b1, ...). Alias pairs resolve to the positional label of the
// binding they alias; an alias to an undeclared name resolves to that
// name. Unknown names are reported as not found and left for join-alias
// resolution downstream.
func (c *Context) Label(name string) (string, bool) {
	for i, n := range c.names {
		if n == name {
			return positionLabel(i), true
		}
	}
	if target, ok := c.aliases[name]; ok {
		for i, n := range c.names {
			if n == target {
				return positionLabel(i), true
			}
		}
		return target, true
	}
	return "", false
}

// DefaultLabel is the label bare identifiers are qualified with: the first
// explicit binding when one was declared, the synthesized default otherwise.
func (c *Context) DefaultLabel() string {
	return positionLabel(0)
}

func positionLabel(i int) string {
	return "b" + strconv.Itoa(i)
}

// Resolve performs the conditional recursive rewrite over an expression:
// bare identifiers become field references on the step's binding, pinned
// subtrees are left untouched, and qualified references are canonicalized
// through the declared bindings. Everything else is descended into.
func (c *Context) Resolve(n expr.Node) expr.Node {
	return expr.RewriteFunc(n, c.qualify, stopAtPin)
}

// ResolveAll resolves each expression in order.
func (c *Context) ResolveAll(nodes []expr.Node) []expr.Node {
	out := make([]expr.Node, len(nodes))
	for i, n := range nodes {
		out[i] = c.Resolve(n)
	}
	return out
}

func (c *Context) qualify(n expr.Node) expr.Node {
	switch v := n.(type) {
	case *expr.Ident:
		return &expr.Field{Binding: c.DefaultLabel(), Name: v.Name}
	case *expr.Field:
		if label, ok := c.Label(v.Binding); ok {
			return &expr.Field{Binding: label, Name: v.Name}
		}
	}
	return n
}

func stopAtPin(n expr.Node) bool {
	_, ok := n.(*expr.Pin)
	return ok
}
