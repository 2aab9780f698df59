// Package expr defines the expression node model for chained queries.
package expr

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a node in a query expression tree.
type Node interface {
	node()
	String() string
}

// Literal is a quoted or numeric literal value.
type Literal struct {
	Value interface{} // string, int64, float64, bool or nil
}

// Atom is a symbolic constant such as :desc.
type Atom struct {
	Name string
}

// Ident is a bare, zero-arity identifier. The binding resolver rewrites
// idents into Field references; they never survive into a finished plan.
type Ident struct {
	Name string
}

// Pin is an externally injected value. The entire subtree under a pin is
// opaque to the binding resolver and is never rewritten.
type Pin struct {
	Name  string      // parameter name from ^name syntax; empty for direct values
	Value interface{} // bound at compile time from the caller's parameters
}

// Field is a binding-qualified field reference, e.g. b0.age.
type Field struct {
	Binding string
	Name    string
}

// PrimaryKey is a placeholder for the source entity's primary key. It is
// produced by first/last default ordering and resolved against the concrete
// entity at SQL generation time.
type PrimaryKey struct{}

// Call is an operator or function application: name plus ordered arguments.
type Call struct {
	Name string
	Args []Node
}

// Dot is one link of a method chain: receiver dot call. The chain unwrapper
// flattens nested Dot nodes into ordered steps.
type Dot struct {
	Recv Node
	Name string
	Bang bool
	Args []Node
}

// List is an ordered sequence, e.g. [u, p] or [1, 2, 3].
type List struct {
	Items []Node
}

// Tuple is a fixed-size value group, e.g. {count(), min(age)}.
type Tuple struct {
	Items []Node
}

// Pair is a keyword pair, key: value.
type Pair struct {
	Key   string
	Value Node
}

// Map is an ordered mapping literal, e.g. {name: u.name, age: u.age}.
type Map struct {
	Entries []*Pair
}

// Fragment is a raw backend template with positional placeholder arguments.
// The template itself is never rewritten; only the arguments are.
type Fragment struct {
	Template string
	Args     []Node
}

func (*Literal) node()    {}
func (*Atom) node()       {}
func (*Ident) node()      {}
func (*Pin) node()        {}
func (*Field) node()      {}
func (*PrimaryKey) node() {}
func (*Call) node()       {}
func (*Dot) node()        {}
func (*List) node()       {}
func (*Tuple) node()      {}
func (*Pair) node()       {}
func (*Map) node()        {}
func (*Fragment) node()   {}

func (l *Literal) String() string {
	if s, ok := l.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if l.Value == nil {
		return "nil"
	}
	return fmt.Sprintf("%v", l.Value)
}

func (a *Atom) String() string  { return ":" + a.Name }
func (i *Ident) String() string { return i.Name }

func (p *Pin) String() string {
	if p.Name != "" {
		return "^" + p.Name
	}
	return fmt.Sprintf("^(%v)", p.Value)
}

func (f *Field) String() string    { return f.Binding + "." + f.Name }
func (*PrimaryKey) String() string { return "<pk>" }

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	switch c.Name {
	case "and", "or", "in", "like":
		if len(args) == 2 {
			return "(" + args[0] + " " + c.Name + " " + args[1] + ")"
		}
	case "==", "!=", ">", "<", ">=", "<=", "+", "-", "*", "/":
		if len(args) == 2 {
			return "(" + args[0] + " " + c.Name + " " + args[1] + ")"
		}
	case "not":
		if len(args) == 1 {
			return "(not " + args[0] + ")"
		}
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (d *Dot) String() string {
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	name := d.Name
	if d.Bang {
		name += "!"
	}
	return d.Recv.String() + "." + name + "(" + strings.Join(args, ", ") + ")"
}

func (l *List) String() string  { return "[" + joinNodes(l.Items) + "]" }
func (t *Tuple) String() string { return "{" + joinNodes(t.Items) + "}" }
func (p *Pair) String() string  { return p.Key + ": " + p.Value.String() }

func (m *Map) String() string {
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (f *Fragment) String() string {
	if len(f.Args) == 0 {
		return fmt.Sprintf("fragment(%q)", f.Template)
	}
	return fmt.Sprintf("fragment(%q, %s)", f.Template, joinNodes(f.Args))
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

// Equal reports whether two expression trees are structurally identical.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// SortPairs returns the map's entries sorted by key. Used by tests; map
// literals preserve declaration order everywhere else.
func SortPairs(m *Map) []*Pair {
	out := make([]*Pair, len(m.Entries))
	copy(out, m.Entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
