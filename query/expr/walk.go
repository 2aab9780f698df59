package expr

// Rewriter transforms nodes during a prewalk over an expression tree.
type Rewriter interface {
	// Rewrite is applied to each node before its children are visited.
	// The returned node replaces the original.
	Rewrite(Node) Node

	// Walk is consulted after Rewrite. If it returns nil, traversal does
	// not descend into the node's children; otherwise the returned
	// rewriter is used for the children.
	Walk(Node) Rewriter
}

// Rewrite applies r to n in prewalk order and returns a new tree. The input
// tree is never mutated.
func Rewrite(r Rewriter, n Node) Node {
	if n == nil {
		return nil
	}
	n = r.Rewrite(n)
	rc := r.Walk(n)
	if rc == nil {
		return n
	}
	switch v := n.(type) {
	case *Call:
		return &Call{Name: v.Name, Args: rewriteAll(rc, v.Args)}
	case *Dot:
		return &Dot{Recv: Rewrite(rc, v.Recv), Name: v.Name, Bang: v.Bang, Args: rewriteAll(rc, v.Args)}
	case *List:
		return &List{Items: rewriteAll(rc, v.Items)}
	case *Tuple:
		return &Tuple{Items: rewriteAll(rc, v.Items)}
	case *Pair:
		return &Pair{Key: v.Key, Value: Rewrite(rc, v.Value)}
	case *Map:
		entries := make([]*Pair, len(v.Entries))
		for i, e := range v.Entries {
			entries[i] = &Pair{Key: e.Key, Value: Rewrite(rc, e.Value)}
		}
		return &Map{Entries: entries}
	case *Fragment:
		// The template is not a child node; only placeholder arguments
		// are visited.
		return &Fragment{Template: v.Template, Args: rewriteAll(rc, v.Args)}
	default:
		return n
	}
}

func rewriteAll(r Rewriter, nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Rewrite(r, n)
	}
	return out
}

// rewriterFunc adapts a pair of functions to the Rewriter interface.
type rewriterFunc struct {
	rewrite func(Node) Node
	stop    func(Node) bool
}

func (r rewriterFunc) Rewrite(n Node) Node { return r.rewrite(n) }

func (r rewriterFunc) Walk(n Node) Rewriter {
	if r.stop != nil && r.stop(n) {
		return nil
	}
	return r
}

// RewriteFunc applies fn to every node in prewalk order. Descent stops at
// nodes for which stop returns true; the stopped node itself is still passed
// through fn before the check. A nil stop visits everything.
func RewriteFunc(n Node, fn func(Node) Node, stop func(Node) bool) Node {
	return Rewrite(rewriterFunc{rewrite: fn, stop: stop}, n)
}
