// Package chain unwraps nested call-chain expressions into ordered steps.
package chain

import (
	"errors"
	"fmt"

	"github.com/chainq-dev/chainq/query/expr"
)

// ErrMalformed is returned when a chain contains a non-call node in a
// position where an operation call is required.
var ErrMalformed = errors.New("malformed chain")

// Step is one operation call within a chain. Steps are produced in source
// order and are immutable once produced.
type Step struct {
	Name string
	Bang bool
	Args []expr.Node
}

// Unwrap flattens a nested dot-call expression into its root name and the
// ordered list of steps, outermost call last. A bare identifier is a valid
// chain with zero steps.
func Unwrap(n expr.Node) (string, []Step, error) {
	var steps []Step
	for {
		switch v := n.(type) {
		case *expr.Ident:
			// Reached the root; steps were collected outermost first.
			reverse(steps)
			return v.Name, steps, nil
		case *expr.Dot:
			steps = append(steps, Step{Name: v.Name, Bang: v.Bang, Args: v.Args})
			n = v.Recv
		default:
			if n == nil {
				return "", nil, fmt.Errorf("%w: empty expression", ErrMalformed)
			}
			return "", nil, fmt.Errorf("%w: unexpected %T node mid-chain", ErrMalformed, n)
		}
	}
}

func reverse(steps []Step) {
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
}
