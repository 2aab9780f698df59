// Package dispatch canonicalizes surface operation names before plan building.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/chainq-dev/chainq/query/binding"
	"github.com/chainq-dev/chainq/query/chain"
	"github.com/chainq-dev/chainq/query/expr"
)

// ErrUnsupportedOp is returned for a step name not known to the alias table
// or the plan builder's canonical set.
var ErrUnsupportedOp = errors.New("unsupported operation")

// canonical is the set of operation names the plan builder accepts directly.
var canonical = map[string]bool{
	"where": true, "or_where": true, "having": true,
	"order_by": true, "limit": true, "offset": true,
	"first": true, "last": true,
	"select": true, "select_merge": true,
	"group_by": true, "aggr": true,
	"join": true, "inner_join": true, "left_join": true, "right_join": true,
	"full_join": true, "cross_join": true,
	"inner_lateral_join": true, "left_lateral_join": true,
	"union": true, "union_all": true,
	"intersect": true, "intersect_all": true,
	"except": true, "except_all": true,
	"exclude": true, "reverse_order": true, "distinct": true,
	"new": true, "get": true,
	"all": true, "one": true, "stream": true, "exists?": true, "count": true,
}

// aggregates that compile to an aggr step when called with an expression.
var aggregates = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
}

// Canonicalize expands syntactic aliases into canonical plan operations.
// Expansion preserves relative step order.
func Canonicalize(steps []chain.Step) ([]chain.Step, error) {
	out := make([]chain.Step, 0, len(steps))
	for _, step := range steps {
		expanded, err := expand(step)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expand(step chain.Step) ([]chain.Step, error) {
	switch step.Name {
	case "order":
		return []chain.Step{{Name: "order_by", Bang: step.Bang, Args: step.Args}}, nil
	case "find":
		return []chain.Step{{Name: "get", Bang: step.Bang, Args: step.Args}}, nil
	case "find_by", "get_by":
		// find_by(cond) -> where(cond) + first(); the bang rides on the
		// terminal so find_by! raises on absence.
		return []chain.Step{
			{Name: "where", Args: step.Args},
			{Name: "first", Bang: step.Bang},
		}, nil
	}
	if aggregates[step.Name] {
		if agg, ok := aggregateStep(step); ok {
			return []chain.Step{agg}, nil
		}
		if step.Name == "count" {
			// Bare count is a terminal materializer of its own.
			return []chain.Step{step}, nil
		}
		return nil, fmt.Errorf("%w: %s requires an aggregate expression", ErrUnsupportedOp, step.Name)
	}
	if !canonical[step.Name] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, step.Name)
	}
	return []chain.Step{step}, nil
}

// aggregateStep rewrites a terminal aggregate call into an aggr step whose
// argument is the aggregate-function expression. An explicit binding list,
// detected the same way as for conditions, is carried through unchanged.
func aggregateStep(step chain.Step) (chain.Step, bool) {
	_, rest := binding.Detect(step.Args)
	if len(rest) == 0 {
		return chain.Step{}, false
	}
	prefix := step.Args[:len(step.Args)-len(rest)]
	args := make([]expr.Node, 0, len(prefix)+1)
	args = append(args, prefix...)
	args = append(args, &expr.Call{Name: step.Name, Args: rest})
	return chain.Step{Name: "aggr", Bang: step.Bang, Args: args}, true
}
