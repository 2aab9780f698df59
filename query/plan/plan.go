// Package plan defines the backend-agnostic query plan and its builder.
package plan

import (
	"github.com/chainq-dev/chainq/query/expr"
)

// Direction is an ordering direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// OrderKey is one (direction, key) pair of the plan's ordering.
type OrderKey struct {
	Dir Direction
	Key expr.Node
}

// JoinKind identifies the join type.
type JoinKind string

const (
	JoinInner        JoinKind = "inner"
	JoinLeft         JoinKind = "left"
	JoinRight        JoinKind = "right"
	JoinFull         JoinKind = "full"
	JoinCross        JoinKind = "cross"
	JoinInnerLateral JoinKind = "inner_lateral"
	JoinLeftLateral  JoinKind = "left_lateral"
)

// Join describes one join of the plan.
type Join struct {
	Kind    JoinKind
	Target  string    // association or table name
	Binding string    // alias label the join's rows are referenced by
	On      expr.Node // optional custom condition; nil joins on the implicit association
}

// SetOpKind identifies a plan combination.
type SetOpKind string

const (
	SetUnion     SetOpKind = "union"
	SetIntersect SetOpKind = "intersect"
	SetExcept    SetOpKind = "except"
)

// SetOp combines the plan with another plan.
type SetOp struct {
	Kind  SetOpKind
	All   bool
	Other *Plan
}

// TerminalMode selects how a finished plan is materialized.
type TerminalMode string

const (
	ModeAll    TerminalMode = "all"
	ModeOne    TerminalMode = "one"
	ModeStream TerminalMode = "stream"
	ModeExists TerminalMode = "exists"
	ModeCount  TerminalMode = "count"
	ModeAggr   TerminalMode = "aggr"
	ModeGet    TerminalMode = "get"
	ModeNew    TerminalMode = "new"
)

// Terminal records the single terminal operation of a chain.
type Terminal struct {
	Mode TerminalMode
	Bang bool
	N    *int        // first(n)/last(n) record count, nil for the single form
	Args []expr.Node // get id, new params

	// ReverseResult marks the last(n) form: the materialized list is
	// reversed in memory so output order matches the original ordering.
	ReverseResult bool
}

// Plan is the accumulated, backend-agnostic representation of a compiled
// query. Each canonical operation returns a new plan derived from the
// previous one; a plan is never mutated after it is returned.
type Plan struct {
	Source     string
	Filters    expr.Node // conjunction/disjunction tree, nil when unfiltered
	Order      []OrderKey
	GroupBy    []expr.Node
	Having     expr.Node
	LimitCount *int
	OffsetN    *int
	Selection  expr.Node
	Distinct   bool
	DistinctOn []expr.Node
	Joins      []Join
	SetOps     []SetOp
	Terminal   *Terminal
}

// New creates an empty plan over the given source name.
func New(source string) *Plan {
	return &Plan{Source: source}
}

// clone returns a copy with fresh slice headers so transforms never alias
// the previous plan's backing arrays.
func (p *Plan) clone() *Plan {
	q := *p
	q.Order = append([]OrderKey(nil), p.Order...)
	q.GroupBy = append([]expr.Node(nil), p.GroupBy...)
	q.DistinctOn = append([]expr.Node(nil), p.DistinctOn...)
	q.Joins = append([]Join(nil), p.Joins...)
	q.SetOps = append([]SetOp(nil), p.SetOps...)
	return &q
}

// Finished reports whether a terminal operation has been applied.
func (p *Plan) Finished() bool { return p.Terminal != nil }
