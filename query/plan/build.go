package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chainq-dev/chainq/query/binding"
	"github.com/chainq-dev/chainq/query/chain"
	"github.com/chainq-dev/chainq/query/expr"
)

// Apply transforms the plan with one canonical operation step and returns
// the derived plan. The receiver is left unchanged.
func (p *Plan) Apply(step chain.Step) (*Plan, error) {
	if p.Finished() {
		return nil, fmt.Errorf("%w: %s", ErrAfterTerminal, step.Name)
	}
	switch step.Name {
	case "where":
		return p.applyFilter(step, "and", false)
	case "or_where":
		return p.applyFilter(step, "or", false)
	case "having":
		return p.applyFilter(step, "and", true)
	case "order_by":
		return p.applyOrderBy(step)
	case "limit":
		return p.applyLimit(step)
	case "offset":
		return p.applyOffset(step)
	case "first":
		return p.applyFirst(step)
	case "last":
		return p.applyLast(step)
	case "select", "select_merge":
		return p.applySelect(step)
	case "group_by":
		return p.applyGroupBy(step)
	case "aggr":
		return p.applyAggr(step)
	case "join", "inner_join", "left_join", "right_join", "full_join",
		"cross_join", "inner_lateral_join", "left_lateral_join":
		return p.applyJoin(step)
	case "union", "union_all", "intersect", "intersect_all", "except", "except_all":
		return p.applySetOp(step)
	case "exclude":
		return p.applyExclude(step)
	case "reverse_order":
		q := p.clone()
		for i := range q.Order {
			q.Order[i].Dir = q.Order[i].Dir.Flip()
		}
		return q, nil
	case "distinct":
		return p.applyDistinct(step)
	case "new":
		return p.applyNew(step)
	case "get":
		return p.applyGet(step)
	case "all", "one", "stream", "exists?", "count":
		return p.applyMaterializer(step)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, step.Name)
	}
}

// applyFilter handles where, or_where and having. A raw-string first
// argument is a fragment predicate combined the same way as a structured one.
func (p *Plan) applyFilter(step chain.Step, combinator string, having bool) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: %s requires a condition", ErrInvalidArgument, step.Name)
	}
	pred, err := buildPredicate(ctx, rest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step.Name, err)
	}
	q := p.clone()
	if having {
		q.Having = combine(q.Having, pred, combinator)
	} else {
		q.Filters = combine(q.Filters, pred, combinator)
	}
	return q, nil
}

func buildPredicate(ctx *binding.Context, args []expr.Node) (expr.Node, error) {
	if tmpl, ok := rawTemplate(args[0]); ok {
		return &expr.Fragment{Template: tmpl, Args: ctx.ResolveAll(args[1:])}, nil
	}
	var pred expr.Node
	for _, arg := range args {
		pred = combine(pred, ctx.Resolve(arg), "and")
	}
	return pred, nil
}

func combine(existing, pred expr.Node, combinator string) expr.Node {
	if existing == nil {
		return pred
	}
	if pred == nil {
		return existing
	}
	return &expr.Call{Name: combinator, Args: []expr.Node{existing, pred}}
}

// rawTemplate reports whether the node is a raw string literal usable as a
// fragment template.
func rawTemplate(n expr.Node) (string, bool) {
	lit, ok := n.(*expr.Literal)
	if !ok {
		return "", false
	}
	s, ok := lit.Value.(string)
	return s, ok
}

// applyOrderBy normalizes keyword-style ordering arguments into canonical
// (direction, key) pairs. A bare field defaults to ascending; a raw template
// first argument produces a single fragment ordering key.
func (p *Plan) applyOrderBy(step chain.Step) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: order_by requires at least one key", ErrInvalidArgument)
	}
	q := p.clone()
	if tmpl, ok := rawTemplate(rest[0]); ok {
		q.Order = append(q.Order, OrderKey{
			Dir: Asc,
			Key: &expr.Fragment{Template: tmpl, Args: ctx.ResolveAll(rest[1:])},
		})
		return q, nil
	}
	for _, arg := range rest {
		key, err := orderKey(ctx, arg)
		if err != nil {
			return nil, err
		}
		q.Order = append(q.Order, key)
	}
	return q, nil
}

func orderKey(ctx *binding.Context, arg expr.Node) (OrderKey, error) {
	if pair, ok := arg.(*expr.Pair); ok {
		atom, ok := pair.Value.(*expr.Atom)
		if !ok {
			return OrderKey{}, fmt.Errorf("%w: order direction must be :asc or :desc", ErrInvalidArgument)
		}
		dir, err := parseDirection(atom.Name)
		if err != nil {
			return OrderKey{}, err
		}
		return OrderKey{Dir: dir, Key: ctx.Resolve(&expr.Ident{Name: pair.Key})}, nil
	}
	return OrderKey{Dir: Asc, Key: ctx.Resolve(arg)}, nil
}

func parseDirection(name string) (Direction, error) {
	switch name {
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: unknown direction :%s", ErrInvalidArgument, name)
	}
}

func (p *Plan) applyLimit(step chain.Step) (*Plan, error) {
	n, err := intArg(step, "limit")
	if err != nil {
		return nil, err
	}
	q := p.clone()
	q.LimitCount = &n
	return q, nil
}

func (p *Plan) applyOffset(step chain.Step) (*Plan, error) {
	n, err := intArg(step, "offset")
	if err != nil {
		return nil, err
	}
	q := p.clone()
	q.OffsetN = &n
	return q, nil
}

func intArg(step chain.Step, name string) (int, error) {
	if len(step.Args) != 1 {
		return 0, fmt.Errorf("%w: %s takes exactly one value", ErrInvalidArgument, name)
	}
	return intFromNode(step.Args[0], name)
}

func intFromNode(n expr.Node, name string) (int, error) {
	switch v := n.(type) {
	case *expr.Literal:
		if i, ok := v.Value.(int64); ok {
			return int(i), nil
		}
	case *expr.Pin:
		switch i := v.Value.(type) {
		case int:
			return i, nil
		case int64:
			return int(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s requires an integer, got %s", ErrInvalidArgument, name, n.String())
}

// applyFirst is terminal: limit 1 (or n), default primary-key ascending
// order only when no order was already set, then a single-record (or
// n-record) fetch.
func (p *Plan) applyFirst(step chain.Step) (*Plan, error) {
	n, err := optionalCount(step, "first")
	if err != nil {
		return nil, err
	}
	q := p.clone()
	q.ensureDefaultOrder()
	q.setFetchLimit(n)
	q.Terminal = &Terminal{Mode: fetchMode(n), N: n, Bang: step.Bang}
	return q, nil
}

// applyLast is terminal: default primary-key order when none is set, then
// the whole ordering reversed and limited. The n-record form re-reverses
// the materialized list so output order matches the original ordering.
func (p *Plan) applyLast(step chain.Step) (*Plan, error) {
	n, err := optionalCount(step, "last")
	if err != nil {
		return nil, err
	}
	q := p.clone()
	q.ensureDefaultOrder()
	for i := range q.Order {
		q.Order[i].Dir = q.Order[i].Dir.Flip()
	}
	q.setFetchLimit(n)
	q.Terminal = &Terminal{Mode: fetchMode(n), N: n, Bang: step.Bang, ReverseResult: n != nil}
	return q, nil
}

func optionalCount(step chain.Step, name string) (*int, error) {
	switch len(step.Args) {
	case 0:
		return nil, nil
	case 1:
		n, err := intFromNode(step.Args[0], name)
		if err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("%w: %s takes at most one count", ErrInvalidArgument, name)
	}
}

func (p *Plan) ensureDefaultOrder() {
	if len(p.Order) == 0 {
		p.Order = []OrderKey{{Dir: Asc, Key: &expr.PrimaryKey{}}}
	}
}

func (p *Plan) setFetchLimit(n *int) {
	limit := 1
	if n != nil {
		limit = *n
	}
	p.LimitCount = &limit
}

func fetchMode(n *int) TerminalMode {
	if n == nil {
		return ModeOne
	}
	return ModeAll
}

// applySelect sets or extends the projection. A raw-string first argument
// produces a fragment projection; for select_merge a mapping literal is
// merged field-by-field into an existing mapping projection.
func (p *Plan) applySelect(step chain.Step) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: %s requires a projection", ErrInvalidArgument, step.Name)
	}
	incoming, err := buildSelection(ctx, rest)
	if err != nil {
		return nil, err
	}
	q := p.clone()
	if step.Name == "select" || q.Selection == nil {
		q.Selection = incoming
		return q, nil
	}
	q.Selection = mergeSelection(q.Selection, incoming)
	return q, nil
}

func buildSelection(ctx *binding.Context, args []expr.Node) (expr.Node, error) {
	if tmpl, ok := rawTemplate(args[0]); ok {
		return &expr.Fragment{Template: tmpl, Args: ctx.ResolveAll(args[1:])}, nil
	}
	resolved := ctx.ResolveAll(args)
	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return &expr.Tuple{Items: resolved}, nil
}

func mergeSelection(existing, incoming expr.Node) expr.Node {
	em, eok := existing.(*expr.Map)
	im, iok := incoming.(*expr.Map)
	if eok && iok {
		merged := &expr.Map{Entries: append([]*expr.Pair(nil), em.Entries...)}
		for _, entry := range im.Entries {
			if i := indexOfKey(merged.Entries, entry.Key); i >= 0 {
				merged.Entries[i] = entry
			} else {
				merged.Entries = append(merged.Entries, entry)
			}
		}
		return merged
	}
	return &expr.Tuple{Items: append(flatten(existing), flatten(incoming)...)}
}

func indexOfKey(entries []*expr.Pair, key string) int {
	for i, e := range entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func flatten(n expr.Node) []expr.Node {
	if t, ok := n.(*expr.Tuple); ok {
		return t.Items
	}
	return []expr.Node{n}
}

// applyGroupBy appends grouping keys; the fragment form contributes a
// single raw key.
func (p *Plan) applyGroupBy(step chain.Step) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: group_by requires at least one key", ErrInvalidArgument)
	}
	q := p.clone()
	if tmpl, ok := rawTemplate(rest[0]); ok {
		q.GroupBy = append(q.GroupBy, &expr.Fragment{Template: tmpl, Args: ctx.ResolveAll(rest[1:])})
		return q, nil
	}
	q.GroupBy = append(q.GroupBy, ctx.ResolveAll(rest)...)
	return q, nil
}

// applyAggr is terminal. Without group-by the plan compiles to a
// projection-and-single-result fetch of the aggregate expressions. With
// group-by the projection pairs the group-key value with the aggregate
// value(s) and every row is fetched.
func (p *Plan) applyAggr(step chain.Step) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	if len(rest) == 1 {
		if t, ok := rest[0].(*expr.Tuple); ok {
			rest = t.Items
		}
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: aggr requires an aggregate expression", ErrInvalidArgument)
	}
	resolved := ctx.ResolveAll(rest)
	var aggs expr.Node
	if len(resolved) == 1 {
		aggs = resolved[0]
	} else {
		aggs = &expr.Tuple{Items: resolved}
	}

	q := p.clone()
	if len(q.GroupBy) == 0 {
		q.Selection = aggs
	} else {
		var key expr.Node
		if len(q.GroupBy) == 1 {
			key = q.GroupBy[0]
		} else {
			key = &expr.Tuple{Items: q.GroupBy}
		}
		q.Selection = &expr.Tuple{Items: []expr.Node{key, aggs}}
	}
	q.Terminal = &Terminal{Mode: ModeAggr, Bang: step.Bang}
	return q, nil
}

// applyJoin determines the join kind from the operation name and supports
// three argument forms: a bare target (implicit association, synthesized
// alias), target plus explicit alias, and an explicit-binding custom join
// with an on: condition.
func (p *Plan) applyJoin(step chain.Step) (*Plan, error) {
	kind := joinKind(step.Name)
	ctx, rest := binding.Detect(step.Args)

	var target, alias string
	var on expr.Node
	for _, arg := range rest {
		switch v := arg.(type) {
		case *expr.Ident:
			if target == "" {
				target = v.Name
			} else if alias == "" {
				alias = v.Name
			} else {
				return nil, fmt.Errorf("%w: too many join targets", ErrInvalidArgument)
			}
		case *expr.Pair:
			switch v.Key {
			case "as":
				ident, ok := v.Value.(*expr.Ident)
				if !ok {
					return nil, fmt.Errorf("%w: join alias must be an identifier", ErrInvalidArgument)
				}
				alias = ident.Name
			case "on":
				on = ctx.Resolve(v.Value)
			default:
				return nil, fmt.Errorf("%w: unknown join option %s", ErrInvalidArgument, v.Key)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected join argument %s", ErrInvalidArgument, arg.String())
		}
	}
	if target == "" {
		return nil, fmt.Errorf("%w: join requires a target", ErrInvalidArgument)
	}

	label := alias
	if label == "" {
		if ctx.Explicit() {
			label = "b" + strconv.Itoa(len(p.Joins)+1)
		} else {
			label = target
		}
	}

	q := p.clone()
	q.Joins = append(q.Joins, Join{Kind: kind, Target: target, Binding: label, On: on})
	return q, nil
}

func joinKind(name string) JoinKind {
	switch name {
	case "join", "inner_join":
		return JoinInner
	case "left_join":
		return JoinLeft
	case "right_join":
		return JoinRight
	case "full_join":
		return JoinFull
	case "cross_join":
		return JoinCross
	case "inner_lateral_join":
		return JoinInnerLateral
	case "left_lateral_join":
		return JoinLeftLateral
	default:
		return JoinInner
	}
}

// applySetOp combines the plan with another finished-query handle passed as
// a pinned value.
func (p *Plan) applySetOp(step chain.Step) (*Plan, error) {
	if len(step.Args) != 1 {
		return nil, fmt.Errorf("%w: %s takes exactly one query", ErrInvalidArgument, step.Name)
	}
	other, err := planArg(step.Args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step.Name, err)
	}
	kind := SetOpKind(strings.TrimSuffix(step.Name, "_all"))
	q := p.clone()
	q.SetOps = append(q.SetOps, SetOp{
		Kind:  kind,
		All:   strings.HasSuffix(step.Name, "_all"),
		Other: other,
	})
	return q, nil
}

func planArg(n expr.Node) (*Plan, error) {
	pin, ok := n.(*expr.Pin)
	if !ok {
		return nil, fmt.Errorf("%w: expected a pinned query handle, got %s", ErrInvalidArgument, n.String())
	}
	other, ok := pin.Value.(*Plan)
	if !ok {
		return nil, fmt.Errorf("%w: pinned value is not a query handle", ErrInvalidArgument)
	}
	return other, nil
}

// applyExclude removes a previously set plan component by name.
func (p *Plan) applyExclude(step chain.Step) (*Plan, error) {
	if len(step.Args) != 1 {
		return nil, fmt.Errorf("%w: exclude takes exactly one component name", ErrInvalidArgument)
	}
	atom, ok := step.Args[0].(*expr.Atom)
	if !ok {
		return nil, fmt.Errorf("%w: exclude takes an atom, got %s", ErrInvalidArgument, step.Args[0].String())
	}
	q := p.clone()
	switch atom.Name {
	case "select":
		q.Selection = nil
	case "where":
		q.Filters = nil
	case "order", "order_by":
		q.Order = nil
	case "limit":
		q.LimitCount = nil
	case "offset":
		q.OffsetN = nil
	case "group_by":
		q.GroupBy = nil
	case "having":
		q.Having = nil
	case "distinct":
		q.Distinct = false
		q.DistinctOn = nil
	case "join":
		q.Joins = nil
	default:
		return nil, fmt.Errorf("%w: unknown component :%s", ErrInvalidArgument, atom.Name)
	}
	return q, nil
}

func (p *Plan) applyDistinct(step chain.Step) (*Plan, error) {
	ctx, rest := binding.Detect(step.Args)
	q := p.clone()
	q.Distinct = true
	if len(rest) > 0 {
		q.DistinctOn = append(q.DistinctOn, ctx.ResolveAll(rest)...)
	}
	return q, nil
}

// applyNew is terminal and bypasses query execution entirely: the adapter
// constructs a fresh, optionally field-initialized instance of the source
// entity without touching storage.
func (p *Plan) applyNew(step chain.Step) (*Plan, error) {
	if len(step.Args) > 1 {
		return nil, fmt.Errorf("%w: new takes at most one params map", ErrInvalidArgument)
	}
	q := p.clone()
	q.Terminal = &Terminal{Mode: ModeNew, Args: step.Args}
	return q, nil
}

// applyGet is terminal: a direct primary-key lookup.
func (p *Plan) applyGet(step chain.Step) (*Plan, error) {
	if len(step.Args) != 1 {
		return nil, fmt.Errorf("%w: get takes exactly one primary key", ErrInvalidArgument)
	}
	q := p.clone()
	q.Terminal = &Terminal{Mode: ModeGet, Bang: step.Bang, Args: step.Args}
	return q, nil
}

func (p *Plan) applyMaterializer(step chain.Step) (*Plan, error) {
	if len(step.Args) != 0 {
		return nil, fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgument, step.Name)
	}
	mode := map[string]TerminalMode{
		"all":     ModeAll,
		"one":     ModeOne,
		"stream":  ModeStream,
		"exists?": ModeExists,
		"count":   ModeCount,
	}[step.Name]
	q := p.clone()
	q.Terminal = &Terminal{Mode: mode, Bang: step.Bang}
	return q, nil
}
