package plan

import (
	"errors"
	"testing"

	"github.com/chainq-dev/chainq/query/chain"
	"github.com/chainq-dev/chainq/query/dispatch"
	"github.com/chainq-dev/chainq/query/expr"
)

// build applies a parsed chain's canonical steps to a fresh plan.
func build(t *testing.T, source string) *Plan {
	t.Helper()
	p, err := tryBuild(source)
	if err != nil {
		t.Fatalf("Failed to build %s: %v", source, err)
	}
	return p
}

func tryBuild(source string) (*Plan, error) {
	tree := expr.MustParseString("test", source)
	root, steps, err := chain.Unwrap(tree)
	if err != nil {
		return nil, err
	}
	steps, err = dispatch.Canonicalize(steps)
	if err != nil {
		return nil, err
	}
	p := New(root)
	for _, step := range steps {
		p, err = p.Apply(step)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func TestWhereAccumulates(t *testing.T) {
	p := build(t, `User.where(age > 20).where(name == "Bob")`)
	if got, want := p.Filters.String(), `((b0.age > 20) and (b0.name == "Bob"))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestOrWhere(t *testing.T) {
	p := build(t, `User.where(age > 20).or_where(admin == true)`)
	if got, want := p.Filters.String(), `((b0.age > 20) or (b0.admin == true))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestWhereMultipleArgsAndJoined(t *testing.T) {
	p := build(t, `User.where(age > 20, age < 60)`)
	if got, want := p.Filters.String(), `((b0.age > 20) and (b0.age < 60))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestApplyAfterTerminal(t *testing.T) {
	tree := expr.MustParseString("test", `User.all.where(age > 20)`)
	_, steps, _ := chain.Unwrap(tree)
	steps, _ = dispatch.Canonicalize(steps)
	p := New("User")
	var err error
	for _, step := range steps {
		p, err = p.Apply(step)
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrAfterTerminal) {
		t.Errorf("Expected ErrAfterTerminal, got %v", err)
	}
}

func TestOrderByDirections(t *testing.T) {
	p := build(t, `User.order_by(name, age: :desc)`)
	if len(p.Order) != 2 {
		t.Fatalf("Expected 2 order keys, got %d", len(p.Order))
	}
	if p.Order[0].Dir != Asc || p.Order[0].Key.String() != "b0.name" {
		t.Errorf("Unexpected first key: %v %s", p.Order[0].Dir, p.Order[0].Key.String())
	}
	if p.Order[1].Dir != Desc || p.Order[1].Key.String() != "b0.age" {
		t.Errorf("Unexpected second key: %v %s", p.Order[1].Dir, p.Order[1].Key.String())
	}
}

func TestOrderByAppends(t *testing.T) {
	p := build(t, `User.order_by(name).order_by(age: :desc)`)
	if len(p.Order) != 2 {
		t.Fatalf("Expected 2 order keys, got %d", len(p.Order))
	}
}

func TestLimitOffset(t *testing.T) {
	p := build(t, `User.limit(10).offset(20)`)
	if p.LimitCount == nil || *p.LimitCount != 10 {
		t.Errorf("Expected limit 10, got %v", p.LimitCount)
	}
	if p.OffsetN == nil || *p.OffsetN != 20 {
		t.Errorf("Expected offset 20, got %v", p.OffsetN)
	}
}

func TestFirstDefaults(t *testing.T) {
	p := build(t, `User.first`)
	if len(p.Order) != 1 || p.Order[0].Dir != Asc {
		t.Fatalf("Expected default ascending order, got %v", p.Order)
	}
	if _, ok := p.Order[0].Key.(*expr.PrimaryKey); !ok {
		t.Errorf("Expected primary-key order, got %T", p.Order[0].Key)
	}
	if p.LimitCount == nil || *p.LimitCount != 1 {
		t.Errorf("Expected limit 1, got %v", p.LimitCount)
	}
	if p.Terminal == nil || p.Terminal.Mode != ModeOne {
		t.Errorf("Expected one-record terminal, got %v", p.Terminal)
	}
}

func TestFirstKeepsExistingOrder(t *testing.T) {
	p := build(t, `User.order_by(name: :desc).first`)
	if len(p.Order) != 1 {
		t.Fatalf("Expected 1 order key, got %d", len(p.Order))
	}
	if p.Order[0].Dir != Desc || p.Order[0].Key.String() != "b0.name" {
		t.Errorf("Default order overrode explicit order: %v", p.Order[0])
	}
}

func TestFirstN(t *testing.T) {
	p := build(t, `User.first(3)`)
	if p.LimitCount == nil || *p.LimitCount != 3 {
		t.Errorf("Expected limit 3, got %v", p.LimitCount)
	}
	if p.Terminal.Mode != ModeAll {
		t.Errorf("Expected list terminal for first(n), got %v", p.Terminal.Mode)
	}
	if p.Terminal.ReverseResult {
		t.Error("first(n) must not reverse results")
	}
}

func TestLastFlipsOrder(t *testing.T) {
	p := build(t, `User.order_by(name).last`)
	if p.Order[0].Dir != Desc {
		t.Errorf("Expected flipped direction, got %v", p.Order[0].Dir)
	}
	if p.Terminal.Mode != ModeOne || p.Terminal.ReverseResult {
		t.Errorf("Unexpected terminal for bare last: %+v", p.Terminal)
	}
}

func TestLastNReverses(t *testing.T) {
	p := build(t, `User.last(2)`)
	if p.Order[0].Dir != Desc {
		t.Errorf("Expected flipped default order, got %v", p.Order[0].Dir)
	}
	if p.LimitCount == nil || *p.LimitCount != 2 {
		t.Errorf("Expected limit 2, got %v", p.LimitCount)
	}
	if p.Terminal.Mode != ModeAll || !p.Terminal.ReverseResult {
		t.Errorf("Expected reversed list terminal, got %+v", p.Terminal)
	}
}

func TestSelectMergeMaps(t *testing.T) {
	p := build(t, `User.select({name: name}).select_merge({age: age, name: email})`)
	m, ok := p.Selection.(*expr.Map)
	if !ok {
		t.Fatalf("Expected Map selection, got %T", p.Selection)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(m.Entries))
	}
	// Later select_merge wins per key.
	if m.Entries[0].Key != "name" || m.Entries[0].Value.String() != "b0.email" {
		t.Errorf("Expected name: b0.email, got %s", m.Entries[0].String())
	}
	if m.Entries[1].Key != "age" {
		t.Errorf("Expected age appended, got %s", m.Entries[1].String())
	}
}

func TestSelectReplaces(t *testing.T) {
	p := build(t, `User.select(name).select(age)`)
	if got, want := p.Selection.String(), "b0.age"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestGroupByAggr(t *testing.T) {
	p := build(t, `User.group_by(role).aggr({count(), avg(age)})`)
	if len(p.GroupBy) != 1 {
		t.Fatalf("Expected 1 group key, got %d", len(p.GroupBy))
	}
	tuple, ok := p.Selection.(*expr.Tuple)
	if !ok {
		t.Fatalf("Expected Tuple selection, got %T", p.Selection)
	}
	if len(tuple.Items) != 2 {
		t.Fatalf("Expected key + aggregates, got %d items", len(tuple.Items))
	}
	if tuple.Items[0].String() != "b0.role" {
		t.Errorf("Expected group key first, got %s", tuple.Items[0].String())
	}
	if p.Terminal.Mode != ModeAggr {
		t.Errorf("Expected aggregate terminal, got %v", p.Terminal.Mode)
	}
}

func TestUngroupedAggr(t *testing.T) {
	p := build(t, `User.avg(age)`)
	if got, want := p.Selection.String(), "avg(b0.age)"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if p.Terminal.Mode != ModeAggr {
		t.Errorf("Expected aggregate terminal, got %v", p.Terminal.Mode)
	}
}

func TestExclude(t *testing.T) {
	p := build(t, `User.where(age > 20).order_by(name).limit(5).exclude(:where).exclude(:limit)`)
	if p.Filters != nil {
		t.Errorf("Expected filters cleared, got %s", p.Filters.String())
	}
	if p.LimitCount != nil {
		t.Errorf("Expected limit cleared, got %v", *p.LimitCount)
	}
	if len(p.Order) != 1 {
		t.Errorf("Expected order untouched, got %v", p.Order)
	}
}

func TestExcludeUnknown(t *testing.T) {
	_, err := tryBuild(`User.exclude(:bogus)`)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestReverseOrder(t *testing.T) {
	p := build(t, `User.order_by(name, age: :desc).reverse_order`)
	if p.Order[0].Dir != Desc || p.Order[1].Dir != Asc {
		t.Errorf("Expected flipped directions, got %v %v", p.Order[0].Dir, p.Order[1].Dir)
	}
}

func TestDistinct(t *testing.T) {
	p := build(t, `User.distinct`)
	if !p.Distinct {
		t.Error("Expected distinct plan")
	}
	p = build(t, `User.distinct(role)`)
	if !p.Distinct || len(p.DistinctOn) != 1 {
		t.Errorf("Expected distinct on role, got %v", p.DistinctOn)
	}
}

func TestJoinImplicitAssociation(t *testing.T) {
	p := build(t, `User.join(posts)`)
	if len(p.Joins) != 1 {
		t.Fatalf("Expected 1 join, got %d", len(p.Joins))
	}
	j := p.Joins[0]
	if j.Kind != JoinInner || j.Target != "posts" || j.Binding != "posts" || j.On != nil {
		t.Errorf("Unexpected join: %+v", j)
	}
}

func TestJoinExplicitBindingAndOn(t *testing.T) {
	p := build(t, `User.left_join([u], posts, on: posts.user_id == u.id)`)
	j := p.Joins[0]
	if j.Kind != JoinLeft {
		t.Errorf("Expected left join, got %v", j.Kind)
	}
	if j.Binding != "b1" {
		t.Errorf("Expected synthesized label b1, got %s", j.Binding)
	}
	if j.On == nil {
		t.Fatal("Expected on condition")
	}
	if got, want := j.On.String(), "(posts.user_id == b0.id)"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestJoinAlias(t *testing.T) {
	p := build(t, `User.join(posts, as: p)`)
	if p.Joins[0].Binding != "p" {
		t.Errorf("Expected alias binding p, got %s", p.Joins[0].Binding)
	}
}

func TestSetOpRequiresPinnedHandle(t *testing.T) {
	_, err := tryBuild(`User.union(5)`)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestSetOpWithHandle(t *testing.T) {
	other := New("Admin")
	p := New("User")
	step := chain.Step{Name: "union_all", Args: []expr.Node{&expr.Pin{Value: other}}}
	p, err := p.Apply(step)
	if err != nil {
		t.Fatalf("Failed to apply union_all: %v", err)
	}
	if len(p.SetOps) != 1 {
		t.Fatalf("Expected 1 set op, got %d", len(p.SetOps))
	}
	op := p.SetOps[0]
	if op.Kind != SetUnion || !op.All || op.Other != other {
		t.Errorf("Unexpected set op: %+v", op)
	}
}

func TestGetTerminal(t *testing.T) {
	p := build(t, `User.get!(7)`)
	if p.Terminal == nil || p.Terminal.Mode != ModeGet || !p.Terminal.Bang {
		t.Errorf("Unexpected terminal: %+v", p.Terminal)
	}
}

func TestNewTerminal(t *testing.T) {
	p := build(t, `User.new({name: "Ann"})`)
	if p.Terminal == nil || p.Terminal.Mode != ModeNew {
		t.Errorf("Unexpected terminal: %+v", p.Terminal)
	}
}

func TestMaterializers(t *testing.T) {
	tests := map[string]TerminalMode{
		`User.all`:     ModeAll,
		`User.one`:     ModeOne,
		`User.stream`:  ModeStream,
		`User.exists?`: ModeExists,
		`User.count`:   ModeCount,
	}
	for source, mode := range tests {
		p := build(t, source)
		if p.Terminal == nil || p.Terminal.Mode != mode {
			t.Errorf("%s: expected mode %s, got %+v", source, mode, p.Terminal)
		}
	}
}

func TestCloneDoesNotAliasSlices(t *testing.T) {
	base := build(t, `User.order_by(name)`)
	a, err := base.Apply(chain.Step{Name: "reverse_order"})
	if err != nil {
		t.Fatalf("Failed to apply: %v", err)
	}
	if base.Order[0].Dir != Asc {
		t.Error("Derived plan mutated its parent")
	}
	if a.Order[0].Dir != Desc {
		t.Error("Derived plan missing its own change")
	}
}

func TestFragmentPredicate(t *testing.T) {
	p := build(t, `User.where(fragment("lower(?) = ?", name, "bob"))`)
	frag, ok := p.Filters.(*expr.Fragment)
	if !ok {
		t.Fatalf("Expected Fragment filters, got %T", p.Filters)
	}
	if frag.Args[0].String() != "b0.name" {
		t.Errorf("Expected qualified fragment arg, got %s", frag.Args[0].String())
	}
}

func TestRawStringWhere(t *testing.T) {
	p := build(t, `User.where("age > 21")`)
	frag, ok := p.Filters.(*expr.Fragment)
	if !ok {
		t.Fatalf("Expected Fragment filters, got %T", p.Filters)
	}
	if frag.Template != "age > 21" {
		t.Errorf("Unexpected template: %s", frag.Template)
	}
}
