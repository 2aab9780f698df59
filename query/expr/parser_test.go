package expr

import (
	"testing"
)

func TestParseSimpleChain(t *testing.T) {
	n, err := ParseString("test", `User.where(age > 20).all`)
	if err != nil {
		t.Fatalf("Failed to parse chain: %v", err)
	}
	if got, want := n.String(), `User.where((age > 20)).all()`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParsePrecedence(t *testing.T) {
	n, err := ParseString("test", `E.where(x == 1 or y == 2 and z == 3)`)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	dot, ok := n.(*Dot)
	if !ok {
		t.Fatalf("Expected Dot node, got %T", n)
	}
	if got, want := dot.Args[0].String(), `((x == 1) or ((y == 2) and (z == 3)))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseParensOverridePrecedence(t *testing.T) {
	n := MustParseString("test", `E.where((x == 1 or y == 2) and z == 3)`)
	dot := n.(*Dot)
	if got, want := dot.Args[0].String(), `(((x == 1) or (y == 2)) and (z == 3))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseNot(t *testing.T) {
	n := MustParseString("test", `E.where(not deleted == true)`)
	dot := n.(*Dot)
	if got, want := dot.Args[0].String(), `(not (deleted == true))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParsePin(t *testing.T) {
	n := MustParseString("test", `User.where(age > ^min_age)`)
	dot := n.(*Dot)
	cmp, ok := dot.Args[0].(*Call)
	if !ok {
		t.Fatalf("Expected Call, got %T", dot.Args[0])
	}
	pin, ok := cmp.Args[1].(*Pin)
	if !ok {
		t.Fatalf("Expected Pin, got %T", cmp.Args[1])
	}
	if pin.Name != "min_age" {
		t.Errorf("Expected pin name 'min_age', got '%s'", pin.Name)
	}
	if pin.Value != nil {
		t.Errorf("Expected unbound pin, got value %v", pin.Value)
	}
}

func TestParseQualifiedField(t *testing.T) {
	n := MustParseString("test", `User.where([u], u.age > 20)`)
	dot := n.(*Dot)
	if len(dot.Args) != 2 {
		t.Fatalf("Expected 2 args, got %d", len(dot.Args))
	}
	list, ok := dot.Args[0].(*List)
	if !ok {
		t.Fatalf("Expected List, got %T", dot.Args[0])
	}
	if len(list.Items) != 1 {
		t.Fatalf("Expected 1 binding, got %d", len(list.Items))
	}
	cmp := dot.Args[1].(*Call)
	field, ok := cmp.Args[0].(*Field)
	if !ok {
		t.Fatalf("Expected Field, got %T", cmp.Args[0])
	}
	if field.Binding != "u" || field.Name != "age" {
		t.Errorf("Expected u.age, got %s.%s", field.Binding, field.Name)
	}
}

func TestParseKeywordPairAndAtom(t *testing.T) {
	n := MustParseString("test", `User.order_by(inserted_at: :desc)`)
	dot := n.(*Dot)
	pair, ok := dot.Args[0].(*Pair)
	if !ok {
		t.Fatalf("Expected Pair, got %T", dot.Args[0])
	}
	if pair.Key != "inserted_at" {
		t.Errorf("Expected key 'inserted_at', got '%s'", pair.Key)
	}
	atom, ok := pair.Value.(*Atom)
	if !ok {
		t.Fatalf("Expected Atom, got %T", pair.Value)
	}
	if atom.Name != "desc" {
		t.Errorf("Expected atom 'desc', got '%s'", atom.Name)
	}
}

func TestParseBraceForms(t *testing.T) {
	n := MustParseString("test", `User.select({name: name, age: age})`)
	dot := n.(*Dot)
	m, ok := dot.Args[0].(*Map)
	if !ok {
		t.Fatalf("Expected Map, got %T", dot.Args[0])
	}
	if len(m.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(m.Entries))
	}
	if m.Entries[0].Key != "name" || m.Entries[1].Key != "age" {
		t.Errorf("Map entries out of order: %s", m.String())
	}

	n = MustParseString("test", `User.aggr({count(), min(age)})`)
	dot = n.(*Dot)
	tuple, ok := dot.Args[0].(*Tuple)
	if !ok {
		t.Fatalf("Expected Tuple, got %T", dot.Args[0])
	}
	if len(tuple.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(tuple.Items))
	}
}

func TestParseList(t *testing.T) {
	n := MustParseString("test", `User.where(age in [21, 22, 23])`)
	dot := n.(*Dot)
	if got, want := dot.Args[0].String(), `(age in [21, 22, 23])`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseFragment(t *testing.T) {
	n := MustParseString("test", `User.where(fragment("lower(?) = ?", name, "bob"))`)
	dot := n.(*Dot)
	frag, ok := dot.Args[0].(*Fragment)
	if !ok {
		t.Fatalf("Expected Fragment, got %T", dot.Args[0])
	}
	if frag.Template != "lower(?) = ?" {
		t.Errorf("Expected template 'lower(?) = ?', got '%s'", frag.Template)
	}
	if len(frag.Args) != 2 {
		t.Errorf("Expected 2 fragment args, got %d", len(frag.Args))
	}
}

func TestParseBang(t *testing.T) {
	n := MustParseString("test", `User.find_by!(email == "a@b.c")`)
	dot := n.(*Dot)
	if !dot.Bang {
		t.Error("Expected bang call")
	}
	if dot.Name != "find_by" {
		t.Errorf("Expected name 'find_by', got '%s'", dot.Name)
	}
}

func TestParsePredicateName(t *testing.T) {
	n := MustParseString("test", `User.where(age > 20).exists?`)
	dot := n.(*Dot)
	if dot.Name != "exists?" {
		t.Errorf("Expected name 'exists?', got '%s'", dot.Name)
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  interface{}
	}{
		{`E.where(x == 42)`, int64(42)},
		{`E.where(x == 3.5)`, 3.5},
		{`E.where(x == -7)`, int64(-7)},
		{`E.where(x == "say \"hi\"")`, `say "hi"`},
		{`E.where(x == true)`, true},
		{`E.where(x == nil)`, nil},
	}
	for _, tt := range tests {
		n, err := ParseString("test", tt.input)
		if err != nil {
			t.Fatalf("Failed to parse %s: %v", tt.input, err)
		}
		cmp := n.(*Dot).Args[0].(*Call)
		lit, ok := cmp.Args[1].(*Literal)
		if !ok {
			t.Fatalf("%s: expected Literal, got %T", tt.input, cmp.Args[1])
		}
		if lit.Value != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.input, tt.want, lit.Value)
		}
	}
}

func TestParseArithmetic(t *testing.T) {
	n := MustParseString("test", `E.where(a + b * 2 > 10)`)
	dot := n.(*Dot)
	if got, want := dot.Args[0].String(), `((a + (b * 2)) > 10)`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseBareRoot(t *testing.T) {
	n, err := ParseString("test", `User`)
	if err != nil {
		t.Fatalf("Failed to parse bare root: %v", err)
	}
	ident, ok := n.(*Ident)
	if !ok {
		t.Fatalf("Expected Ident, got %T", n)
	}
	if ident.Name != "User" {
		t.Errorf("Expected 'User', got '%s'", ident.Name)
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		``,
		`User.where(`,
		`User.where(age >)`,
		`.where(age > 20)`,
	}
	for _, input := range inputs {
		if _, err := ParseString("test", input); err == nil {
			t.Errorf("Expected parse error for %q", input)
		}
	}
}
