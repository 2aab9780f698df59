package chain

import (
	"errors"
	"testing"

	"github.com/chainq-dev/chainq/query/expr"
)

func TestUnwrapChain(t *testing.T) {
	tree := expr.MustParseString("test", `User.where(age > 20).order_by(name).limit(10).all`)
	root, steps, err := Unwrap(tree)
	if err != nil {
		t.Fatalf("Failed to unwrap: %v", err)
	}
	if root != "User" {
		t.Errorf("Expected root 'User', got '%s'", root)
	}
	names := []string{"where", "order_by", "limit", "all"}
	if len(steps) != len(names) {
		t.Fatalf("Expected %d steps, got %d", len(names), len(steps))
	}
	for i, name := range names {
		if steps[i].Name != name {
			t.Errorf("Step %d: expected '%s', got '%s'", i, name, steps[i].Name)
		}
	}
	if len(steps[0].Args) != 1 {
		t.Errorf("Expected 1 where arg, got %d", len(steps[0].Args))
	}
}

func TestUnwrapBareRoot(t *testing.T) {
	root, steps, err := Unwrap(&expr.Ident{Name: "Post"})
	if err != nil {
		t.Fatalf("Failed to unwrap: %v", err)
	}
	if root != "Post" {
		t.Errorf("Expected root 'Post', got '%s'", root)
	}
	if len(steps) != 0 {
		t.Errorf("Expected 0 steps, got %d", len(steps))
	}
}

func TestUnwrapBang(t *testing.T) {
	tree := expr.MustParseString("test", `User.get!(1)`)
	_, steps, err := Unwrap(tree)
	if err != nil {
		t.Fatalf("Failed to unwrap: %v", err)
	}
	if !steps[0].Bang {
		t.Error("Expected bang step")
	}
}

func TestUnwrapMalformed(t *testing.T) {
	cases := []expr.Node{
		nil,
		&expr.Literal{Value: int64(1)},
		&expr.Dot{Recv: &expr.Literal{Value: int64(1)}, Name: "all"},
	}
	for _, tree := range cases {
		if _, _, err := Unwrap(tree); !errors.Is(err, ErrMalformed) {
			t.Errorf("Expected ErrMalformed, got %v", err)
		}
	}
}
