package compiler

import (
	"errors"
	"testing"

	"github.com/chainq-dev/chainq/query/plan"
)

func TestCompileFullChain(t *testing.T) {
	p, err := Compile(`User.where(age > 20 and name == "Bob").order(name).limit(10).all`, nil)
	if err != nil {
		t.Fatalf("Failed to compile: %v", err)
	}
	if p.Source != "User" {
		t.Errorf("Expected source 'User', got '%s'", p.Source)
	}
	if got, want := p.Filters.String(), `((b0.age > 20) and (b0.name == "Bob"))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if len(p.Order) != 1 || p.Order[0].Key.String() != "b0.name" {
		t.Errorf("Unexpected order: %v", p.Order)
	}
	if p.LimitCount == nil || *p.LimitCount != 10 {
		t.Errorf("Expected limit 10, got %v", p.LimitCount)
	}
	if p.Terminal == nil || p.Terminal.Mode != plan.ModeAll {
		t.Errorf("Unexpected terminal: %+v", p.Terminal)
	}
}

func TestCompileBindsPins(t *testing.T) {
	p, err := Compile(`User.where(age > ^min)`, &Options{
		Params: map[string]interface{}{"min": 21},
	})
	if err != nil {
		t.Fatalf("Failed to compile: %v", err)
	}
	if got, want := p.Filters.String(), `(b0.age > ^min)`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestCompileUnboundPin(t *testing.T) {
	_, err := Compile(`User.where(age > ^min)`, nil)
	if !errors.Is(err, ErrUnboundPin) {
		t.Errorf("Expected ErrUnboundPin, got %v", err)
	}
}

func TestCompileParseError(t *testing.T) {
	_, err := Compile(`User.where(`, nil)
	if !errors.Is(err, ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
}

func TestCompileLowercaseRootComposition(t *testing.T) {
	base, err := Compile(`User.where(age > 20)`, nil)
	if err != nil {
		t.Fatalf("Failed to compile base: %v", err)
	}
	p, err := Compile(`q.where(admin == true).count`, &Options{
		Params: map[string]interface{}{"q": base},
	})
	if err != nil {
		t.Fatalf("Failed to compile composed chain: %v", err)
	}
	if got, want := p.Filters.String(), `((b0.age > 20) and (b0.admin == true))`; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if p.Terminal.Mode != plan.ModeCount {
		t.Errorf("Expected count terminal, got %v", p.Terminal.Mode)
	}
	// Composition must not touch the base plan.
	if base.Terminal != nil {
		t.Error("Base plan gained a terminal")
	}
	if got, want := base.Filters.String(), `(b0.age > 20)`; got != want {
		t.Errorf("Base plan filters changed: %s", got)
	}
}

func TestCompileUnboundLocal(t *testing.T) {
	_, err := Compile(`q.count`, nil)
	if !errors.Is(err, ErrUnboundLocal) {
		t.Errorf("Expected ErrUnboundLocal, got %v", err)
	}
}

func TestCompileNonTerminalHandle(t *testing.T) {
	p, err := Compile(`User.where(age > 20).order(name)`, nil)
	if err != nil {
		t.Fatalf("Failed to compile: %v", err)
	}
	if p.Finished() {
		t.Error("Expected unfinished plan handle")
	}
}

func TestCompilePinnedSetOp(t *testing.T) {
	other, err := Compile(`Admin.where(active == true)`, nil)
	if err != nil {
		t.Fatalf("Failed to compile other: %v", err)
	}
	p, err := Compile(`User.union(^other).all`, &Options{
		Params: map[string]interface{}{"other": other},
	})
	if err != nil {
		t.Fatalf("Failed to compile union: %v", err)
	}
	if len(p.SetOps) != 1 || p.SetOps[0].Other != other {
		t.Errorf("Unexpected set ops: %+v", p.SetOps)
	}
}
