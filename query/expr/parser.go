package expr

import (
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// rawChain is the raw parse tree for a full chain: a root identifier
// followed by dotted operation calls. It is converted to nested Dot nodes
// after parsing.
type rawChain struct {
	Root  string     `parser:"@Ident"`
	Calls []*rawCall `parser:"( \".\" @@ )*"`
}

type rawCall struct {
	Name string     `parser:"@Ident"`
	Bang bool       `parser:"@Bang?"`
	Open bool       `parser:"( @\"(\""`
	Args []*rawExpr `parser:"  ( @@ ( \",\" @@ )* )? \")\" )?"`
}

// rawExpr is either a keyword pair (key: value) or an expression.
type rawExpr struct {
	Pair *rawPair `parser:"  @@"`
	Expr *rawOr   `parser:"| @@"`
}

type rawPair struct {
	Key   string   `parser:"@Ident \":\""`
	Value *rawExpr `parser:"@@"`
}

type rawOr struct {
	Left  *rawAnd   `parser:"@@"`
	Right []*rawAnd `parser:"( \"or\" @@ )*"`
}

type rawAnd struct {
	Left  *rawNot   `parser:"@@"`
	Right []*rawNot `parser:"( \"and\" @@ )*"`
}

type rawNot struct {
	Not bool    `parser:"@\"not\"?"`
	Cmp *rawCmp `parser:"@@"`
}

type rawCmp struct {
	Left  *rawAdd `parser:"@@"`
	Op    string  `parser:"( @( CmpOp | \"in\" | \"like\" )"`
	Right *rawAdd `parser:"  @@ )?"`
}

type rawAdd struct {
	Left *rawMul       `parser:"@@"`
	Tail []*rawAddTail `parser:"@@*"`
}

type rawAddTail struct {
	Op   string  `parser:"@AddOp"`
	Term *rawMul `parser:"@@"`
}

type rawMul struct {
	Left *rawUnary     `parser:"@@"`
	Tail []*rawMulTail `parser:"@@*"`
}

type rawMulTail struct {
	Op   string    `parser:"@MulOp"`
	Term *rawUnary `parser:"@@"`
}

type rawUnary struct {
	Neg  bool        `parser:"@\"-\"?"`
	Term *rawPrimary `parser:"@@"`
}

type rawPrimary struct {
	Pin       *rawPin   `parser:"  @@"`
	Func      *rawFunc  `parser:"| @@"`
	Qualified *rawField `parser:"| @@"`
	Float     *float64  `parser:"| @Float"`
	Int       *int64    `parser:"| @Int"`
	Str       *string   `parser:"| @String"`
	True      bool      `parser:"| @\"true\""`
	False     bool      `parser:"| @\"false\""`
	Nil       bool      `parser:"| @\"nil\""`
	Atom      *string   `parser:"| @Atom"`
	List      *rawList  `parser:"| @@"`
	Brace     *rawBrace `parser:"| @@"`
	Ident     *string   `parser:"| @Ident"`
	Sub       *rawOr    `parser:"| \"(\" @@ \")\""`
}

type rawPin struct {
	Name string `parser:"Caret @Ident"`
}

type rawFunc struct {
	Name string     `parser:"@Ident"`
	Args []*rawExpr `parser:"\"(\" ( @@ ( \",\" @@ )* )? \")\""`
}

type rawField struct {
	Binding string `parser:"@Ident \".\""`
	Name    string `parser:"@Ident"`
}

type rawList struct {
	Items []*rawExpr `parser:"\"[\" ( @@ ( \",\" @@ )* )? \"]\""`
}

type rawBrace struct {
	Items []*rawExpr `parser:"\"{\" ( @@ ( \",\" @@ )* )? \"}\""`
}

// parser is the Participle parser instance for full chains.
var parser = participle.MustBuild[rawChain](
	participle.Lexer(ChainLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(10),
)

// Parse parses a chain expression from an io.Reader.
func Parse(filename string, r io.Reader) (Node, error) {
	raw, err := parser.Parse(filename, r)
	if err != nil {
		return nil, err
	}
	return convertChain(raw), nil
}

// ParseString parses a chain expression from a string.
func ParseString(filename, input string) (Node, error) {
	return Parse(filename, strings.NewReader(input))
}

// MustParseString parses a chain expression from a string, panicking on error.
func MustParseString(filename, input string) Node {
	n, err := ParseString(filename, input)
	if err != nil {
		panic(err)
	}
	return n
}

// convertChain converts the raw parse tree to nested Dot nodes, innermost
// receiver first.
func convertChain(raw *rawChain) Node {
	var n Node = &Ident{Name: raw.Root}
	for _, call := range raw.Calls {
		n = &Dot{
			Recv: n,
			Name: call.Name,
			Bang: call.Bang,
			Args: convertExprs(call.Args),
		}
	}
	return n
}

func convertExprs(raw []*rawExpr) []Node {
	if raw == nil {
		return nil
	}
	out := make([]Node, len(raw))
	for i, e := range raw {
		out[i] = convertExpr(e)
	}
	return out
}

func convertExpr(raw *rawExpr) Node {
	if raw.Pair != nil {
		return &Pair{Key: raw.Pair.Key, Value: convertExpr(raw.Pair.Value)}
	}
	return convertOr(raw.Expr)
}

func convertOr(raw *rawOr) Node {
	n := convertAnd(raw.Left)
	for _, right := range raw.Right {
		n = &Call{Name: "or", Args: []Node{n, convertAnd(right)}}
	}
	return n
}

func convertAnd(raw *rawAnd) Node {
	n := convertNot(raw.Left)
	for _, right := range raw.Right {
		n = &Call{Name: "and", Args: []Node{n, convertNot(right)}}
	}
	return n
}

func convertNot(raw *rawNot) Node {
	n := convertCmp(raw.Cmp)
	if raw.Not {
		n = &Call{Name: "not", Args: []Node{n}}
	}
	return n
}

func convertCmp(raw *rawCmp) Node {
	n := convertAdd(raw.Left)
	if raw.Op != "" {
		n = &Call{Name: raw.Op, Args: []Node{n, convertAdd(raw.Right)}}
	}
	return n
}

func convertAdd(raw *rawAdd) Node {
	n := convertMul(raw.Left)
	for _, tail := range raw.Tail {
		n = &Call{Name: tail.Op, Args: []Node{n, convertMul(tail.Term)}}
	}
	return n
}

func convertMul(raw *rawMul) Node {
	n := convertUnary(raw.Left)
	for _, tail := range raw.Tail {
		n = &Call{Name: tail.Op, Args: []Node{n, convertUnary(tail.Term)}}
	}
	return n
}

func convertUnary(raw *rawUnary) Node {
	n := convertPrimary(raw.Term)
	if raw.Neg {
		// Fold negation into numeric literals; anything else becomes a
		// single-argument minus.
		if lit, ok := n.(*Literal); ok {
			switch v := lit.Value.(type) {
			case int64:
				return &Literal{Value: -v}
			case float64:
				return &Literal{Value: -v}
			}
		}
		n = &Call{Name: "-", Args: []Node{n}}
	}
	return n
}

func convertPrimary(raw *rawPrimary) Node {
	switch {
	case raw.Pin != nil:
		return &Pin{Name: raw.Pin.Name}
	case raw.Func != nil:
		if raw.Func.Name == "fragment" {
			return convertFragment(raw.Func)
		}
		return &Call{Name: raw.Func.Name, Args: convertExprs(raw.Func.Args)}
	case raw.Qualified != nil:
		return &Field{Binding: raw.Qualified.Binding, Name: raw.Qualified.Name}
	case raw.Float != nil:
		return &Literal{Value: *raw.Float}
	case raw.Int != nil:
		return &Literal{Value: *raw.Int}
	case raw.Str != nil:
		return &Literal{Value: *raw.Str}
	case raw.True:
		return &Literal{Value: true}
	case raw.False:
		return &Literal{Value: false}
	case raw.Nil:
		return &Literal{Value: nil}
	case raw.Atom != nil:
		return &Atom{Name: strings.TrimPrefix(*raw.Atom, ":")}
	case raw.List != nil:
		return &List{Items: convertExprs(raw.List.Items)}
	case raw.Brace != nil:
		return convertBrace(raw.Brace)
	case raw.Ident != nil:
		return &Ident{Name: *raw.Ident}
	case raw.Sub != nil:
		return convertOr(raw.Sub)
	default:
		return &Literal{Value: nil}
	}
}

// convertFragment turns fragment("tmpl", args...) into a Fragment node when
// the first argument is a string literal. Anything else stays a plain call
// and fails later during plan building.
func convertFragment(raw *rawFunc) Node {
	args := convertExprs(raw.Args)
	if len(args) > 0 {
		if lit, ok := args[0].(*Literal); ok {
			if tmpl, ok := lit.Value.(string); ok {
				return &Fragment{Template: tmpl, Args: args[1:]}
			}
		}
	}
	return &Call{Name: raw.Name, Args: args}
}

// convertBrace decides between a map literal and a tuple: braces whose every
// element is a keyword pair form a map, anything else a tuple.
func convertBrace(raw *rawBrace) Node {
	items := convertExprs(raw.Items)
	if len(items) == 0 {
		return &Tuple{}
	}
	entries := make([]*Pair, 0, len(items))
	for _, item := range items {
		pair, ok := item.(*Pair)
		if !ok {
			return &Tuple{Items: items}
		}
		entries = append(entries, pair)
	}
	return &Map{Entries: entries}
}
