package expr

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ChainLexer defines the token types for the chained query language.
var ChainLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Keywords (must come before Ident)
	{Name: "Keyword", Pattern: `\b(and|or|not|in|like|true|false|nil)\b`},

	// Atoms, e.g. :desc (must come before Colon)
	{Name: "Atom", Pattern: `:[A-Za-z_][A-Za-z0-9_]*`},

	// Literals
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},

	// Operators (CmpOp before Bang so != wins)
	{Name: "CmpOp", Pattern: `==|!=|<=|>=|<|>`},
	{Name: "AddOp", Pattern: `[+\-]`},
	{Name: "MulOp", Pattern: `[*/]`},
	{Name: "Caret", Pattern: `\^`},
	{Name: "Bang", Pattern: `!`},

	// Punctuation
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dot", Pattern: `\.`},

	// Identifiers; a trailing ? marks predicate-style operation names
	// such as exists?
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*\??`},

	// Whitespace
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})
