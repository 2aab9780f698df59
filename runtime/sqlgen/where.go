package sqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/chainq-dev/chainq/query/expr"
)

// aggregateSQL maps aggregate function names to their SQL spelling.
var aggregateSQL = map[string]string{
	"count": "COUNT",
	"sum":   "SUM",
	"avg":   "AVG",
	"min":   "MIN",
	"max":   "MAX",
}

// expr renders an expression node to SQL, binding literal and pinned values
// as arguments.
func (b *builder) expr(s *scope, n expr.Node) (string, error) {
	switch v := n.(type) {
	case *expr.Literal:
		if v.Value == nil {
			return "NULL", nil
		}
		return b.bind(v.Value), nil
	case *expr.Pin:
		return b.bind(v.Value), nil
	case *expr.Field:
		alias, ok := s.alias(v.Binding)
		if !ok {
			return "", fmt.Errorf("%w: unknown binding %s", ErrUnsupported, v.Binding)
		}
		return alias + "." + b.quote(v.Name), nil
	case *expr.PrimaryKey:
		pk := s.entity.PK()
		if len(pk) != 1 {
			return "", fmt.Errorf("%w: composite primary key in expression", ErrUnsupported)
		}
		return "t0." + b.quote(pk[0]), nil
	case *expr.Fragment:
		return b.fragment(s, v)
	case *expr.Call:
		return b.call(s, v)
	case *expr.Tuple:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			sql, err := b.expr(s, item)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("%w: %s has no SQL form", ErrUnsupported, n.String())
	}
}

func (b *builder) call(s *scope, c *expr.Call) (string, error) {
	switch c.Name {
	case "and", "or":
		return b.binary(s, c, strings.ToUpper(c.Name))
	case "not":
		if len(c.Args) != 1 {
			return "", fmt.Errorf("%w: not takes one argument", ErrUnsupported)
		}
		inner, err := b.expr(s, c.Args[0])
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case "==":
		if len(c.Args) == 2 && isNilLiteral(c.Args[1]) {
			return b.nullCheck(s, c.Args[0], "IS NULL")
		}
		return b.binary(s, c, "=")
	case "!=":
		if len(c.Args) == 2 && isNilLiteral(c.Args[1]) {
			return b.nullCheck(s, c.Args[0], "IS NOT NULL")
		}
		return b.binary(s, c, "<>")
	case ">", "<", ">=", "<=", "+", "*", "/":
		return b.binary(s, c, c.Name)
	case "-":
		if len(c.Args) == 1 {
			inner, err := b.expr(s, c.Args[0])
			if err != nil {
				return "", err
			}
			return "-" + inner, nil
		}
		return b.binary(s, c, "-")
	case "like":
		return b.binary(s, c, "LIKE")
	case "in":
		return b.inList(s, c)
	}
	if fn, ok := aggregateSQL[c.Name]; ok {
		return b.aggregate(s, fn, c.Args)
	}
	return "", fmt.Errorf("%w: function %s", ErrUnsupported, c.Name)
}

func (b *builder) binary(s *scope, c *expr.Call, op string) (string, error) {
	if len(c.Args) != 2 {
		return "", fmt.Errorf("%w: %s takes two arguments", ErrUnsupported, c.Name)
	}
	left, err := b.expr(s, c.Args[0])
	if err != nil {
		return "", err
	}
	right, err := b.expr(s, c.Args[1])
	if err != nil {
		return "", err
	}
	return "(" + left + " " + op + " " + right + ")", nil
}

func (b *builder) nullCheck(s *scope, n expr.Node, suffix string) (string, error) {
	left, err := b.expr(s, n)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + suffix + ")", nil
}

// inList renders membership against a literal list, a pinned slice, or a
// tuple.
func (b *builder) inList(s *scope, c *expr.Call) (string, error) {
	if len(c.Args) != 2 {
		return "", fmt.Errorf("%w: in takes two arguments", ErrUnsupported)
	}
	left, err := b.expr(s, c.Args[0])
	if err != nil {
		return "", err
	}
	var phs []string
	switch right := c.Args[1].(type) {
	case *expr.List:
		for _, item := range right.Items {
			sql, err := b.expr(s, item)
			if err != nil {
				return "", err
			}
			phs = append(phs, sql)
		}
	case *expr.Tuple:
		for _, item := range right.Items {
			sql, err := b.expr(s, item)
			if err != nil {
				return "", err
			}
			phs = append(phs, sql)
		}
	case *expr.Pin:
		rv := reflect.ValueOf(right.Value)
		if rv.Kind() != reflect.Slice {
			return "", fmt.Errorf("%w: pinned IN value must be a slice", ErrUnsupported)
		}
		for i := 0; i < rv.Len(); i++ {
			phs = append(phs, b.bind(rv.Index(i).Interface()))
		}
	default:
		return "", fmt.Errorf("%w: IN right-hand side %s", ErrUnsupported, c.Args[1].String())
	}
	if len(phs) == 0 {
		// Empty membership matches nothing.
		return "1=0", nil
	}
	return fmt.Sprintf("%s IN (%s)", left, strings.Join(phs, ", ")), nil
}

func (b *builder) aggregate(s *scope, fn string, args []expr.Node) (string, error) {
	if len(args) == 0 {
		return fn + "(*)", nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s takes at most one argument", ErrUnsupported, fn)
	}
	inner, err := b.expr(s, args[0])
	if err != nil {
		return "", err
	}
	return fn + "(" + inner + ")", nil
}

// fragment substitutes the dialect's placeholders for each ? in the raw
// template; the template text is otherwise emitted verbatim.
func (b *builder) fragment(s *scope, f *expr.Fragment) (string, error) {
	pieces := strings.Split(f.Template, "?")
	if len(pieces)-1 != len(f.Args) {
		return "", fmt.Errorf("%w: fragment has %d placeholders but %d arguments",
			ErrUnsupported, len(pieces)-1, len(f.Args))
	}
	var sb strings.Builder
	sb.WriteString(pieces[0])
	for i, arg := range f.Args {
		sql, err := b.expr(s, arg)
		if err != nil {
			return "", err
		}
		sb.WriteString(sql)
		sb.WriteString(pieces[i+1])
	}
	return sb.String(), nil
}

func isNilLiteral(n expr.Node) bool {
	lit, ok := n.(*expr.Literal)
	return ok && lit.Value == nil
}
