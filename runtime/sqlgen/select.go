package sqlgen

import (
	"fmt"
	"strings"

	"github.com/chainq-dev/chainq/query/expr"
	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/schema"
)

// builder accumulates bound arguments while assembling one statement.
// Placeholder numbering is shared across set-operation sub-selects.
type builder struct {
	gen  *Generator
	args []interface{}
}

// bind appends a bound argument and returns its placeholder.
func (b *builder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.gen.dialect.Placeholder(len(b.args))
}

func (b *builder) quote(name string) string { return b.gen.dialect.Quote(name) }

// scope maps binding labels to table aliases for one SELECT.
type scope struct {
	entity  *schema.EntityType
	aliases map[string]string
	joined  map[string]*schema.EntityType
}

func (s *scope) alias(binding string) (string, bool) {
	a, ok := s.aliases[binding]
	return a, ok
}

func (b *builder) selectSQL(entity *schema.EntityType, p *plan.Plan, withOrder bool) (string, error) {
	return b.selectSQLWithProjection(entity, p, "", withOrder)
}

// selectSQLWithProjection assembles a SELECT. An empty projection is derived
// from the plan's selection; a non-empty one (SELECT 1, SELECT COUNT(*)) is
// used verbatim.
func (b *builder) selectSQLWithProjection(entity *schema.EntityType, p *plan.Plan, projection string, withOrder bool) (string, error) {
	s, err := b.newScope(entity, p)
	if err != nil {
		return "", err
	}

	var parts []string
	if projection == "" {
		projection, err = b.projection(s, p)
		if err != nil {
			return "", err
		}
	}
	parts = append(parts, projection)
	parts = append(parts, fmt.Sprintf("FROM %s AS t0", b.quote(entity.Table)))

	joinSQL, err := b.joins(s, p)
	if err != nil {
		return "", err
	}
	parts = append(parts, joinSQL...)

	if p.Filters != nil {
		cond, err := b.expr(s, p.Filters)
		if err != nil {
			return "", err
		}
		parts = append(parts, "WHERE "+cond)
	}
	if len(p.GroupBy) > 0 {
		keys := make([]string, len(p.GroupBy))
		for i, k := range p.GroupBy {
			keys[i], err = b.expr(s, k)
			if err != nil {
				return "", err
			}
		}
		parts = append(parts, "GROUP BY "+strings.Join(keys, ", "))
	}
	if p.Having != nil {
		cond, err := b.expr(s, p.Having)
		if err != nil {
			return "", err
		}
		parts = append(parts, "HAVING "+cond)
	}

	sql := strings.Join(parts, " ")

	for _, op := range p.SetOps {
		sub, err := b.setOpSQL(op)
		if err != nil {
			return "", err
		}
		sql += sub
	}

	if withOrder && len(p.Order) > 0 {
		order, err := b.orderBy(s, p.Order)
		if err != nil {
			return "", err
		}
		sql += " ORDER BY " + order
	}
	if withOrder && p.LimitCount != nil {
		sql += " LIMIT " + b.bind(*p.LimitCount)
	}
	if withOrder && p.OffsetN != nil {
		sql += " OFFSET " + b.bind(*p.OffsetN)
	}
	return sql, nil
}

// newScope assigns table aliases: t0 for the source, t1.. for joins, keyed
// by binding label.
func (b *builder) newScope(entity *schema.EntityType, p *plan.Plan) (*scope, error) {
	s := &scope{
		entity:  entity,
		aliases: map[string]string{"b0": "t0"},
		joined:  map[string]*schema.EntityType{},
	}
	for i, j := range p.Joins {
		target, err := b.joinTarget(entity, j)
		if err != nil {
			return nil, err
		}
		alias := fmt.Sprintf("t%d", i+1)
		s.aliases[j.Binding] = alias
		s.joined[j.Binding] = target
	}
	return s, nil
}

// joinTarget resolves a join's target entity: through the source's declared
// association first, then as an entity name in its own right.
func (b *builder) joinTarget(entity *schema.EntityType, j plan.Join) (*schema.EntityType, error) {
	if assoc, ok := entity.Assocs[j.Target]; ok {
		return b.gen.resolve(assoc.Target)
	}
	target, err := b.gen.resolve(j.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: join target %s is neither an association of %s nor an entity",
			ErrUnsupported, j.Target, entity.Name)
	}
	return target, nil
}

var joinKindSQL = map[plan.JoinKind]string{
	plan.JoinInner:        "INNER JOIN",
	plan.JoinLeft:         "LEFT JOIN",
	plan.JoinRight:        "RIGHT JOIN",
	plan.JoinFull:         "FULL JOIN",
	plan.JoinCross:        "CROSS JOIN",
	plan.JoinInnerLateral: "INNER JOIN LATERAL",
	plan.JoinLeftLateral:  "LEFT JOIN LATERAL",
}

func (b *builder) joins(s *scope, p *plan.Plan) ([]string, error) {
	var out []string
	for _, j := range p.Joins {
		kind, ok := joinKindSQL[j.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: join kind %s", ErrUnsupported, j.Kind)
		}
		target := s.joined[j.Binding]
		alias := s.aliases[j.Binding]
		clause := fmt.Sprintf("%s %s AS %s", kind, b.quote(target.Table), alias)

		if j.Kind == plan.JoinCross {
			out = append(out, clause)
			continue
		}
		if j.On != nil {
			cond, err := b.expr(s, j.On)
			if err != nil {
				return nil, err
			}
			out = append(out, clause+" ON "+cond)
			continue
		}
		assoc, ok := s.entity.Assocs[j.Target]
		if !ok {
			return nil, fmt.Errorf("%w: join %s has no condition and no association", ErrUnsupported, j.Target)
		}
		pk := s.entity.PK()
		cond := fmt.Sprintf("%s.%s = t0.%s", alias, b.quote(assoc.ForeignKey), b.quote(pk[0]))
		out = append(out, clause+" ON "+cond)
	}
	return out, nil
}

// projection renders the SELECT clause from the plan's selection and
// distinct marking.
func (b *builder) projection(s *scope, p *plan.Plan) (string, error) {
	prefix := "SELECT "
	if p.Distinct {
		if len(p.DistinctOn) > 0 {
			if _, ok := b.gen.dialect.(postgresDialect); !ok {
				return "", fmt.Errorf("%w: DISTINCT ON requires postgres", ErrUnsupported)
			}
			fields := make([]string, len(p.DistinctOn))
			for i, f := range p.DistinctOn {
				sql, err := b.expr(s, f)
				if err != nil {
					return "", err
				}
				fields[i] = sql
			}
			prefix = "SELECT DISTINCT ON (" + strings.Join(fields, ", ") + ") "
		} else {
			prefix = "SELECT DISTINCT "
		}
	}
	if p.Selection == nil {
		return prefix + "t0.*", nil
	}
	sel, err := b.selection(s, p.Selection)
	if err != nil {
		return "", err
	}
	return prefix + sel, nil
}

// selection renders a projection expression: tuples become column lists,
// maps become aliased columns, anything else renders as an expression.
func (b *builder) selection(s *scope, n expr.Node) (string, error) {
	switch v := n.(type) {
	case *expr.Tuple:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			sql, err := b.selection(s, item)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return strings.Join(parts, ", "), nil
	case *expr.Map:
		parts := make([]string, len(v.Entries))
		for i, e := range v.Entries {
			sql, err := b.expr(s, e.Value)
			if err != nil {
				return "", err
			}
			parts[i] = sql + " AS " + b.quote(e.Key)
		}
		return strings.Join(parts, ", "), nil
	default:
		return b.expr(s, n)
	}
}

func (b *builder) orderBy(s *scope, keys []plan.OrderKey) (string, error) {
	var parts []string
	for _, key := range keys {
		dir := "ASC"
		if key.Dir == plan.Desc {
			dir = "DESC"
		}
		if _, ok := key.Key.(*expr.PrimaryKey); ok {
			// Default ordering expands to every primary key column.
			for _, col := range s.entity.PK() {
				parts = append(parts, fmt.Sprintf("t0.%s %s", b.quote(col), dir))
			}
			continue
		}
		sql, err := b.expr(s, key.Key)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

var setOpKeyword = map[plan.SetOpKind]string{
	plan.SetUnion:     "UNION",
	plan.SetIntersect: "INTERSECT",
	plan.SetExcept:    "EXCEPT",
}

func (b *builder) setOpSQL(op plan.SetOp) (string, error) {
	kw, ok := setOpKeyword[op.Kind]
	if !ok {
		return "", fmt.Errorf("%w: set operation %s", ErrUnsupported, op.Kind)
	}
	if op.All {
		kw += " ALL"
	}
	entity, err := b.gen.resolve(op.Other.Source)
	if err != nil {
		return "", err
	}
	sub, err := b.selectSQL(entity, op.Other, false)
	if err != nil {
		return "", err
	}
	return " " + kw + " " + sub, nil
}
