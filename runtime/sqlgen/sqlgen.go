// Package sqlgen generates SQL from query plans for different database
// providers.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/schema"
)

// ErrUnsupported is returned for plan shapes or expression nodes that have
// no SQL rendering.
var ErrUnsupported = errors.New("unsupported SQL construct")

// Query is a generated SQL statement with bound arguments.
type Query struct {
	SQL  string
	Args []interface{}
}

// Dialect abstracts the per-provider differences: identifier quoting,
// placeholder style and RETURNING support.
type Dialect interface {
	Quote(name string) string
	Placeholder(n int) string // n is 1-based
	Returning() bool
}

type postgresDialect struct{}

func (postgresDialect) Quote(name string) string { return `"` + name + `"` }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Returning() bool          { return true }

type mysqlDialect struct{}

func (mysqlDialect) Quote(name string) string { return "`" + name + "`" }
func (mysqlDialect) Placeholder(int) string   { return "?" }
func (mysqlDialect) Returning() bool          { return false }

type sqliteDialect struct{}

func (sqliteDialect) Quote(name string) string { return `"` + name + `"` }
func (sqliteDialect) Placeholder(int) string   { return "?" }
func (sqliteDialect) Returning() bool          { return false }

// NewDialect returns the dialect for a provider name, defaulting to
// postgres.
func NewDialect(provider string) Dialect {
	switch provider {
	case "mysql":
		return mysqlDialect{}
	case "sqlite", "sqlite3":
		return sqliteDialect{}
	default:
		return postgresDialect{}
	}
}

// Generator generates SQL for one provider. Entity names inside plans
// (join targets and set-operation sub-plans) are resolved via the
// registry, under the generator's namespace.
type Generator struct {
	dialect   Dialect
	registry  *schema.Registry
	namespace string
}

// NewGenerator creates a generator for the given provider.
func NewGenerator(provider string, registry *schema.Registry) *Generator {
	if registry == nil {
		registry = schema.DefaultRegistry()
	}
	return &Generator{dialect: NewDialect(provider), registry: registry}
}

// SetNamespace sets the namespace used to resolve entity names inside
// plans. It must match the namespace the plan's root was resolved with.
func (g *Generator) SetNamespace(ns string) { g.namespace = ns }

// Dialect exposes the generator's dialect.
func (g *Generator) Dialect() Dialect { return g.dialect }

func (g *Generator) resolve(name string) (*schema.EntityType, error) {
	return g.registry.Resolve(name, schema.ResolveOptions{Namespace: g.namespace})
}

// Select generates the SELECT statement for a plan.
func (g *Generator) Select(entity *schema.EntityType, p *plan.Plan) (*Query, error) {
	b := &builder{gen: g}
	sql, err := b.selectSQL(entity, p, true)
	if err != nil {
		return nil, err
	}
	return &Query{SQL: sql, Args: b.args}, nil
}

// Exists generates SELECT EXISTS over the plan's filters and joins,
// ignoring ordering and limits.
func (g *Generator) Exists(entity *schema.EntityType, p *plan.Plan) (*Query, error) {
	stripped := *p
	stripped.Order = nil
	stripped.LimitCount = nil
	stripped.OffsetN = nil
	b := &builder{gen: g}
	inner, err := b.selectSQLWithProjection(entity, &stripped, "SELECT 1", false)
	if err != nil {
		return nil, err
	}
	return &Query{SQL: "SELECT EXISTS (" + inner + ")", Args: b.args}, nil
}

// Count generates SELECT COUNT(*) over the plan's filters and joins.
// A grouped plan yields one row per group, so its count is the number of
// groups, taken over a subquery.
func (g *Generator) Count(entity *schema.EntityType, p *plan.Plan) (*Query, error) {
	stripped := *p
	stripped.Order = nil
	stripped.LimitCount = nil
	stripped.OffsetN = nil
	b := &builder{gen: g}
	if len(p.GroupBy) > 0 {
		inner, err := b.selectSQLWithProjection(entity, &stripped, "SELECT 1", false)
		if err != nil {
			return nil, err
		}
		return &Query{SQL: "SELECT COUNT(*) FROM (" + inner + ") AS sub", Args: b.args}, nil
	}
	sql, err := b.selectSQLWithProjection(entity, &stripped, "SELECT COUNT(*)", false)
	if err != nil {
		return nil, err
	}
	return &Query{SQL: sql, Args: b.args}, nil
}

// Insert generates an INSERT for the record's set fields, in declared field
// order. Providers with RETURNING get the full row back.
func (g *Generator) Insert(entity *schema.EntityType, rec schema.Record) *Query {
	var cols []string
	var phs []string
	var args []interface{}
	n := 0
	for _, f := range entity.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		n++
		cols = append(cols, g.dialect.Quote(f.Name))
		phs = append(phs, g.dialect.Placeholder(n))
		args = append(args, v)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		g.dialect.Quote(entity.Table), strings.Join(cols, ", "), strings.Join(phs, ", "))
	if g.dialect.Returning() {
		sql += " RETURNING *"
	}
	return &Query{SQL: sql, Args: args}
}

// Update generates an UPDATE of the record's non-key fields, keyed by the
// primary key.
func (g *Generator) Update(entity *schema.EntityType, rec schema.Record) (*Query, error) {
	pk := entity.PK()
	var sets []string
	var args []interface{}
	n := 0
	for _, f := range entity.Fields {
		if contains(pk, f.Name) {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		n++
		sets = append(sets, fmt.Sprintf("%s = %s", g.dialect.Quote(f.Name), g.dialect.Placeholder(n)))
		args = append(args, v)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: update with no changed fields", ErrUnsupported)
	}
	where, whereArgs, err := g.pkWhere(entity, rec, n)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		g.dialect.Quote(entity.Table), strings.Join(sets, ", "), where)
	if g.dialect.Returning() {
		sql += " RETURNING *"
	}
	return &Query{SQL: sql, Args: append(args, whereArgs...)}, nil
}

// Delete generates a DELETE keyed by the primary key.
func (g *Generator) Delete(entity *schema.EntityType, rec schema.Record) (*Query, error) {
	where, args, err := g.pkWhere(entity, rec, 0)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", g.dialect.Quote(entity.Table), where)
	return &Query{SQL: sql, Args: args}, nil
}

// Get generates a primary-key lookup.
func (g *Generator) Get(entity *schema.EntityType, id interface{}) (*Query, error) {
	pk := entity.PK()
	if len(pk) != 1 {
		return nil, fmt.Errorf("%w: get on composite primary key", ErrUnsupported)
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		g.dialect.Quote(entity.Table), g.dialect.Quote(pk[0]), g.dialect.Placeholder(1))
	return &Query{SQL: sql, Args: []interface{}{id}}, nil
}

func (g *Generator) pkWhere(entity *schema.EntityType, rec schema.Record, argOffset int) (string, []interface{}, error) {
	var conds []string
	var args []interface{}
	for i, key := range entity.PK() {
		v, ok := rec[key]
		if !ok || v == nil {
			return "", nil, fmt.Errorf("%w: record has no %s value", ErrUnsupported, key)
		}
		conds = append(conds, fmt.Sprintf("%s = %s", g.dialect.Quote(key), g.dialect.Placeholder(argOffset+i+1)))
		args = append(args, v)
	}
	return strings.Join(conds, " AND "), args, nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
