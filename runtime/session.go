// Package runtime executes finished query plans against a repository.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainq-dev/chainq/query/expr"
	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/runtime/repo"
	"github.com/chainq-dev/chainq/schema"
)

// ErrNotTerminal is returned when Execute is given a plan that has no
// terminal operation.
var ErrNotTerminal = errors.New("plan has no terminal operation")

// GroupRow pairs one group key with its aggregate values.
type GroupRow struct {
	Key    interface{}
	Values interface{}
}

// Session ties a schema registry to a repository and materializes plans.
type Session struct {
	Registry  *schema.Registry
	Repo      repo.Repo
	Namespace string
}

// NewSession creates a session. A nil registry falls back to the process
// default.
func NewSession(r repo.Repo, registry *schema.Registry) *Session {
	if registry == nil {
		registry = schema.DefaultRegistry()
	}
	return &Session{Registry: registry, Repo: r}
}

// Close releases the underlying repository.
func (s *Session) Close() error {
	if s.Repo == nil {
		return nil
	}
	return s.Repo.Close()
}

func (s *Session) resolve(name string) (*schema.EntityType, error) {
	return s.Registry.Resolve(name, schema.ResolveOptions{Namespace: s.Namespace})
}

// Execute materializes a finished plan. The result shape depends on the
// terminal: a record, a record slice, a count, a boolean, aggregate rows,
// or a stream channel.
func (s *Session) Execute(ctx context.Context, p *plan.Plan) (interface{}, error) {
	if !p.Finished() {
		return nil, ErrNotTerminal
	}
	entity, err := s.resolve(p.Source)
	if err != nil {
		return nil, err
	}
	t := p.Terminal
	switch t.Mode {
	case plan.ModeNew:
		return s.executeNew(entity, t)
	case plan.ModeGet:
		return s.executeGet(ctx, entity, t)
	case plan.ModeAll:
		return s.executeAll(ctx, entity, p)
	case plan.ModeOne:
		rec, err := s.Repo.One(ctx, entity, p)
		if err != nil {
			return nil, err
		}
		if rec == nil && t.Bang {
			return nil, fmt.Errorf("%w: %s", repo.ErrNotFound, entity.Name)
		}
		if rec == nil {
			return nil, nil
		}
		return rec, nil
	case plan.ModeCount:
		return s.Repo.Count(ctx, entity, p)
	case plan.ModeExists:
		return s.Repo.Exists(ctx, entity, p)
	case plan.ModeAggr:
		return s.executeAggr(ctx, entity, p)
	case plan.ModeStream:
		return s.Repo.Stream(ctx, entity, p)
	default:
		return nil, fmt.Errorf("%w: terminal %s", plan.ErrUnsupportedOp, t.Mode)
	}
}

// executeNew builds an in-memory instance without touching storage.
func (s *Session) executeNew(entity *schema.EntityType, t *plan.Terminal) (schema.Record, error) {
	params := schema.Record{}
	if len(t.Args) == 1 {
		v, err := evalNode(t.Args[0])
		if err != nil {
			return nil, err
		}
		rec, ok := v.(schema.Record)
		if !ok {
			return nil, fmt.Errorf("%w: new params must be a map", plan.ErrInvalidArgument)
		}
		params = rec
	}
	return entity.New(params), nil
}

func (s *Session) executeGet(ctx context.Context, entity *schema.EntityType, t *plan.Terminal) (schema.Record, error) {
	id, err := evalNode(t.Args[0])
	if err != nil {
		return nil, err
	}
	rec, err := s.Repo.Get(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if rec == nil && t.Bang {
		return nil, fmt.Errorf("%w: %s %v", repo.ErrNotFound, entity.Name, id)
	}
	if rec == nil {
		return nil, nil
	}
	return rec, nil
}

func (s *Session) executeAll(ctx context.Context, entity *schema.EntityType, p *plan.Plan) ([]schema.Record, error) {
	recs, err := s.Repo.All(ctx, entity, p)
	if err != nil {
		return nil, err
	}
	if p.Terminal.ReverseResult {
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
	}
	return recs, nil
}

// executeAggr shapes aggregate rows. Without grouping the single projected
// row is the result: a scalar for one aggregate, a value tuple for several.
// With grouping each row is split into its key columns and aggregate
// columns.
func (s *Session) executeAggr(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (interface{}, error) {
	rows, err := s.Repo.Aggregate(ctx, entity, p)
	if err != nil {
		return nil, err
	}
	if len(p.GroupBy) == 0 {
		if len(rows) == 0 {
			return nil, nil
		}
		return collapse(rows[0]), nil
	}
	nkeys := len(p.GroupBy)
	out := make([]GroupRow, 0, len(rows))
	for _, row := range rows {
		if len(row) < nkeys {
			return nil, fmt.Errorf("aggregate row has %d columns, want at least %d", len(row), nkeys)
		}
		out = append(out, GroupRow{
			Key:    collapse(row[:nkeys]),
			Values: collapse(row[nkeys:]),
		})
	}
	return out, nil
}

// collapse unwraps a single-element value list to the value itself.
func collapse(vals []interface{}) interface{} {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}

// Save inserts records whose primary key is unset and updates the rest.
func (s *Session) Save(ctx context.Context, entityName string, rec schema.Record) (schema.Record, error) {
	entity, err := s.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if pkSet(entity, rec) {
		return s.Repo.Update(ctx, entity, rec)
	}
	return s.Repo.Insert(ctx, entity, rec)
}

// Insert persists a new record after changeset validation.
func (s *Session) Insert(ctx context.Context, entityName string, rec schema.Record) (schema.Record, error) {
	entity, err := s.resolve(entityName)
	if err != nil {
		return nil, err
	}
	return s.Repo.Insert(ctx, entity, rec)
}

// Update persists changes to an existing record, keyed by primary key.
func (s *Session) Update(ctx context.Context, entityName string, rec schema.Record) (schema.Record, error) {
	entity, err := s.resolve(entityName)
	if err != nil {
		return nil, err
	}
	return s.Repo.Update(ctx, entity, rec)
}

// Delete removes a record by primary key.
func (s *Session) Delete(ctx context.Context, entityName string, rec schema.Record) error {
	entity, err := s.resolve(entityName)
	if err != nil {
		return err
	}
	return s.Repo.Delete(ctx, entity, rec)
}

func pkSet(entity *schema.EntityType, rec schema.Record) bool {
	for _, key := range entity.PK() {
		v, ok := rec[key]
		if !ok || v == nil {
			return false
		}
	}
	return true
}

// evalNode reduces a value-position expression node to a Go value. Only
// literals, pinned values and map/list/tuple composites of them have a
// value form.
func evalNode(n expr.Node) (interface{}, error) {
	switch v := n.(type) {
	case *expr.Literal:
		return v.Value, nil
	case *expr.Pin:
		return v.Value, nil
	case *expr.Atom:
		return v.Name, nil
	case *expr.Map:
		rec := make(schema.Record, len(v.Entries))
		for _, e := range v.Entries {
			val, err := evalNode(e.Value)
			if err != nil {
				return nil, err
			}
			rec[e.Key] = val
		}
		return rec, nil
	case *expr.List:
		return evalItems(v.Items)
	case *expr.Tuple:
		return evalItems(v.Items)
	default:
		return nil, fmt.Errorf("%w: %s has no value form", plan.ErrInvalidArgument, n.String())
	}
}

func evalItems(items []expr.Node) (interface{}, error) {
	out := make([]interface{}, len(items))
	for i, item := range items {
		v, err := evalNode(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
