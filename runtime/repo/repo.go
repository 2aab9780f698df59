// Package repo implements the persistence runtime that executes finished
// query plans and record operations.
package repo

import (
	"context"
	"errors"

	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/schema"
)

var (
	// ErrNotFound is returned by raising lookups on a missing primary key.
	ErrNotFound = errors.New("record not found")

	// ErrMultipleResults is returned when a single-result fetch matches
	// more than one row. It is never suppressed.
	ErrMultipleResults = errors.New("expected at most one result")

	// ErrStaleRecord is returned when an update or delete matches no row.
	ErrStaleRecord = errors.New("record does not exist")
)

// StreamItem is one element of a streamed result.
type StreamItem struct {
	Record schema.Record
	Err    error
}

// Repo is the persistence runtime boundary. Implementations may block on
// I/O; cancellation and timeouts are the caller's concern via ctx.
type Repo interface {
	Insert(ctx context.Context, entity *schema.EntityType, rec schema.Record) (schema.Record, error)
	Update(ctx context.Context, entity *schema.EntityType, rec schema.Record) (schema.Record, error)
	Delete(ctx context.Context, entity *schema.EntityType, rec schema.Record) error

	// Get fetches by primary key; a missing row yields (nil, nil).
	Get(ctx context.Context, entity *schema.EntityType, id interface{}) (schema.Record, error)

	All(ctx context.Context, entity *schema.EntityType, p *plan.Plan) ([]schema.Record, error)

	// One fetches at most one row: (nil, nil) when absent,
	// ErrMultipleResults when more than one row matches.
	One(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (schema.Record, error)

	// Aggregate fetches the plan's projection as ordered value rows.
	Aggregate(ctx context.Context, entity *schema.EntityType, p *plan.Plan) ([][]interface{}, error)

	Count(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (int64, error)
	Exists(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (bool, error)

	// Stream sends matching records on the returned channel until the
	// rows are exhausted or ctx is done. The channel is always closed.
	Stream(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (<-chan StreamItem, error)

	Close() error
}
