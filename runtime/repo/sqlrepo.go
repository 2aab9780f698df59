package repo

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/chainq-dev/chainq/internal/debug"
	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/runtime/sqlgen"
	"github.com/chainq-dev/chainq/schema"
)

// SQLRepo executes plans against a database/sql connection.
type SQLRepo struct {
	db       *sql.DB
	provider string
	gen      *sqlgen.Generator
}

// Open connects to a database and returns a repo for it.
func Open(provider, dsn string, registry *schema.Registry) (*SQLRepo, error) {
	driver := driverName(provider)
	if driver == "" {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLRepo(db, provider, registry), nil
}

// NewSQLRepo wraps an existing database connection.
func NewSQLRepo(db *sql.DB, provider string, registry *schema.Registry) *SQLRepo {
	return &SQLRepo{
		db:       db,
		provider: provider,
		gen:      sqlgen.NewGenerator(provider, registry),
	}
}

// driverName maps provider names to Go database driver names.
func driverName(provider string) string {
	switch provider {
	case "postgresql", "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return ""
	}
}

// SetNamespace sets the namespace used to resolve entity names found
// inside plans (join targets, set-operation sources).
func (r *SQLRepo) SetNamespace(ns string) { r.gen.SetNamespace(ns) }

// DB returns the underlying database connection.
func (r *SQLRepo) DB() *sql.DB { return r.db }

// Ping verifies the connection.
func (r *SQLRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Close closes the database connection.
func (r *SQLRepo) Close() error { return r.db.Close() }

func (r *SQLRepo) Insert(ctx context.Context, entity *schema.EntityType, rec schema.Record) (schema.Record, error) {
	if verr := entity.Changeset(rec); verr != nil {
		return nil, verr
	}
	q := r.gen.Insert(entity, rec)
	debug.Debug("insert", "sql", q.SQL)
	if r.gen.Dialect().Returning() {
		return r.queryRow(ctx, entity, q)
	}
	res, err := r.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	out := make(schema.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	pk := entity.PK()
	if len(pk) == 1 {
		if v, ok := out[pk[0]]; !ok || v == nil {
			if id, err := res.LastInsertId(); err == nil {
				out[pk[0]] = id
			}
		}
	}
	return out, nil
}

func (r *SQLRepo) Update(ctx context.Context, entity *schema.EntityType, rec schema.Record) (schema.Record, error) {
	if verr := entity.Changeset(rec); verr != nil {
		return nil, verr
	}
	q, err := r.gen.Update(entity, rec)
	if err != nil {
		return nil, err
	}
	debug.Debug("update", "sql", q.SQL)
	if r.gen.Dialect().Returning() {
		row, err := r.queryRow(ctx, entity, q)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("%w: %s", ErrStaleRecord, entity.Name)
		}
		return row, nil
	}
	res, err := r.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStaleRecord, entity.Name)
	}
	return rec, nil
}

func (r *SQLRepo) Delete(ctx context.Context, entity *schema.EntityType, rec schema.Record) error {
	q, err := r.gen.Delete(entity, rec)
	if err != nil {
		return err
	}
	debug.Debug("delete", "sql", q.SQL)
	res, err := r.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrStaleRecord, entity.Name)
	}
	return nil
}

func (r *SQLRepo) Get(ctx context.Context, entity *schema.EntityType, id interface{}) (schema.Record, error) {
	q, err := r.gen.Get(entity, id)
	if err != nil {
		return nil, err
	}
	debug.Debug("get", "sql", q.SQL)
	recs, err := r.queryRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (r *SQLRepo) All(ctx context.Context, entity *schema.EntityType, p *plan.Plan) ([]schema.Record, error) {
	q, err := r.gen.Select(entity, p)
	if err != nil {
		return nil, err
	}
	debug.Debug("all", "sql", q.SQL)
	return r.queryRecords(ctx, q)
}

func (r *SQLRepo) One(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (schema.Record, error) {
	q, err := r.gen.Select(entity, p)
	if err != nil {
		return nil, err
	}
	debug.Debug("one", "sql", q.SQL)
	recs, err := r.queryRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, nil
	case 1:
		return recs[0], nil
	default:
		return nil, fmt.Errorf("%w: got %d rows", ErrMultipleResults, len(recs))
	}
}

func (r *SQLRepo) Aggregate(ctx context.Context, entity *schema.EntityType, p *plan.Plan) ([][]interface{}, error) {
	q, err := r.gen.Select(entity, p)
	if err != nil {
		return nil, err
	}
	debug.Debug("aggregate", "sql", q.SQL)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	var out [][]interface{}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Count(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (int64, error) {
	q, err := r.gen.Count(entity, p)
	if err != nil {
		return 0, err
	}
	debug.Debug("count", "sql", q.SQL)
	var n int64
	if err := r.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

func (r *SQLRepo) Exists(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (bool, error) {
	q, err := r.gen.Exists(entity, p)
	if err != nil {
		return false, err
	}
	debug.Debug("exists", "sql", q.SQL)
	var exists bool
	if err := r.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return exists, nil
}

func (r *SQLRepo) Stream(ctx context.Context, entity *schema.EntityType, p *plan.Plan) (<-chan StreamItem, error) {
	q, err := r.gen.Select(entity, p)
	if err != nil {
		return nil, err
	}
	debug.Debug("stream", "sql", q.SQL)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}

	ch := make(chan StreamItem)
	go func() {
		defer close(ch)
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows, cols)
			select {
			case ch <- StreamItem{Record: rec, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			select {
			case ch <- StreamItem{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func (r *SQLRepo) queryRecords(ctx context.Context, q *sqlgen.Query) ([]schema.Record, error) {
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []schema.Record
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLRepo) queryRow(ctx context.Context, entity *schema.EntityType, q *sqlgen.Query) (schema.Record, error) {
	recs, err := r.queryRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// scanRecord scans the current row into a record keyed by column name.
func scanRecord(rows *sql.Rows, cols []string) (schema.Record, error) {
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	rec := make(schema.Record, len(cols))
	for i, col := range cols {
		rec[col] = normalize(values[i])
	}
	return rec, nil
}

// normalize converts driver byte slices to strings.
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
