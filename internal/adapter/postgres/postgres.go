// Package postgres upserts record batches straight into PostgreSQL, for
// running the seeder against a database without a PostgREST front end.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

// Pool is the subset of *pgxpool.Pool used by Table.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect creates a connection pool and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	// One batch is in flight at a time.
	poolConfig.MaxConns = 2
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second
	poolConfig.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Table upserts records of type T into one table. Columns are the json tags
// of T, so the database sees the same shape the REST sink sends.
type Table[T any] struct {
	pool      Pool
	name      string
	upsertSQL string
}

// NewTable builds the upsert statement for T. key must be one of T's json
// columns and carry a unique constraint in the database.
func NewTable[T any](pool Pool, name, key string) (*Table[T], error) {
	columns, err := jsonColumns(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if !slices.Contains(columns, key) {
		return nil, fmt.Errorf("postgres: key %q is not a column of %s", key, name)
	}
	return &Table[T]{
		pool:      pool,
		name:      name,
		upsertSQL: buildUpsert(name, key, columns),
	}, nil
}

// LoadBatch upserts records in a single statement. Statement errors are
// reported as *domain.RejectionError with the SQLSTATE code; connection
// faults as *domain.TransportError.
func (t *Table[T]) LoadBatch(ctx context.Context, records []T) (domain.Outcome, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}

	if _, err := t.pool.Exec(ctx, t.upsertSQL, string(payload)); err != nil {
		return 0, classify(err)
	}
	return domain.OutcomeInserted, nil
}

// Count returns the number of rows matching filter.
func (t *Table[T]) Count(ctx context.Context, filter domain.Filter) (int64, error) {
	return Count(ctx, t.pool, t.name, filter)
}

// Count returns the number of rows in table matching filter. Errors are
// *domain.VerificationError.
func Count(ctx context.Context, pool Pool, table string, filter domain.Filter) (int64, error) {
	query := "SELECT count(*) FROM " + sanitizeTable(table)
	var args []any
	if !filter.IsZero() {
		query += " WHERE " + pgx.Identifier{filter.Column}.Sanitize() + " = $1"
		args = append(args, filter.Value)
	}

	var n int64
	if err := pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, &domain.VerificationError{Err: err}
	}
	return n, nil
}

func buildUpsert(table, key string, columns []string) string {
	colList := quoteAndJoin(columns)

	var setClauses []string
	for _, col := range columns {
		if col == key {
			continue
		}
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(NULL::%s, $1::json) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(table),
		colList,
		colList,
		sanitizeTable(table),
		pgx.Identifier{key}.Sanitize(),
		strings.Join(setClauses, ", "),
	)
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &domain.RejectionError{
			Code: pgErr.Code,
			Body: domain.Truncate(pgErr.Message, domain.DiagnosticLimit),
		}
	}
	return &domain.TransportError{Err: err}
}

// jsonColumns lists the json field names of struct type t in field order.
func jsonColumns(t reflect.Type) ([]string, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("postgres: record type %s is not a struct", t)
	}
	var cols []string
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		cols = append(cols, name)
	}
	return cols, nil
}

// sanitizeTable handles schema-qualified table names like "public.storms".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
