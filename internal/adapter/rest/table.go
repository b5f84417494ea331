package rest

import (
	"context"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

// Table binds a Client to one table and its unique key, satisfying the
// pipeline's loader and verifier contracts for records of type T.
type Table[T any] struct {
	client *Client
	name   string
	key    string
}

// NewTable creates a Table. key is the column the store upserts on and the
// column selected by count queries.
func NewTable[T any](client *Client, name, key string) *Table[T] {
	return &Table[T]{client: client, name: name, key: key}
}

// LoadBatch posts records as one upsert request.
func (t *Table[T]) LoadBatch(ctx context.Context, records []T) (domain.Outcome, error) {
	return t.client.Insert(ctx, t.name, t.key, records)
}

// Count returns the number of rows matching filter.
func (t *Table[T]) Count(ctx context.Context, filter domain.Filter) (int64, error) {
	return t.client.Count(ctx, t.name, t.key, filter)
}
