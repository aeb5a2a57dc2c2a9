// Package store declares the document (blob) storage and
// connection/transaction provider collaborators the session consumes.
package store

import (
	"context"

	"github.com/andrewcoll/yessql"
)

// DocumentStore is the document-storage collaborator: load/save/delete of
// opaque serialized entities keyed by document id.
type DocumentStore interface {
	// Load fetches the entity stored at id into out (a pointer), reporting
	// whether one was found.
	Load(ctx context.Context, id int64, out any) (bool, error)
	// Save persists entity at id, overwriting any previous value.
	Save(ctx context.Context, id int64, entity any) error
	// Delete removes the entity stored at id, if any.
	Delete(ctx context.Context, id int64) error
}

// LoadMany gives positional load_many<T>(ids) semantics on top
// of any DocumentStore, without requiring every implementation to
// special-case batching; implementations that can batch more efficiently
// are still reached through Load, one call per id.
func LoadMany[T any](ctx context.Context, s DocumentStore, ids []int64) ([]*T, []bool, error) {
	out := make([]*T, len(ids))
	found := make([]bool, len(ids))
	for i, id := range ids {
		var v T
		ok, err := s.Load(ctx, id, &v)
		if err != nil {
			return nil, nil, err
		}
		found[i] = ok
		if ok {
			out[i] = &v
		}
	}
	return out, found, nil
}

// Connection is a live backend connection, closed at Dispose time only when
// the owning ConnectionFactory reports its connections as disposable.
type Connection interface {
	Close() error
}

// Tx is an open transaction on a Connection.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ConnectionFactory is the connection/transaction provider collaborator.
type ConnectionFactory interface {
	// Disposable reports whether Connections this factory creates should be
	// closed by the session at dispose time; false for pooled connections.
	Disposable() bool
	// Connect opens (or reuses, for already-open pooled connections) a
	// Connection.
	Connect(ctx context.Context) (Connection, error)
	// Begin opens a transaction on conn at the requested isolation level.
	Begin(ctx context.Context, conn Connection, level yessql.IsolationLevel) (Tx, error)
}
