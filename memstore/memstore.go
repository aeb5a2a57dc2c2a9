// Package memstore is a dependency-free in-memory implementation of the
// store.DocumentStore and store.ConnectionFactory collaborators: a
// mutex-guarded map standing in for a real backend, useful for tests and
// demonstration. Connections from this factory are not disposable, since
// writes land straight into a shared map rather than a per-connection
// resource.
package memstore

import (
	"context"
	"sync"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/store"
)

// Store is an in-memory DocumentStore. The zero value is not usable; use
// New.
type Store struct {
	mu   sync.RWMutex
	rows map[int64][]byte
	enc  yessql.Marshaler
}

// New returns an empty in-memory document store.
func New() *Store {
	return &Store{
		rows: map[int64][]byte{},
		enc:  yessql.NewMarshaler(),
	}
}

func (s *Store) Load(ctx context.Context, id int64, out any) (bool, error) {
	s.mu.RLock()
	data, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := s.enc.Unmarshal(data, out); err != nil {
		return false, yessql.Backend(err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, id int64, entity any) error {
	data, err := s.enc.Marshal(entity)
	if err != nil {
		return yessql.Backend(err)
	}
	s.mu.Lock()
	s.rows[id] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	delete(s.rows, id)
	s.mu.Unlock()
	return nil
}

// connection is a no-op Connection; the in-memory store has nothing to
// close.
type connection struct{}

func (connection) Close() error { return nil }

// tx is a no-op transaction: writes to Store land immediately, so Commit and
// Rollback are both no-ops.
type tx struct{}

func (tx) Commit(ctx context.Context) error   { return nil }
func (tx) Rollback(ctx context.Context) error { return nil }

// ConnectionFactory is a store.ConnectionFactory over the in-memory Store.
// Every Connect call returns a fresh no-op connection; isolation level is
// accepted but has no effect since there is no concurrent backend to
// isolate from.
type ConnectionFactory struct{}

// NewConnectionFactory returns a ConnectionFactory for in-memory sessions.
func NewConnectionFactory() *ConnectionFactory {
	return &ConnectionFactory{}
}

func (*ConnectionFactory) Disposable() bool { return false }

func (*ConnectionFactory) Connect(ctx context.Context) (store.Connection, error) {
	return connection{}, nil
}

func (*ConnectionFactory) Begin(ctx context.Context, conn store.Connection, level yessql.IsolationLevel) (store.Tx, error) {
	return tx{}, nil
}
