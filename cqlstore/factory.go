package cqlstore

import (
	"context"

	"github.com/gocql/gocql"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/store"
)

// ConnectionFactory is a store.ConnectionFactory backed by a single shared
// gocql.Session, a process-wide connection singleton rather than a fresh
// dial per session.
type ConnectionFactory struct {
	session *gocql.Session
}

// NewConnectionFactory wraps an already-open gocql.Session.
func NewConnectionFactory(session *gocql.Session) *ConnectionFactory {
	return &ConnectionFactory{session: session}
}

func (*ConnectionFactory) Disposable() bool { return false }

type connection struct {
	session *gocql.Session
}

func (connection) Close() error { return nil }

func (f *ConnectionFactory) Connect(ctx context.Context) (store.Connection, error) {
	return connection{session: f.session}, nil
}

// tx is a logged gocql batch: index commands append statements to it as the
// session's journal drains, and Commit executes the whole batch at once.
// Cassandra has no true rollback; Rollback simply discards the unexecuted
// batch.
type tx struct {
	session *gocql.Session
	batch   *gocql.Batch
}

func (t *tx) Commit(ctx context.Context) error {
	if t.batch.Size() == 0 {
		return nil
	}
	return t.session.ExecuteBatch(t.batch.WithContext(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	t.batch = nil
	return nil
}

func (f *ConnectionFactory) Begin(ctx context.Context, conn store.Connection, level yessql.IsolationLevel) (store.Tx, error) {
	c, ok := conn.(connection)
	if !ok {
		return nil, yessql.InvalidOperation("cqlstore: unexpected connection type %T", conn)
	}
	batch := c.session.NewBatch(gocql.LoggedBatch)
	batch.Cons = consistencyForIsolation(level)
	return &tx{session: c.session, batch: batch}, nil
}
