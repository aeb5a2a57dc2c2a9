// Package session implements the document-oriented unit-of-work session:
// the identity map, change tracker, map/reduce pipeline, and command journal
// wired together around the DocumentStore,
// ConnectionFactory, and Executor collaborators.
package session

import (
	"context"
	"log/slog"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/commands"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/idaccessor"
	"github.com/andrewcoll/yessql/store"
)

// Session is the unit-of-work orchestrator. A Session is not
// safe for concurrent use.
type Session struct {
	opts yessql.SessionOptions

	connFactory store.ConnectionFactory
	docStore    store.DocumentStore
	executor    commands.Executor
	marshaler   yessql.Marshaler

	identity *identityMap
	tracker  *changeTracker
	journal  *journal
	pipeline *mapReducePipeline

	conn     store.Connection
	tx       store.Tx
	txOpened bool
	canceled bool
	disposed bool
}

// Option configures a Session constructed by New.
type Option func(*Session)

// WithOptions overrides the session's default options.
func WithOptions(opts yessql.SessionOptions) Option {
	return func(s *Session) { s.opts = opts }
}

// WithMarshaler overrides the session's entity-equality marshaler.
func WithMarshaler(m yessql.Marshaler) Option {
	return func(s *Session) { s.marshaler = m }
}

// New constructs a Session around its storage, connection, and index-command
// collaborators.
func New(connFactory store.ConnectionFactory, docStore store.DocumentStore, executor commands.Executor, registry *descriptor.Registry, opts ...Option) *Session {
	s := &Session{
		opts:        yessql.DefaultSessionOptions(),
		connFactory: connFactory,
		docStore:    docStore,
		executor:    executor,
		marshaler:   yessql.NewMarshaler(),
		identity:    newIdentityMap(),
		tracker:     newChangeTracker(),
		journal:     newJournal(),
		pipeline:    newMapReducePipeline(registry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stages entity for insert or update. A nil entity, a
// *yessql.Document, or a yessql.IndexRow is rejected: those are internal
// types, never session-managed entities.
func (s *Session) Save(entity any) error {
	if entity == nil {
		return yessql.InvalidArgument("entity must not be nil")
	}
	if yessql.IsDocument(entity) || yessql.IsIndexRow(entity) {
		return yessql.InvalidArgument("%T is not a session-managed entity", entity)
	}
	if s.opts.TrackChanges && s.identity.Has(entity) {
		return nil // already tracked, a duplicate Save is a no-op.
	}
	s.tracker.trackSave(entity)
	return nil
}

// Delete stages entity for removal. entity must already carry
// an id.
func (s *Session) Delete(entity any) error {
	if entity == nil {
		return yessql.InvalidArgument("entity must not be nil")
	}
	if !idaccessor.HasID(entity) {
		return yessql.InvalidOperation("%T has no Id field to delete by", entity)
	}
	s.tracker.trackDelete(entity)
	return nil
}

// SetIsolationLevel changes the isolation level for the remainder of the
// session. Rejected once a transaction has been opened: the backend's
// BEGIN statement has already committed to a level.
func (s *Session) SetIsolationLevel(level yessql.IsolationLevel) error {
	if s.txOpened {
		return yessql.InvalidOperation("cannot change isolation level after the transaction has opened")
	}
	s.opts.IsolationLevel = level
	return nil
}

// Cancel marks the session for rollback at Dispose, discarding any pending
// work.
func (s *Session) Cancel() {
	s.canceled = true
}

func (s *Session) ensureTransaction(ctx context.Context) error {
	if s.txOpened {
		return nil
	}
	conn, err := s.connFactory.Connect(ctx)
	if err != nil {
		return yessql.Backend(err)
	}
	tx, err := s.connFactory.Begin(ctx, conn, s.opts.IsolationLevel)
	if err != nil {
		return yessql.Backend(err)
	}
	s.conn = conn
	s.tx = tx
	s.txOpened = true
	return nil
}

// Commit flushes all pending work: existing tracked entities are diffed and
// persisted, pending saves and deletes are applied, the map/reduce pipeline
// is finalized, and the resulting index commands are drained into the open
// transaction. Commit may be called more
// than once in a session's lifetime; each call only flushes work staged
// since the previous one.
func (s *Session) Commit(ctx context.Context) error {
	if s.disposed {
		return yessql.InvalidOperation("session is disposed")
	}
	if err := s.ensureTransaction(ctx); err != nil {
		return err
	}

	deleted := map[any]bool{}
	for _, e := range s.tracker.pendingDeletes {
		deleted[e] = true
	}

	for _, entry := range s.identity.GetAll() {
		if deleted[entry.Entity] {
			continue
		}
		if err := s.processExisting(ctx, entry.ID, entry.Entity); err != nil {
			return err
		}
	}

	for _, entity := range s.tracker.pendingSaves {
		if s.identity.Has(entity) {
			continue
		}
		if err := s.processNew(ctx, entity); err != nil {
			return err
		}
	}
	s.tracker.clearSaves()

	for _, entity := range s.tracker.pendingDeletes {
		if err := s.processDelete(ctx, entity); err != nil {
			return err
		}
	}
	s.tracker.clearDeletes()

	if err := s.pipeline.finalize(ctx, s.tx, s.journal, s.executor); err != nil {
		return err
	}

	if err := s.journal.drain(ctx, s.tx); err != nil {
		return err
	}

	slog.Debug("yessql: session committed")
	return nil
}

// QueryHandle exposes the session's open transaction and executor to a
// query layer built on top of the session.
type QueryHandle struct {
	Executor commands.Executor
	Tx       any
}

// Query flushes pending work via Commit and returns a handle a query layer
// can read consistently within the same transaction.
func (s *Session) Query(ctx context.Context) (*QueryHandle, error) {
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return &QueryHandle{Executor: s.executor, Tx: s.tx}, nil
}

// Dispose ends the session. If the session was canceled,
// the open transaction is rolled back; otherwise any work staged since the
// last Commit is flushed and the transaction is committed. Commit errors
// during Dispose propagate without an implicit rollback, leaving the caller
// to decide how to recover.
func (s *Session) Dispose(ctx context.Context) error {
	if s.disposed {
		return nil
	}

	if !s.txOpened {
		s.disposed = true
		return nil
	}

	var err error
	if s.canceled {
		err = s.tx.Rollback(ctx)
	} else {
		if cerr := s.Commit(ctx); cerr != nil {
			return cerr
		}
		err = s.tx.Commit(ctx)
	}
	s.disposed = true

	if s.connFactory.Disposable() {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return yessql.Backend(err)
}
