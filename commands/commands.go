// Package commands is the SQL dialect abstraction and the concrete index
// command executors: Executor is the sole coupling between the session core
// and a backend's data-manipulation statements, and IndexCommand is the
// opaque unit the session's journal drains into the open transaction at
// commit time.
package commands

import (
	"context"

	"github.com/andrewcoll/yessql"
)

// Executor is the SQL dialect abstraction. Implementations translate each
// method into their backend's statements, executed against the session's
// open transaction.
type Executor interface {
	// CreateDocument inserts a new Document row, assigning and populating
	// doc.Id. Executed inline by the session, never through the journal,
	// because the id must be known before mapping can proceed.
	CreateDocument(ctx context.Context, tx any, doc *yessql.Document) error
	// DeleteDocument removes a Document row. Always journaled.
	DeleteDocument(ctx context.Context, tx any, doc *yessql.Document) error

	// CreateIndex inserts a new index row of the given index type.
	CreateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs []int64) error
	// UpdateIndex updates an existing index row, applying the added/removed
	// document-id back-link deltas.
	UpdateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs, removedDocIDs []int64) error
	// DeleteMapIndex removes every MapIndex row back-linked to docID.
	DeleteMapIndex(ctx context.Context, tx any, indexType string, docID int64) error
	// DeleteReduceIndex removes a ReduceIndex row that a fold emptied.
	DeleteReduceIndex(ctx context.Context, tx any, indexType string, row any) error

	// FindDocument implements "select * from Document where Id = @Id",
	// returning nil, nil if no row matches.
	FindDocument(ctx context.Context, tx any, id int64) (*yessql.Document, error)
	// FindReduceRow implements
	// "select * from <IndexTypeName> where <GroupKeyColumnName> = @currentKey",
	// decoding the first matching row into out (a pointer).
	FindReduceRow(ctx context.Context, tx any, indexType, groupKeyColumn string, key any, out any) (bool, error)
	// ScanIndex implements "select * from <IndexTypeName>", decoding every row of indexType into a fresh
	// instance of sample's type. Used by package query to evaluate a CEL
	// predicate over an index's rows.
	ScanIndex(ctx context.Context, tx any, indexType string, sample any) ([]any, error)
}

// IndexCommand is one pending index mutation, opaque to the session; its
// sole concrete coupling to the SQL dialect is the Executor it was built
// with.
type IndexCommand interface {
	Execute(ctx context.Context, tx any) error
}

type createIndexCommand struct {
	exec        Executor
	indexType   string
	row         any
	addedDocIDs []int64
}

// NewCreateIndex returns a CreateIndexCommand.
func NewCreateIndex(exec Executor, indexType string, row any, addedDocIDs []int64) IndexCommand {
	return &createIndexCommand{exec, indexType, row, addedDocIDs}
}

func (c *createIndexCommand) Execute(ctx context.Context, tx any) error {
	return c.exec.CreateIndex(ctx, tx, c.indexType, c.row, c.addedDocIDs)
}

type updateIndexCommand struct {
	exec          Executor
	indexType     string
	row           any
	addedDocIDs   []int64
	removedDocIDs []int64
}

// NewUpdateIndex returns an UpdateIndexCommand.
func NewUpdateIndex(exec Executor, indexType string, row any, addedDocIDs, removedDocIDs []int64) IndexCommand {
	return &updateIndexCommand{exec, indexType, row, addedDocIDs, removedDocIDs}
}

func (c *updateIndexCommand) Execute(ctx context.Context, tx any) error {
	return c.exec.UpdateIndex(ctx, tx, c.indexType, c.row, c.addedDocIDs, c.removedDocIDs)
}

type deleteMapIndexCommand struct {
	exec      Executor
	indexType string
	docID     int64
}

// NewDeleteMapIndex returns a DeleteMapIndexCommand.
func NewDeleteMapIndex(exec Executor, indexType string, docID int64) IndexCommand {
	return &deleteMapIndexCommand{exec, indexType, docID}
}

func (c *deleteMapIndexCommand) Execute(ctx context.Context, tx any) error {
	return c.exec.DeleteMapIndex(ctx, tx, c.indexType, c.docID)
}

type deleteReduceIndexCommand struct {
	exec      Executor
	indexType string
	row       any
}

// NewDeleteReduceIndex returns a DeleteReduceIndexCommand.
func NewDeleteReduceIndex(exec Executor, indexType string, row any) IndexCommand {
	return &deleteReduceIndexCommand{exec, indexType, row}
}

func (c *deleteReduceIndexCommand) Execute(ctx context.Context, tx any) error {
	return c.exec.DeleteReduceIndex(ctx, tx, c.indexType, c.row)
}

type deleteDocumentCommand struct {
	exec Executor
	doc  *yessql.Document
}

// NewDeleteDocument returns a DeleteDocumentCommand.
func NewDeleteDocument(exec Executor, doc *yessql.Document) IndexCommand {
	return &deleteDocumentCommand{exec, doc}
}

func (c *deleteDocumentCommand) Execute(ctx context.Context, tx any) error {
	return c.exec.DeleteDocument(ctx, tx, c.doc)
}
