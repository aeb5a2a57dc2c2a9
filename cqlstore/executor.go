package cqlstore

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/gocql/gocql"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/idaccessor"
)

// Executor implements commands.Executor against three generic Cassandra
// tables:
//
//	document(id bigint primary key, type text)
//	index_row(index_type text, id bigint, data text,
//	          primary key (index_type, id))
//	index_link(index_type text, row_id bigint, doc_id bigint,
//	           primary key (index_type, row_id, doc_id))
//
// index_row.data holds the JSON-marshaled row. commands.Executor's
// CreateIndex/UpdateIndex are not told which field is the reduce group key
// (only FindReduceRow is), so FindReduceRow resolves a group by scanning an
// index type's rows and comparing the decoded group-key field, the same
// strategy memstore.Executor uses in-process.
type Executor struct {
	session   *gocql.Session
	keyspace  string
	marshaler yessql.Marshaler
}

// NewExecutor returns an Executor issuing statements against session in
// keyspace.
func NewExecutor(session *gocql.Session, keyspace string) *Executor {
	return &Executor{session: session, keyspace: keyspace, marshaler: yessql.NewMarshaler()}
}

func (e *Executor) batchOf(v any) (*gocql.Batch, error) {
	t, ok := v.(*tx)
	if !ok {
		return nil, yessql.InvalidOperation("cqlstore: unexpected transaction type %T", v)
	}
	return t.batch, nil
}

// CreateDocument executes inline, outside the journal, because the caller
// needs doc.Id before mapping can proceed.
// Cassandra has no auto-increment primary key, so the id is a monotonic
// nanosecond timestamp; a production deployment would instead mint ids from
// a dedicated sequencing service.
func (e *Executor) CreateDocument(ctx context.Context, tx any, doc *yessql.Document) error {
	doc.Id = time.Now().UnixNano()
	q := fmt.Sprintf("INSERT INTO %s.document (id, type) VALUES (?, ?)", e.keyspace)
	return e.session.Query(q, doc.Id, doc.Type).WithContext(ctx).Exec()
}

func (e *Executor) DeleteDocument(ctx context.Context, tx any, doc *yessql.Document) error {
	b, err := e.batchOf(tx)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s.document WHERE id = ?", e.keyspace)
	b.Query(q, doc.Id)
	return nil
}

func (e *Executor) FindDocument(ctx context.Context, tx any, id int64) (*yessql.Document, error) {
	q := fmt.Sprintf("SELECT id, type FROM %s.document WHERE id = ?", e.keyspace)
	var doc yessql.Document
	if err := e.session.Query(q, id).WithContext(ctx).Scan(&doc.Id, &doc.Type); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (e *Executor) CreateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs []int64) error {
	b, err := e.batchOf(tx)
	if err != nil {
		return err
	}
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	if id == 0 {
		id = time.Now().UnixNano()
		if err := idaccessor.SetID(row, id); err != nil {
			return err
		}
	}
	if err := e.appendRowWrite(b, indexType, id, row); err != nil {
		return err
	}
	e.appendLinkWrites(b, indexType, id, addedDocIDs, nil)
	return nil
}

func (e *Executor) UpdateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs, removedDocIDs []int64) error {
	b, err := e.batchOf(tx)
	if err != nil {
		return err
	}
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	if err := e.appendRowWrite(b, indexType, id, row); err != nil {
		return err
	}
	e.appendLinkWrites(b, indexType, id, addedDocIDs, removedDocIDs)
	return nil
}

func (e *Executor) DeleteMapIndex(ctx context.Context, tx any, indexType string, docID int64) error {
	b, err := e.batchOf(tx)
	if err != nil {
		return err
	}
	iter := e.session.Query(
		fmt.Sprintf("SELECT row_id FROM %s.index_link WHERE index_type = ? AND doc_id = ?", e.keyspace),
		indexType, docID).WithContext(ctx).Iter()
	var rowID int64
	for iter.Scan(&rowID) {
		b.Query(fmt.Sprintf("DELETE FROM %s.index_link WHERE index_type = ? AND row_id = ? AND doc_id = ?", e.keyspace), indexType, rowID, docID)
		b.Query(fmt.Sprintf("DELETE FROM %s.index_row WHERE index_type = ? AND id = ?", e.keyspace), indexType, rowID)
	}
	return iter.Close()
}

func (e *Executor) DeleteReduceIndex(ctx context.Context, tx any, indexType string, row any) error {
	b, err := e.batchOf(tx)
	if err != nil {
		return err
	}
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	b.Query(fmt.Sprintf("DELETE FROM %s.index_row WHERE index_type = ? AND id = ?", e.keyspace), indexType, id)
	b.Query(fmt.Sprintf("DELETE FROM %s.index_link WHERE index_type = ? AND row_id = ?", e.keyspace), indexType, id)
	return nil
}

func (e *Executor) FindReduceRow(ctx context.Context, tx any, indexType, groupKeyColumn string, key any, out any) (bool, error) {
	q := fmt.Sprintf("SELECT data FROM %s.index_row WHERE index_type = ?", e.keyspace)
	iter := e.session.Query(q, indexType).WithContext(ctx).Iter()
	defer iter.Close()

	outType := reflect.TypeOf(out).Elem()
	var data string
	for iter.Scan(&data) {
		candidate := reflect.New(outType)
		if err := e.marshaler.Unmarshal([]byte(data), candidate.Interface()); err != nil {
			return false, err
		}
		f := candidate.Elem().FieldByName(groupKeyColumn)
		if !f.IsValid() {
			continue
		}
		if fmt.Sprint(f.Interface()) == fmt.Sprint(key) {
			reflect.ValueOf(out).Elem().Set(candidate.Elem())
			return true, nil
		}
	}
	return false, iter.Close()
}

func (e *Executor) ScanIndex(ctx context.Context, tx any, indexType string, sample any) ([]any, error) {
	q := fmt.Sprintf("SELECT data FROM %s.index_row WHERE index_type = ?", e.keyspace)
	iter := e.session.Query(q, indexType).WithContext(ctx).Iter()
	defer iter.Close()

	sampleType := reflect.TypeOf(sample)
	for sampleType.Kind() == reflect.Ptr {
		sampleType = sampleType.Elem()
	}

	var out []any
	var data string
	for iter.Scan(&data) {
		v := reflect.New(sampleType)
		if err := e.marshaler.Unmarshal([]byte(data), v.Interface()); err != nil {
			return nil, err
		}
		out = append(out, v.Interface())
	}
	return out, iter.Close()
}

func (e *Executor) appendRowWrite(b *gocql.Batch, indexType string, id int64, row any) error {
	data, err := e.marshaler.Marshal(row)
	if err != nil {
		return err
	}
	b.Query(fmt.Sprintf("INSERT INTO %s.index_row (index_type, id, data) VALUES (?, ?, ?)", e.keyspace),
		indexType, id, string(data))
	return nil
}

func (e *Executor) appendLinkWrites(b *gocql.Batch, indexType string, rowID int64, added, removed []int64) {
	for _, docID := range added {
		b.Query(fmt.Sprintf("INSERT INTO %s.index_link (index_type, row_id, doc_id) VALUES (?, ?, ?)", e.keyspace), indexType, rowID, docID)
	}
	for _, docID := range removed {
		b.Query(fmt.Sprintf("DELETE FROM %s.index_link WHERE index_type = ? AND row_id = ? AND doc_id = ?", e.keyspace), indexType, rowID, docID)
	}
}
