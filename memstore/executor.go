package memstore

import (
	"context"
	"reflect"
	"sync"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/idaccessor"
)

// Executor is an in-memory commands.Executor: every SQL-dialect operation
// becomes a map operation instead of a CQL statement. Intended for tests
// and demonstration alongside Store and ConnectionFactory.
type Executor struct {
	mu        sync.Mutex
	nextDocID int64
	docs      map[int64]*yessql.Document
	// rows holds decoded index rows per index type name, keyed by row id.
	rows map[string]map[int64]any
	// links holds the set of document ids currently back-linked to each
	// index row, keyed by index type name then row id.
	links map[string]map[int64]map[int64]bool
}

// NewExecutor returns an empty in-memory Executor.
func NewExecutor() *Executor {
	return &Executor{
		docs:  map[int64]*yessql.Document{},
		rows:  map[string]map[int64]any{},
		links: map[string]map[int64]map[int64]bool{},
	}
}

func (e *Executor) CreateDocument(ctx context.Context, tx any, doc *yessql.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextDocID++
	doc.Id = e.nextDocID
	cp := *doc
	e.docs[doc.Id] = &cp
	return nil
}

func (e *Executor) DeleteDocument(ctx context.Context, tx any, doc *yessql.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, doc.Id)
	return nil
}

func (e *Executor) FindDocument(ctx context.Context, tx any, id int64) (*yessql.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (e *Executor) CreateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	if id == 0 {
		id = e.nextRowID(indexType)
		if err := idaccessor.SetID(row, id); err != nil {
			return err
		}
	}
	e.store(indexType, id, row)
	e.link(indexType, id, addedDocIDs, nil)
	return nil
}

func (e *Executor) UpdateIndex(ctx context.Context, tx any, indexType string, row any, addedDocIDs, removedDocIDs []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	e.store(indexType, id, row)
	e.link(indexType, id, addedDocIDs, removedDocIDs)
	return nil
}

func (e *Executor) DeleteMapIndex(ctx context.Context, tx any, indexType string, docID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	byID, ok := e.rows[indexType]
	if !ok {
		return nil
	}
	for rowID, linked := range e.links[indexType] {
		if linked[docID] {
			delete(linked, docID)
			if len(linked) == 0 {
				delete(byID, rowID)
				delete(e.links[indexType], rowID)
			}
		}
	}
	return nil
}

func (e *Executor) DeleteReduceIndex(ctx context.Context, tx any, indexType string, row any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	if byID, ok := e.rows[indexType]; ok {
		delete(byID, id)
	}
	if links, ok := e.links[indexType]; ok {
		delete(links, id)
	}
	return nil
}

func (e *Executor) FindReduceRow(ctx context.Context, tx any, indexType, groupKeyColumn string, key any, out any) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byID := e.rows[indexType]
	for _, row := range byID {
		v := reflect.ValueOf(row)
		for v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		f := v.FieldByName(groupKeyColumn)
		if !f.IsValid() {
			continue
		}
		if f.Interface() == key {
			reflect.ValueOf(out).Elem().Set(reflect.ValueOf(row).Elem())
			return true, nil
		}
	}
	return false, nil
}

func (e *Executor) ScanIndex(ctx context.Context, tx any, indexType string, sample any) ([]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byID := e.rows[indexType]
	out := make([]any, 0, len(byID))
	for _, row := range byID {
		v := reflect.New(reflect.TypeOf(row).Elem())
		v.Elem().Set(reflect.ValueOf(row).Elem())
		out = append(out, v.Interface())
	}
	return out, nil
}

func (e *Executor) nextRowID(indexType string) int64 {
	max := int64(0)
	for id := range e.rows[indexType] {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (e *Executor) store(indexType string, id int64, row any) {
	byID, ok := e.rows[indexType]
	if !ok {
		byID = map[int64]any{}
		e.rows[indexType] = byID
	}
	v := reflect.New(reflect.TypeOf(row).Elem())
	v.Elem().Set(reflect.ValueOf(row).Elem())
	byID[id] = v.Interface()
}

func (e *Executor) link(indexType string, id int64, added, removed []int64) {
	links, ok := e.links[indexType]
	if !ok {
		links = map[int64]map[int64]bool{}
		e.links[indexType] = links
	}
	set, ok := links[id]
	if !ok {
		set = map[int64]bool{}
		links[id] = set
	}
	for _, docID := range added {
		set[docID] = true
	}
	for _, docID := range removed {
		delete(set, docID)
	}
}
