package session

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/commands"
	"github.com/andrewcoll/yessql/idaccessor"
)

// processNew persists a freshly saved entity not yet in the identity map.
func (s *Session) processNew(ctx context.Context, entity any) error {
	doc := &yessql.Document{Type: yessql.SimplifiedTypeName(entity)}
	if err := s.executor.CreateDocument(ctx, s.tx, doc); err != nil {
		return yessql.Backend(err)
	}
	if idaccessor.HasID(entity) {
		if err := idaccessor.SetID(entity, doc.Id); err != nil {
			return err
		}
	}
	if err := s.docStore.Save(ctx, doc.Id, entity); err != nil {
		return yessql.Backend(err)
	}
	s.identity.Put(doc.Id, entity)
	if err := s.pipeline.mapNew(ctx, s.journal, s.executor, doc, entity); err != nil {
		return err
	}
	slog.Debug("yessql: created document", "id", doc.Id, "type", doc.Type)
	return nil
}

// processExisting persists a tracked entity, diffed against its
// last-persisted form.
func (s *Session) processExisting(ctx context.Context, id int64, entity any) error {
	t := reflect.TypeOf(entity)
	if t == nil || t.Kind() != reflect.Ptr {
		return yessql.InvalidOperation("tracked entity %T must be a pointer", entity)
	}

	doc, err := s.executor.FindDocument(ctx, s.tx, id)
	if err != nil {
		return yessql.Backend(err)
	}
	if doc == nil {
		return nil
	}

	oldPtr := reflect.New(t.Elem()).Interface()
	found, err := s.docStore.Load(ctx, id, oldPtr)
	if err != nil {
		return yessql.Backend(err)
	}

	newBytes, err := s.marshaler.Marshal(entity)
	if err != nil {
		return yessql.Backend(err)
	}

	if found {
		oldBytes, err := s.marshaler.Marshal(oldPtr)
		if err != nil {
			return yessql.Backend(err)
		}
		if bytes.Equal(oldBytes, newBytes) {
			return nil // unchanged serialized form, nothing to persist.
		}
		if err := s.pipeline.mapUpdated(ctx, s.journal, s.executor, doc, oldPtr, entity); err != nil {
			return err
		}
	} else if err := s.pipeline.mapNew(ctx, s.journal, s.executor, doc, entity); err != nil {
		return err
	}

	if err := s.docStore.Save(ctx, id, entity); err != nil {
		return yessql.Backend(err)
	}
	slog.Debug("yessql: updated tracked entity", "id", id, "type", doc.Type)
	return nil
}

// processDelete removes a tracked entity's document and index rows.
func (s *Session) processDelete(ctx context.Context, entity any) error {
	id, err := idaccessor.GetID(entity)
	if err != nil {
		return yessql.InvalidOperation("delete: %v", err)
	}

	doc, err := s.executor.FindDocument(ctx, s.tx, id)
	if err != nil {
		return yessql.Backend(err)
	}
	if doc == nil {
		return nil
	}

	if err := s.docStore.Delete(ctx, id); err != nil {
		return yessql.Backend(err)
	}
	s.journal.append(commands.NewDeleteDocument(s.executor, doc))
	s.identity.Remove(id, entity)
	if err := s.pipeline.mapDeleted(ctx, s.journal, s.executor, doc, entity); err != nil {
		return err
	}
	slog.Debug("yessql: deleted document", "id", id, "type", doc.Type)
	return nil
}
