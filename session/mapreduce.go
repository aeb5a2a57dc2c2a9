package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/commands"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/idaccessor"
)

// mapReducePipeline accumulates per-descriptor map deltas during a commit
// and folds them into index commands at finalization time.
type mapReducePipeline struct {
	registry  *descriptor.Registry
	acc       map[*descriptor.Descriptor][]descriptor.MapState
	descOrder []*descriptor.Descriptor
	seenDesc  map[*descriptor.Descriptor]bool
}

func newMapReducePipeline(r *descriptor.Registry) *mapReducePipeline {
	return &mapReducePipeline{
		registry: r,
		acc:      map[*descriptor.Descriptor][]descriptor.MapState{},
		seenDesc: map[*descriptor.Descriptor]bool{},
	}
}

func (p *mapReducePipeline) append(d *descriptor.Descriptor, st descriptor.MapState) {
	if !p.seenDesc[d] {
		p.seenDesc[d] = true
		p.descOrder = append(p.descOrder, d)
	}
	p.acc[d] = append(p.acc[d], st)
}

func baseType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// emitMapRow journals a pure-MapIndex row immediately: CreateIndexCommand
// if the row has no id yet, UpdateIndexCommand if it does. docID is
// recorded as the row's added-document back-link so a later
// DeleteMapIndexCommand for that document can find and unlink it.
func emitMapRow(j *journal, exec commands.Executor, d *descriptor.Descriptor, row any, docID int64) error {
	id, err := idaccessor.GetID(row)
	if err != nil {
		return err
	}
	if id == 0 {
		j.append(commands.NewCreateIndex(exec, d.IndexTypeName(), row, []int64{docID}))
	} else {
		j.append(commands.NewUpdateIndex(exec, d.IndexTypeName(), row, []int64{docID}, nil))
	}
	return nil
}

// mapNew accumulates map state for a freshly persisted entity, or for a
// tracked entity whose previously stored value could not be loaded.
func (p *mapReducePipeline) mapNew(ctx context.Context, j *journal, exec commands.Executor, doc *yessql.Document, entity any) error {
	for _, d := range p.registry.For(baseType(entity)) {
		rows, err := d.Map(entity)
		if err != nil {
			return err
		}
		if !d.HasReduce() {
			for _, row := range rows {
				if err := emitMapRow(j, exec, d, row, doc.Id); err != nil {
					return err
				}
			}
			continue
		}
		for _, row := range rows {
			p.append(d, descriptor.MapState{Row: row, State: descriptor.New, DocIDs: []int64{doc.Id}})
		}
	}
	return nil
}

// mapDeleted accumulates map state for a document being removed.
func (p *mapReducePipeline) mapDeleted(ctx context.Context, j *journal, exec commands.Executor, doc *yessql.Document, entity any) error {
	for _, d := range p.registry.For(baseType(entity)) {
		if !d.HasReduce() || d.Delete == nil {
			j.append(commands.NewDeleteMapIndex(exec, d.IndexTypeName(), doc.Id))
			continue
		}
		rows, err := d.Map(entity)
		if err != nil {
			return err
		}
		for _, row := range rows {
			p.append(d, descriptor.MapState{Row: row, State: descriptor.Delete, DocIDs: []int64{doc.Id}})
		}
	}
	return nil
}

// mapUpdated handles a tracked, persisted entity whose serialized form
// changed. For pure-map descriptors it deletes the document's old rows and
// re-emits the new ones. For reduce descriptors it pairs old and new mapped
// rows by group key: a group key present in both maps to an Update state
// only when the descriptor supplies an Update fold, since only that fold
// knows how to fold a changed row into the current reduced value in place;
// without one, the same group key falls back to the delete-then-new
// behavior used when a key disappears or appears, deleting the old rows'
// contribution and re-adding the new one. A group key only in the old
// mapping produces Delete states and a group key only in the new mapping
// produces New states, so an update crossing group-key boundaries moves the
// entity's contribution out of its old group and into its new one.
func (p *mapReducePipeline) mapUpdated(ctx context.Context, j *journal, exec commands.Executor, doc *yessql.Document, oldEntity, newEntity any) error {
	for _, d := range p.registry.For(baseType(newEntity)) {
		oldRows, err := d.Map(oldEntity)
		if err != nil {
			return err
		}
		newRows, err := d.Map(newEntity)
		if err != nil {
			return err
		}

		if !d.HasReduce() {
			if len(oldRows) > 0 {
				j.append(commands.NewDeleteMapIndex(exec, d.IndexTypeName(), doc.Id))
			}
			for _, row := range newRows {
				if err := emitMapRow(j, exec, d, row, doc.Id); err != nil {
					return err
				}
			}
			continue
		}

		oldByKey, err := groupRowsByKey(d, oldRows)
		if err != nil {
			return err
		}
		newByKey, err := groupRowsByKey(d, newRows)
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		for ks := range oldByKey {
			seen[ks] = true
		}
		for ks := range newByKey {
			seen[ks] = true
		}
		for ks := range seen {
			oldRs, newRs := oldByKey[ks], newByKey[ks]
			switch {
			case len(oldRs) > 0 && len(newRs) > 0 && d.Update != nil:
				for _, row := range newRs {
					p.append(d, descriptor.MapState{Row: row, State: descriptor.Update})
				}
			case len(oldRs) > 0 && len(newRs) > 0:
				for _, row := range oldRs {
					p.append(d, descriptor.MapState{Row: row, State: descriptor.Delete, DocIDs: []int64{doc.Id}})
				}
				for _, row := range newRs {
					p.append(d, descriptor.MapState{Row: row, State: descriptor.New, DocIDs: []int64{doc.Id}})
				}
			case len(newRs) > 0:
				for _, row := range newRs {
					p.append(d, descriptor.MapState{Row: row, State: descriptor.New, DocIDs: []int64{doc.Id}})
				}
			default:
				for _, row := range oldRs {
					p.append(d, descriptor.MapState{Row: row, State: descriptor.Delete, DocIDs: []int64{doc.Id}})
				}
			}
		}
	}
	return nil
}

func groupRowsByKey(d *descriptor.Descriptor, rows []any) (map[string][]any, error) {
	out := map[string][]any{}
	for _, row := range rows {
		k, err := d.GroupKey(row)
		if err != nil {
			return nil, err
		}
		ks := fmt.Sprint(k)
		out[ks] = append(out[ks], row)
	}
	return out, nil
}

// finalize runs the reduce-finalization pass once per commit, after all
// per-entity map work: for each descriptor with accumulated MapStates,
// partition by group key, fold, load the persisted row, fold again, apply
// delete/update, and emit the resulting command. Descriptor order, then
// group-key order within a descriptor, is the append (first-touched)
// order.
func (p *mapReducePipeline) finalize(ctx context.Context, tx any, j *journal, exec commands.Executor) error {
	for _, d := range p.descOrder {
		states := p.acc[d]
		if len(states) == 0 {
			continue
		}
		if !d.HasGroupKey() {
			return yessql.InvalidOperation("reduce descriptor %s has accumulated map state but no group key", d.IndexTypeName())
		}

		groups := map[string][]descriptor.MapState{}
		keyValues := map[string]any{}
		var keyOrder []string
		for _, st := range states {
			k, err := d.GroupKey(st.Row)
			if err != nil {
				return err
			}
			ks := fmt.Sprint(k)
			if _, ok := keyValues[ks]; !ok {
				keyValues[ks] = k
				keyOrder = append(keyOrder, ks)
			}
			groups[ks] = append(groups[ks], st)
		}

		for _, ks := range keyOrder {
			if err := p.finalizeGroup(ctx, tx, j, exec, d, keyValues[ks], groups[ks]); err != nil {
				return err
			}
		}
	}

	p.acc = map[*descriptor.Descriptor][]descriptor.MapState{}
	p.descOrder = nil
	p.seenDesc = map[*descriptor.Descriptor]bool{}
	return nil
}

func (p *mapReducePipeline) finalizeGroup(ctx context.Context, tx any, j *journal, exec commands.Executor, d *descriptor.Descriptor, key any, grp []descriptor.MapState) error {
	var newGroup, deleteGroup, updateGroup []descriptor.MapState
	for _, st := range grp {
		switch st.State {
		case descriptor.New:
			newGroup = append(newGroup, st)
		case descriptor.Delete:
			deleteGroup = append(deleteGroup, st)
		case descriptor.Update:
			updateGroup = append(updateGroup, st)
		}
	}

	var newReduced any
	if len(newGroup) > 0 {
		reduced, err := d.Reduce(descriptor.Grouping{Key: key, Rows: newGroup})
		if err != nil {
			return yessql.Backend(err)
		}
		if reduced == nil {
			return yessql.InvalidOperation("reduce for index %s group %v returned a nil result", d.IndexTypeName(), key)
		}
		newReduced = reduced
	}

	persisted, persistedFound, err := loadPersisted(ctx, tx, exec, d, key)
	if err != nil {
		return err
	}

	var current any
	switch {
	case persistedFound && newReduced != nil:
		folded, err := d.Reduce(descriptor.Grouping{Key: key, Rows: []descriptor.MapState{{Row: persisted}, {Row: newReduced}}})
		if err != nil {
			return yessql.Backend(err)
		}
		if folded == nil {
			return yessql.InvalidOperation("reduce for index %s group %v returned a nil result", d.IndexTypeName(), key)
		}
		current = folded
	case persistedFound:
		current = persisted
	default:
		current = newReduced
	}

	if current != nil && len(deleteGroup) > 0 {
		if d.Delete == nil {
			return yessql.InvalidOperation("reduce descriptor %s has no delete fold but has deletions pending", d.IndexTypeName())
		}
		current, err = d.Delete(current, deleteGroup)
		if err != nil {
			return yessql.Backend(err)
		}
	}

	if current != nil && len(updateGroup) > 0 && d.Update != nil {
		current, err = d.Update(current, updateGroup)
		if err != nil {
			return yessql.Backend(err)
		}
	}

	var addedDocIDs, removedDocIDs []int64
	for _, st := range newGroup {
		addedDocIDs = append(addedDocIDs, st.DocIDs...)
	}
	for _, st := range deleteGroup {
		removedDocIDs = append(removedDocIDs, st.DocIDs...)
	}

	switch {
	case persistedFound && current == nil:
		j.append(commands.NewDeleteReduceIndex(exec, d.IndexTypeName(), persisted))
	case persistedFound && current != nil:
		id, err := idaccessor.GetID(persisted)
		if err != nil {
			return err
		}
		if err := idaccessor.SetID(current, id); err != nil {
			return err
		}
		j.append(commands.NewUpdateIndex(exec, d.IndexTypeName(), current, addedDocIDs, removedDocIDs))
	case !persistedFound && current != nil:
		j.append(commands.NewCreateIndex(exec, d.IndexTypeName(), current, addedDocIDs))
	}
	return nil
}

func loadPersisted(ctx context.Context, tx any, exec commands.Executor, d *descriptor.Descriptor, key any) (any, bool, error) {
	outPtr := reflect.New(d.IndexType)
	found, err := exec.FindReduceRow(ctx, tx, d.IndexTypeName(), d.GroupKeyField, key, outPtr.Interface())
	if err != nil {
		return nil, false, yessql.Backend(err)
	}
	if !found {
		return nil, false, nil
	}
	return outPtr.Interface(), true, nil
}
