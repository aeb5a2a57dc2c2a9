package descriptor

import (
	"fmt"
	"reflect"
)

// Builder is the typed, builder-style construction-time convenience over a
// Descriptor: the typed chain is not part of the runtime core. Register
// hands the session an untyped *Descriptor.
type Builder[E any, I any] struct {
	d Descriptor
}

// For starts building a descriptor mapping entity type E to index rows of
// type I.
func For[E any, I any]() *Builder[E, I] {
	return &Builder[E, I]{
		d: Descriptor{
			EntityType: reflect.TypeOf((*E)(nil)).Elem(),
			IndexType:  reflect.TypeOf((*I)(nil)).Elem(),
		},
	}
}

// Map sets the descriptor's mapping function. Entities flow through the
// session as pointers, so f takes *E.
func (b *Builder[E, I]) Map(f func(entity *E) ([]*I, error)) *Builder[E, I] {
	b.d.Map = func(entity any) ([]any, error) {
		e, ok := entity.(*E)
		if !ok {
			return nil, fmt.Errorf("descriptor: map expected %T, got %T", (*E)(nil), entity)
		}
		rows, err := f(e)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out, nil
	}
	return b
}

// GroupBy names the field of I used as the reduce group key.
func (b *Builder[E, I]) GroupBy(field string) *Builder[E, I] {
	b.d.GroupKeyField = field
	return b
}

// Reduce sets the descriptor's reduce fold. f must
// return a non-nil *I for a non-empty input.
func (b *Builder[E, I]) Reduce(f func(key any, rows []*I) (*I, error)) *Builder[E, I] {
	b.d.Reduce = func(g Grouping) (any, error) {
		rows, err := typedRows[I](g.Rows)
		if err != nil {
			return nil, err
		}
		out, err := f(g.Key, rows)
		if err != nil || out == nil {
			return nil, err
		}
		return out, nil
	}
	return b
}

// Delete sets the descriptor's delete fold; a nil
// return value means the group has been emptied.
func (b *Builder[E, I]) Delete(f func(current *I, deleted []*I) (*I, error)) *Builder[E, I] {
	b.d.Delete = func(current any, deleted []MapState) (any, error) {
		cur, ok := current.(*I)
		if !ok {
			return nil, fmt.Errorf("descriptor: delete expected current %T, got %T", (*I)(nil), current)
		}
		rows, err := typedRows[I](deleted)
		if err != nil {
			return nil, err
		}
		out, err := f(cur, rows)
		if err != nil || out == nil {
			return nil, err
		}
		return out, nil
	}
	return b
}

// Update sets the descriptor's update fold.
func (b *Builder[E, I]) Update(f func(current *I, updated []*I) (*I, error)) *Builder[E, I] {
	b.d.Update = func(current any, updated []MapState) (any, error) {
		cur, ok := current.(*I)
		if !ok {
			return nil, fmt.Errorf("descriptor: update expected current %T, got %T", (*I)(nil), current)
		}
		rows, err := typedRows[I](updated)
		if err != nil {
			return nil, err
		}
		out, err := f(cur, rows)
		if err != nil || out == nil {
			return nil, err
		}
		return out, nil
	}
	return b
}

// Register finalizes the descriptor into r and returns the untyped runtime
// record.
func (b *Builder[E, I]) Register(r *Registry) *Descriptor {
	d := b.d
	r.register(&d)
	return &d
}

func typedRows[I any](states []MapState) ([]*I, error) {
	out := make([]*I, len(states))
	for i, st := range states {
		r, ok := st.Row.(*I)
		if !ok {
			return nil, fmt.Errorf("descriptor: row has type %T, want %T", st.Row, (*I)(nil))
		}
		out[i] = r
	}
	return out, nil
}
