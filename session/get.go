package session

import (
	"context"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/idaccessor"
	"github.com/andrewcoll/yessql/store"
)

// Get loads entities of type T by id, consulting the identity map first and
// falling back to the document store for any ids not already tracked.
// Loaded entities are registered in the identity map before being returned,
// so a subsequent Save is a no-op and Commit diffs against the loaded
// value. The result is positional: result[i] corresponds to ids[i], nil
// where no document exists for that id.
func Get[T any](ctx context.Context, s *Session, ids []int64) ([]*T, error) {
	result := make([]*T, len(ids))
	toLoad := make([]int64, 0, len(ids))
	seen := map[int64]bool{}
	positions := map[int64][]int{}

	for i, id := range ids {
		if cached, ok := s.identity.Get(id); ok {
			typed, ok := cached.(*T)
			if !ok {
				return nil, yessql.InvalidOperation("id %d is tracked as a different type than requested", id)
			}
			result[i] = typed
			continue
		}
		positions[id] = append(positions[id], i)
		if !seen[id] {
			seen[id] = true
			toLoad = append(toLoad, id)
		}
	}

	if len(toLoad) == 0 {
		return result, nil
	}

	loaded, found, err := store.LoadMany[T](ctx, s.docStore, toLoad)
	if err != nil {
		return nil, yessql.Backend(err)
	}

	for i, id := range toLoad {
		if !found[i] {
			continue
		}
		entity := loaded[i]
		if err := idaccessor.SetID(entity, id); err != nil {
			return nil, err
		}
		s.identity.Put(id, entity)
		for _, pos := range positions[id] {
			result[pos] = entity
		}
	}
	return result, nil
}
