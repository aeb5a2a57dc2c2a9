package session

// changeTracker holds the pending-save and pending-delete sets for a
// session. Per-entity insert/update/delete decisions are
// made by Session.Commit using these sets together with the identity map.
type changeTracker struct {
	pendingSaves    []any
	pendingSavesSet map[any]bool
	pendingDeletes  []any
}

func newChangeTracker() *changeTracker {
	return &changeTracker{pendingSavesSet: map[any]bool{}}
}

// trackSave records entity in the pending-save set. Returns false if entity
// was already pending, so a duplicate Save of the same instance before
// commit is a no-op.
func (t *changeTracker) trackSave(entity any) bool {
	if t.pendingSavesSet[entity] {
		return false
	}
	t.pendingSavesSet[entity] = true
	t.pendingSaves = append(t.pendingSaves, entity)
	return true
}

func (t *changeTracker) trackDelete(entity any) {
	t.pendingDeletes = append(t.pendingDeletes, entity)
}

func (t *changeTracker) clearSaves() {
	t.pendingSaves = nil
	t.pendingSavesSet = map[any]bool{}
}

func (t *changeTracker) clearDeletes() {
	t.pendingDeletes = nil
}
