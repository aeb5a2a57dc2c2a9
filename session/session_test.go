package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/memstore"
	"github.com/andrewcoll/yessql/session"
)

type Person struct {
	Id   int64
	Name string
}

type PersonByName struct {
	yessql.IndexRow
	Id    int64
	Name  string
	Count int
}

func personByNameRegistry() *descriptor.Registry {
	r := descriptor.NewRegistry()
	descriptor.For[Person, PersonByName]().
		Map(func(p *Person) ([]*PersonByName, error) {
			return []*PersonByName{{Name: p.Name, Count: 1}}, nil
		}).
		GroupBy("Name").
		Reduce(func(key any, rows []*PersonByName) (*PersonByName, error) {
			out := &PersonByName{Name: key.(string)}
			for _, r := range rows {
				out.Count += r.Count
			}
			return out, nil
		}).
		Delete(func(current *PersonByName, deleted []*PersonByName) (*PersonByName, error) {
			current.Count -= len(deleted)
			if current.Count <= 0 {
				return nil, nil
			}
			return current, nil
		}).
		Register(r)
	return r
}

type harness struct {
	registry    *descriptor.Registry
	docStore    *memstore.Store
	connFactory *memstore.ConnectionFactory
	executor    *memstore.Executor
}

func newHarness() *harness {
	return &harness{
		registry:    personByNameRegistry(),
		docStore:    memstore.New(),
		connFactory: memstore.NewConnectionFactory(),
		executor:    memstore.NewExecutor(),
	}
}

func (h *harness) newSession() *session.Session {
	return session.New(h.connFactory, h.docStore, h.executor, h.registry)
}

func findByName(t *testing.T, ctx context.Context, h *harness, name string) (*PersonByName, bool) {
	t.Helper()
	var out PersonByName
	found, err := h.executor.FindReduceRow(ctx, nil, "PersonByName", "Name", name, &out)
	require.NoError(t, err)
	if !found {
		return nil, false
	}
	return &out, true
}

// S1: three saves across two group keys fold into two reduce rows.
func TestScenario_S1_ReduceAcrossGroups(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	a1 := &Person{Name: "a"}
	a2 := &Person{Name: "a"}
	b1 := &Person{Name: "b"}
	require.NoError(t, s.Save(a1))
	require.NoError(t, s.Save(a2))
	require.NoError(t, s.Save(b1))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Dispose(ctx))

	rowA, ok := findByName(t, ctx, h, "a")
	require.True(t, ok)
	assert.Equal(t, 2, rowA.Count)

	rowB, ok := findByName(t, ctx, h, "b")
	require.True(t, ok)
	assert.Equal(t, 1, rowB.Count)

	assert.NotZero(t, a1.Id)
	assert.NotZero(t, a2.Id)
	assert.NotEqual(t, a1.Id, a2.Id)
}

// S2/S3: deleting members of a group decrements the fold, and deleting the
// last member removes the reduce row entirely.
func TestScenario_S2_S3_DeleteDecrementsThenRemoves(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	s1 := h.newSession()
	a1 := &Person{Name: "a"}
	a2 := &Person{Name: "a"}
	require.NoError(t, s1.Save(a1))
	require.NoError(t, s1.Save(a2))
	require.NoError(t, s1.Commit(ctx))
	require.NoError(t, s1.Dispose(ctx))

	// S2: a new session loads and deletes one of the two "a" people.
	s2 := h.newSession()
	loaded, err := session.Get[Person](ctx, s2, []int64{a1.Id})
	require.NoError(t, err)
	require.NotNil(t, loaded[0])
	require.NoError(t, s2.Delete(loaded[0]))
	require.NoError(t, s2.Commit(ctx))
	require.NoError(t, s2.Dispose(ctx))

	row, ok := findByName(t, ctx, h, "a")
	require.True(t, ok)
	assert.Equal(t, 1, row.Count)

	// S3: deleting the remaining "a" person removes the reduce row.
	s3 := h.newSession()
	loaded, err = session.Get[Person](ctx, s3, []int64{a2.Id})
	require.NoError(t, err)
	require.NotNil(t, loaded[0])
	require.NoError(t, s3.Delete(loaded[0]))
	require.NoError(t, s3.Commit(ctx))
	require.NoError(t, s3.Dispose(ctx))

	_, ok = findByName(t, ctx, h, "a")
	assert.False(t, ok)
}

// S4: a pure MapIndex descriptor (no reduce) removes all of a document's
// rows via DeleteMapIndex on delete.
func TestScenario_S4_PureMapIndexCleanup(t *testing.T) {
	ctx := context.Background()
	registry := descriptor.NewRegistry()
	descriptor.For[Person, PersonByName]().
		Map(func(p *Person) ([]*PersonByName, error) {
			return []*PersonByName{{Name: p.Name, Count: 1}}, nil
		}).
		Register(registry)

	h := &harness{registry: registry, docStore: memstore.New(), connFactory: memstore.NewConnectionFactory(), executor: memstore.NewExecutor()}
	s := h.newSession()

	p := &Person{Name: "solo"}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Commit(ctx))

	rows, err := h.executor.ScanIndex(ctx, nil, "PersonByName", &PersonByName{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.Delete(p))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Dispose(ctx))

	rows, err = h.executor.ScanIndex(ctx, nil, "PersonByName", &PersonByName{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// S5: saving the same instance twice in one session is a no-op the second
// time; only one document is created.
func TestScenario_S5_DuplicateSaveIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	p := &Person{Name: "dup"}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Dispose(ctx))

	row, ok := findByName(t, ctx, h, "dup")
	require.True(t, ok)
	assert.Equal(t, 1, row.Count)
}

// S6: a delete fold that empties a group results in exactly one
// DeleteReduceIndex-equivalent effect: the row disappears, not left as a
// zero-value row.
func TestScenario_S6_DeleteFoldEmptyingGroupRemovesRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	s1 := h.newSession()
	p := &Person{Name: "only"}
	require.NoError(t, s1.Save(p))
	require.NoError(t, s1.Commit(ctx))
	require.NoError(t, s1.Dispose(ctx))

	s2 := h.newSession()
	loaded, err := session.Get[Person](ctx, s2, []int64{p.Id})
	require.NoError(t, err)
	require.NoError(t, s2.Delete(loaded[0]))
	require.NoError(t, s2.Commit(ctx))
	require.NoError(t, s2.Dispose(ctx))

	_, ok := findByName(t, ctx, h, "only")
	assert.False(t, ok)
}

type Sale struct {
	Id     int64
	Region string
	Amount int
}

type RegionTotal struct {
	yessql.IndexRow
	Id     int64
	Region string
	Amount int
}

// regionTotalRegistry declares no Update fold, so a re-saved Sale whose
// group key (Region) is unchanged must still converge on the new Amount
// via the delete-then-new fallback rather than being dropped.
func regionTotalRegistry() *descriptor.Registry {
	r := descriptor.NewRegistry()
	descriptor.For[Sale, RegionTotal]().
		Map(func(s *Sale) ([]*RegionTotal, error) {
			return []*RegionTotal{{Region: s.Region, Amount: s.Amount}}, nil
		}).
		GroupBy("Region").
		Reduce(func(key any, rows []*RegionTotal) (*RegionTotal, error) {
			out := &RegionTotal{Region: key.(string)}
			for _, row := range rows {
				out.Amount += row.Amount
			}
			return out, nil
		}).
		Delete(func(current *RegionTotal, deleted []*RegionTotal) (*RegionTotal, error) {
			for _, row := range deleted {
				current.Amount -= row.Amount
			}
			if current.Amount <= 0 {
				return nil, nil
			}
			return current, nil
		}).
		Register(r)
	return r
}

func TestMapUpdated_SameGroupKeyValueChangeWithoutUpdateFold(t *testing.T) {
	ctx := context.Background()
	h := &harness{
		registry:    regionTotalRegistry(),
		docStore:    memstore.New(),
		connFactory: memstore.NewConnectionFactory(),
		executor:    memstore.NewExecutor(),
	}

	s1 := h.newSession()
	sale := &Sale{Region: "east", Amount: 10}
	require.NoError(t, s1.Save(sale))
	require.NoError(t, s1.Commit(ctx))
	require.NoError(t, s1.Dispose(ctx))

	var before RegionTotal
	found, err := h.executor.FindReduceRow(ctx, nil, "RegionTotal", "Region", "east", &before)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 10, before.Amount)

	s2 := h.newSession()
	loaded, err := session.Get[Sale](ctx, s2, []int64{sale.Id})
	require.NoError(t, err)
	loaded[0].Amount = 25
	require.NoError(t, s2.Save(loaded[0]))
	require.NoError(t, s2.Commit(ctx))
	require.NoError(t, s2.Dispose(ctx))

	var after RegionTotal
	found, err = h.executor.FindReduceRow(ctx, nil, "RegionTotal", "Region", "east", &after)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 25, after.Amount)
}

// Invariant 1: id round-trip across a fresh session.
func TestInvariant_IdRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s1 := h.newSession()

	p := &Person{Name: "roundtrip"}
	require.NoError(t, s1.Save(p))
	require.NoError(t, s1.Commit(ctx))
	require.NoError(t, s1.Dispose(ctx))
	require.NotZero(t, p.Id)

	s2 := h.newSession()
	loaded, err := session.Get[Person](ctx, s2, []int64{p.Id})
	require.NoError(t, err)
	require.NotNil(t, loaded[0])
	assert.Equal(t, p.Name, loaded[0].Name)
}

// Invariant 2: get returns the same instance for the same id within a
// session, including a saved-then-fetched entity.
func TestInvariant_IdentityWithinSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	p := &Person{Name: "identity"}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Commit(ctx))

	loaded, err := session.Get[Person](ctx, s, []int64{p.Id})
	require.NoError(t, err)
	assert.Same(t, p, loaded[0])

	loadedAgain, err := session.Get[Person](ctx, s, []int64{p.Id})
	require.NoError(t, err)
	assert.Same(t, loaded[0], loadedAgain[0])
}

// Invariant 5: re-saving an unchanged, already-tracked entity produces no
// index-row changes.
func TestInvariant_NoChangeNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	p := &Person{Name: "steady"}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Commit(ctx))

	before, ok := findByName(t, ctx, h, "steady")
	require.True(t, ok)

	require.NoError(t, s.Save(p))
	require.NoError(t, s.Commit(ctx))

	after, ok := findByName(t, ctx, h, "steady")
	require.True(t, ok)
	assert.Equal(t, before.Count, after.Count)
}

// Invariant 6: canceling before dispose leaves no persisted document or
// index row.
func TestInvariant_CancellationAtomicity(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	p := &Person{Name: "canceled"}
	require.NoError(t, s.Save(p))
	s.Cancel()
	require.NoError(t, s.Dispose(ctx))

	var doc Person
	found, err := h.docStore.Load(ctx, p.Id, &doc)
	require.NoError(t, err)
	assert.False(t, found)

	_, ok := findByName(t, ctx, h, "canceled")
	assert.False(t, ok)
}

func TestDelete_RejectsEntityWithoutId(t *testing.T) {
	h := newHarness()
	s := h.newSession()

	err := s.Delete(&struct{ Name string }{Name: "no id field"})
	require.Error(t, err)
	assert.True(t, yessql.IsCode(err, yessql.ErrInvalidOperation))
}

func TestSave_RejectsDocumentAndIndexRow(t *testing.T) {
	h := newHarness()
	s := h.newSession()

	err := s.Save(&yessql.Document{})
	require.Error(t, err)
	assert.True(t, yessql.IsCode(err, yessql.ErrInvalidArgument))

	err = s.Save(&PersonByName{})
	require.Error(t, err)
	assert.True(t, yessql.IsCode(err, yessql.ErrInvalidArgument))
}

func TestSetIsolationLevel_RejectedAfterTransactionOpen(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s := h.newSession()

	require.NoError(t, s.Save(&Person{Name: "x"}))
	require.NoError(t, s.Commit(ctx))

	err := s.SetIsolationLevel(yessql.Serializable)
	require.Error(t, err)
	assert.True(t, yessql.IsCode(err, yessql.ErrInvalidOperation))
}
