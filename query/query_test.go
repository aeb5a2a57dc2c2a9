package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/memstore"
	"github.com/andrewcoll/yessql/query"
	"github.com/andrewcoll/yessql/session"
)

type Item struct {
	Id    int64
	Name  string
	Price int
}

type ItemRow struct {
	yessql.IndexRow
	Id      int64
	ItemId  int64
	Name    string
	Price   int
}

func newHandle(t *testing.T) (*session.Session, *session.QueryHandle) {
	t.Helper()
	registry := descriptor.NewRegistry()
	descriptor.For[Item, ItemRow]().
		Map(func(i *Item) ([]*ItemRow, error) {
			return []*ItemRow{{ItemId: i.Id, Name: i.Name, Price: i.Price}}, nil
		}).
		Register(registry)

	s := session.New(memstore.NewConnectionFactory(), memstore.New(), memstore.NewExecutor(), registry)
	ctx := context.Background()
	require.NoError(t, s.Save(&Item{Name: "cheap", Price: 5}))
	require.NoError(t, s.Save(&Item{Name: "pricey", Price: 500}))

	handle, err := s.Query(ctx)
	require.NoError(t, err)
	return s, handle
}

func TestIndex_FiltersByPredicate(t *testing.T) {
	ctx := context.Background()
	_, handle := newHandle(t)

	pred, err := query.NewPredicate(`row.Price > 100`)
	require.NoError(t, err)

	rows, err := query.Index[ItemRow](ctx, nil, handle, pred)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pricey", rows[0].Name)
}

func TestNewPredicate_RejectsEmptyExpression(t *testing.T) {
	_, err := query.NewPredicate("")
	require.Error(t, err)
}

func TestNewPredicate_RejectsInvalidExpression(t *testing.T) {
	_, err := query.NewPredicate("row.Price >")
	require.Error(t, err)
}
