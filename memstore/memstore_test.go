package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcoll/yessql/memstore"
)

type record struct {
	Name string
}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.Save(ctx, 1, &record{Name: "a"}))

	var out record
	found, err := s.Load(ctx, 1, &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", out.Name)

	require.NoError(t, s.Delete(ctx, 1))
	_, found, err = loadAgain(ctx, s, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func loadAgain(ctx context.Context, s *memstore.Store, id int64) (*record, bool, error) {
	var out record
	found, err := s.Load(ctx, id, &out)
	return &out, found, err
}

func TestStore_LoadMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	var out record
	found, err := s.Load(ctx, 99, &out)
	require.NoError(t, err)
	assert.False(t, found)
}
