package idaccessor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcoll/yessql/idaccessor"
)

type widget struct {
	Id   int64
	Name string
}

type noID struct {
	Name string
}

type badID struct {
	Id string
}

func TestGetSetID_RoundTrip(t *testing.T) {
	w := &widget{Name: "bolt"}
	require.NoError(t, idaccessor.SetID(w, 42))
	id, err := idaccessor.GetID(w)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestHasID(t *testing.T) {
	assert.True(t, idaccessor.HasID(&widget{}))
	assert.False(t, idaccessor.HasID(&noID{}))
}

func TestFor_RejectsNonIntegerIdField(t *testing.T) {
	_, err := idaccessor.For(&badID{})
	require.Error(t, err)
}

func TestSetID_RequiresPointer(t *testing.T) {
	err := idaccessor.SetID(widget{}, 1)
	require.Error(t, err)
}

func TestFor_CachesAccessorAcrossCalls(t *testing.T) {
	a1, err := idaccessor.For(&widget{})
	require.NoError(t, err)
	a2, err := idaccessor.For(&widget{})
	require.NoError(t, err)
	assert.Same(t, a1, a2)
}
