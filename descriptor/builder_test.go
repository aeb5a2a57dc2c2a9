package descriptor_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcoll/yessql/descriptor"
)

type Order struct {
	Id     int64
	Region string
	Total  int
}

type RegionTotal struct {
	Id     int64
	Region string
	Total  int
}

func TestBuilder_RegisterAndLookup(t *testing.T) {
	r := descriptor.NewRegistry()
	descriptor.For[Order, RegionTotal]().
		Map(func(o *Order) ([]*RegionTotal, error) {
			return []*RegionTotal{{Region: o.Region, Total: o.Total}}, nil
		}).
		GroupBy("Region").
		Register(r)

	ds := r.For(reflect.TypeOf(Order{}))
	require.Len(t, ds, 1)
	assert.True(t, ds[0].HasGroupKey())
	assert.False(t, ds[0].HasReduce())
	assert.Equal(t, "RegionTotal", ds[0].IndexTypeName())
}

// A Reduce fold that returns (nil, nil) must surface as a genuinely nil
// any, not an any boxing a typed nil *RegionTotal, so callers can compare
// the result against nil directly.
func TestBuilder_ReduceNilResultIsUnboxed(t *testing.T) {
	r := descriptor.NewRegistry()
	d := descriptor.For[Order, RegionTotal]().
		GroupBy("Region").
		Reduce(func(key any, rows []*RegionTotal) (*RegionTotal, error) {
			return nil, nil
		}).
		Register(r)

	out, err := d.Reduce(descriptor.Grouping{Key: "east"})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, nil, out)
}

func TestBuilder_DeleteNilResultIsUnboxed(t *testing.T) {
	r := descriptor.NewRegistry()
	d := descriptor.For[Order, RegionTotal]().
		GroupBy("Region").
		Delete(func(current *RegionTotal, deleted []*RegionTotal) (*RegionTotal, error) {
			return nil, nil
		}).
		Register(r)

	out, err := d.Delete(&RegionTotal{Region: "east", Total: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDescriptor_GroupKey(t *testing.T) {
	r := descriptor.NewRegistry()
	d := descriptor.For[Order, RegionTotal]().GroupBy("Region").Register(r)

	key, err := d.GroupKey(&RegionTotal{Region: "west"})
	require.NoError(t, err)
	assert.Equal(t, "west", key)
}

func TestDescriptor_GroupKey_MissingFieldErrors(t *testing.T) {
	r := descriptor.NewRegistry()
	d := descriptor.For[Order, RegionTotal]().GroupBy("NoSuchField").Register(r)

	_, err := d.GroupKey(&RegionTotal{})
	require.Error(t, err)
}
