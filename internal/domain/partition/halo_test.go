package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaloFor(t *testing.T) {
	dims := Dims{Width: 10, Height: 10}

	tests := []struct {
		name    string
		p       Partition
		yRadius int
		want    Halo
	}{
		{name: "interior rows", p: Partition{Offset: 45, Count: 20}, yRadius: 2, want: Halo{Start: 20, Count: 70}},
		{name: "clamped at top", p: Partition{Offset: 5, Count: 10}, yRadius: 3, want: Halo{Start: 0, Count: 50}},
		{name: "clamped at bottom", p: Partition{Offset: 90, Count: 10}, yRadius: 4, want: Halo{Start: 50, Count: 50}},
		{name: "zero radius keeps whole rows", p: Partition{Offset: 33, Count: 4}, yRadius: 0, want: Halo{Start: 30, Count: 10}},
		{name: "radius larger than image", p: Partition{Offset: 50, Count: 1}, yRadius: 100, want: Halo{Start: 0, Count: 100}},
		{name: "radius near int limit", p: Partition{Offset: 50, Count: 1}, yRadius: math.MaxInt, want: Halo{Start: 0, Count: 100}},
		{name: "empty partition", p: Partition{Offset: 100, Count: 0}, yRadius: 2, want: Halo{Start: 100, Count: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HaloFor(tt.p, dims, 3, tt.yRadius)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHaloContainsPartition(t *testing.T) {
	for _, dims := range []Dims{{1, 1}, {1, 9}, {9, 1}, {7, 5}, {16, 16}, {13, 3}} {
		for workers := 1; workers <= 9; workers++ {
			plan, err := Plan(workers, dims.Pixels())
			require.NoError(t, err)

			for _, r := range []int{0, 1, 2, 5, 20} {
				for _, p := range plan {
					h, err := HaloFor(p, dims, r, r)
					require.NoError(t, err)

					assert.True(t, h.Contains(p), "halo %+v misses partition %+v", h, p)
					assert.GreaterOrEqual(t, h.Start, 0)
					assert.LessOrEqual(t, h.End(), dims.Pixels())
					if h.Count > 0 {
						assert.Zero(t, h.Start%dims.Width, "halo must start on a row")
						assert.Zero(t, h.Count%dims.Width, "halo must span whole rows")
					}
				}
			}
		}
	}
}

func TestHaloForInvalid(t *testing.T) {
	dims := Dims{Width: 4, Height: 4}

	_, err := HaloFor(Partition{Offset: 0, Count: 4}, dims, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = HaloFor(Partition{Offset: 0, Count: 4}, dims, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = HaloFor(Partition{Offset: 12, Count: 8}, dims, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = HaloFor(Partition{Offset: 0, Count: 1}, Dims{Width: 0, Height: 4}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewWorkUnit(t *testing.T) {
	region := Halo{Start: 10, Count: 20}
	p := Partition{Offset: 14, Count: 6}
	slice := make([]byte, ToBytes(region.Count))
	slice[ToBytes(4)] = 7

	u, err := NewWorkUnit(slice, region, p)
	require.NoError(t, err)
	assert.Equal(t, 4, u.Inner)
	assert.Equal(t, byte(7), u.Pixel(14)[0])
	assert.Len(t, u.Workspace(), ToBytes(6))

	_, err = NewWorkUnit(slice[:3], region, p)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewWorkUnit(slice, region, Partition{Offset: 25, Count: 10})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
