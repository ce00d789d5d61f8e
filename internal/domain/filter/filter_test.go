package filter

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
)

// identity is the reducer of a one-rank group.
type identity struct{}

func (identity) AllReduceSum(_ context.Context, v float64) (float64, error) { return v, nil }

// applyAcross runs k on workers ranks over img and stitches the outputs
// back together in rank order.
func applyAcross(t *testing.T, k Kernel, img []byte, dims partition.Dims, workers int) []byte {
	t.Helper()
	group, err := collective.NewLocalGroup(workers)
	require.NoError(t, err)
	plan, err := partition.Plan(workers, dims.Pixels())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outs := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for rank, p := range plan {
		wg.Add(1)
		go func() {
			defer wg.Done()
			region, err := k.Region(p, dims)
			if err != nil {
				errs[rank] = err
				return
			}
			start, count := region.Bytes()
			unit, err := partition.NewWorkUnit(img[start:start+count], region, p)
			if err != nil {
				errs[rank] = err
				return
			}
			outs[rank], errs[rank] = k.Apply(ctx, group[rank], unit, dims)
		}()
	}
	wg.Wait()

	var joined []byte
	for rank := range outs {
		require.NoError(t, errs[rank], "rank %d", rank)
		require.Len(t, outs[rank], partition.ToBytes(plan[rank].Count))
		joined = append(joined, outs[rank]...)
	}
	return joined
}

func randomImage(dims partition.Dims, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	img := make([]byte, partition.ToBytes(dims.Pixels()))
	for i := range img {
		img[i] = byte(rng.IntN(256))
	}
	return img
}

func uniformImage(dims partition.Dims, r, g, b byte) []byte {
	img := make([]byte, partition.ToBytes(dims.Pixels()))
	for i := 0; i < len(img); i += partition.ChannelDepth {
		img[i], img[i+1], img[i+2] = r, g, b
	}
	return img
}

func TestAveragingUniformImageUnchanged(t *testing.T) {
	dims := partition.Dims{Width: 13, Height: 9}
	img := uniformImage(dims, 40, 120, 250)

	tests := []struct {
		name    string
		xr, yr  int
		workers int
	}{
		{"zero radius", 0, 0, 1},
		{"unit radius", 1, 1, 3},
		{"wide x", 6, 1, 4},
		{"tall y", 1, 5, 5},
		{"larger than image", 20, 20, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewAveraging(tt.xr, tt.yr)
			require.NoError(t, err)
			assert.Equal(t, img, applyAcross(t, k, img, dims, tt.workers))
		})
	}
}

func TestAveragingZeroRadiusIsIdentity(t *testing.T) {
	dims := partition.Dims{Width: 10, Height: 10}
	img := randomImage(dims, 7)

	k, err := NewAveraging(0, 0)
	require.NoError(t, err)
	assert.Equal(t, img, applyAcross(t, k, img, dims, 1))
	assert.Equal(t, img, applyAcross(t, k, img, dims, 4))
}

func TestAveragingIndependentOfWorkerCount(t *testing.T) {
	dims := partition.Dims{Width: 17, Height: 11}
	img := randomImage(dims, 42)

	for _, radii := range [][2]int{{1, 1}, {2, 3}, {4, 0}, {0, 2}, {3, 7}} {
		k, err := NewAveraging(radii[0], radii[1])
		require.NoError(t, err)

		want := applyAcross(t, k, img, dims, 1)
		for _, workers := range []int{2, 3, 4, 7} {
			assert.Equal(t, want, applyAcross(t, k, img, dims, workers),
				"radii %v with %d workers", radii, workers)
		}
	}
}

func TestAveragingNeighbourhood(t *testing.T) {
	// With radius (1, 1) the only candidate is the up-left neighbour.
	dims := partition.Dims{Width: 3, Height: 2}
	img := []byte{
		0, 0, 0, 30, 60, 90, 100, 100, 100,
		9, 9, 9, 9, 9, 9, 9, 9, 9,
	}
	k, err := NewAveraging(1, 1)
	require.NoError(t, err)

	got := applyAcross(t, k, img, dims, 1)
	want := []byte{
		0, 0, 0, 30, 60, 90, 100, 100, 100,
		9, 9, 9, 0, 0, 0, 30, 60, 90,
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, applyAcross(t, k, img, dims, 2))
}

func TestAveragingMean(t *testing.T) {
	dims := partition.Dims{Width: 3, Height: 3}
	img := uniformImage(dims, 0, 0, 0)
	// Neighbourhood of (2, 2) with radius (2, 2) is the whole image.
	copy(img[partition.ToBytes(0):], []byte{10, 1, 0})
	copy(img[partition.ToBytes(1):], []byte{20, 2, 0})
	copy(img[partition.ToBytes(3):], []byte{30, 3, 0})
	copy(img[partition.ToBytes(4):], []byte{41, 5, 255})

	k, err := NewAveraging(2, 2)
	require.NoError(t, err)
	got := applyAcross(t, k, img, dims, 1)
	assert.Equal(t, []byte{11, 1, 28}, got[partition.ToBytes(8):])
}

func TestAveragingHugeRadiusCoversImage(t *testing.T) {
	dims := partition.Dims{Width: 4, Height: 4}
	img := randomImage(dims, 11)

	var sum [partition.ChannelDepth]int
	for i, v := range img {
		sum[i%partition.ChannelDepth] += int(v)
	}
	mean := make([]byte, partition.ChannelDepth)
	for c := range sum {
		mean[c] = byte(sum[c] / dims.Pixels())
	}

	k, err := NewAveraging(1<<40, 1<<40)
	require.NoError(t, err)
	p := partition.Partition{Offset: 0, Count: dims.Pixels()}
	region, err := k.Region(p, dims)
	require.NoError(t, err)
	unit, err := partition.NewWorkUnit(img, region, p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	type outcome struct {
		out []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := k.Apply(ctx, identity{}, unit, dims)
		done <- outcome{out, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		for i := range dims.Pixels() {
			assert.Equal(t, mean, res.out[partition.ToBytes(i):partition.ToBytes(i+1)], "pixel %d", i)
		}
	case <-ctx.Done():
		t.Fatal("averaging with a huge radius did not finish")
	}

	// split across ranks the halo still spans the whole image
	assert.Equal(t, applyAcross(t, k, img, dims, 1), applyAcross(t, k, img, dims, 3))
}

func TestAveragingValidate(t *testing.T) {
	_, err := NewAveraging(-1, 0)
	assert.ErrorIs(t, err, partition.ErrInvalidConfiguration)
	_, err = NewAveraging(0, -3)
	assert.ErrorIs(t, err, partition.ErrInvalidConfiguration)
}

func TestAveragingHonoursCancellation(t *testing.T) {
	dims := partition.Dims{Width: 4, Height: 4}
	p := partition.Partition{Offset: 0, Count: dims.Pixels()}
	k := &Averaging{XRadius: 1, YRadius: 1}
	region, err := k.Region(p, dims)
	require.NoError(t, err)
	unit, err := partition.NewWorkUnit(randomImage(dims, 3), region, p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.Apply(ctx, identity{}, unit, dims)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThresholdTwoPixels(t *testing.T) {
	dims := partition.Dims{Width: 2, Height: 1}
	img := []byte{0, 0, 0, 255, 255, 255}

	for _, workers := range []int{1, 2, 3} {
		got := applyAcross(t, NewThreshold(), img, dims, workers)
		assert.Equal(t, []byte{0, 0, 0, 255, 255, 255}, got, "%d workers", workers)
	}
}

func TestThresholdEqualToMeanIsBlack(t *testing.T) {
	dims := partition.Dims{Width: 3, Height: 1}
	img := uniformImage(dims, 80, 80, 80)

	got := applyAcross(t, NewThreshold(), img, dims, 1)
	assert.Equal(t, make([]byte, len(img)), got)
}

func TestThresholdIndependentOfWorkerCount(t *testing.T) {
	dims := partition.Dims{Width: 12, Height: 7}
	img := make([]byte, partition.ToBytes(dims.Pixels()))
	for i := 0; i < dims.Pixels(); i++ {
		v := byte(20)
		if i%3 == 0 || i%7 == 0 {
			v = 220
		}
		img[partition.ToBytes(i)], img[partition.ToBytes(i)+1], img[partition.ToBytes(i)+2] = v, v/2, v
	}

	want := applyAcross(t, NewThreshold(), img, dims, 1)
	for _, workers := range []int{2, 4, 5, 9} {
		assert.Equal(t, want, applyAcross(t, NewThreshold(), img, dims, workers), "%d workers", workers)
	}
}

func TestThresholdRegionIsPartition(t *testing.T) {
	dims := partition.Dims{Width: 5, Height: 5}
	region, err := NewThreshold().Region(partition.Partition{Offset: 7, Count: 4}, dims)
	require.NoError(t, err)
	assert.Equal(t, partition.Halo{Start: 7, Count: 4}, region)

	_, err = NewThreshold().Region(partition.Partition{Offset: 24, Count: 4}, dims)
	assert.ErrorIs(t, err, partition.ErrInvalidConfiguration)
}

func TestIntensities(t *testing.T) {
	assert.Equal(t, []float64{0, 255, 20}, Intensities([]byte{0, 0, 0, 255, 255, 255, 10, 20, 30}))
}
