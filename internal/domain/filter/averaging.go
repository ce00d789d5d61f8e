package filter

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
)

// Averaging replaces every pixel by the per-channel mean of its
// neighbourhood. Neighbours are taken from [x-XRadius, x+XRadius) and
// [y-YRadius, y+YRadius); the upper bounds are exclusive. Neighbours
// outside the image row or the received region are skipped, and a pixel
// with no neighbours keeps its value.
type Averaging struct {
	XRadius int
	YRadius int
}

// NewAveraging returns a validated averaging kernel.
func NewAveraging(xRadius, yRadius int) (*Averaging, error) {
	k := &Averaging{XRadius: xRadius, YRadius: yRadius}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Averaging) Name() string { return "average" }

func (k *Averaging) Validate() error {
	if k.XRadius < 0 || k.YRadius < 0 {
		return fmt.Errorf("%w: radii (%d, %d) must be non-negative",
			partition.ErrInvalidConfiguration, k.XRadius, k.YRadius)
	}
	return nil
}

func (k *Averaging) Region(p partition.Partition, dims partition.Dims) (partition.Halo, error) {
	return partition.HaloFor(p, dims, k.XRadius, k.YRadius)
}

func (k *Averaging) Apply(ctx context.Context, _ Reducer, unit partition.WorkUnit, dims partition.Dims) ([]byte, error) {
	w := dims.Width
	lo, hi := unit.Region.Start, unit.Region.End()
	out := make([]byte, partition.ToBytes(unit.Partition.Count))

	for i := range unit.Partition.Count {
		if i%cancelStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		abs := unit.Partition.Offset + i
		x, y := abs%w, abs/w

		var sum [partition.ChannelDepth]int
		n := 0
		x0, x1 := window(x, k.XRadius, 0, w)
		y0, y1 := window(y, k.YRadius, lo/w, (hi+w-1)/w)
		for ys := y0; ys < y1; ys++ {
			for xs := x0; xs < x1; xs++ {
				idx := ys*w + xs
				if idx < lo || idx >= hi {
					continue
				}
				px := unit.Pixel(idx)
				for c := range sum {
					sum[c] += int(px[c])
				}
				n++
			}
		}

		dst := out[partition.ToBytes(i):partition.ToBytes(i+1)]
		if n == 0 {
			copy(dst, unit.Pixel(abs))
			continue
		}
		for c := range sum {
			dst[c] = byte(sum[c] / n)
		}
	}
	return out, nil
}

// window returns [c-r, c+r) clipped to [lo, hi) without overflowing for
// any non-negative r.
func window(c, r, lo, hi int) (int, int) {
	from, to := lo, hi
	if r < c-lo {
		from = c - r
	}
	if r < hi-c {
		to = c + r
	}
	return from, to
}
