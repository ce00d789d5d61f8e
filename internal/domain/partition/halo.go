package partition

import "fmt"

// Halo is the whole-row pixel range a rank receives so it can compute every
// pixel of its partition.
type Halo struct {
	Start int
	Count int
}

// End returns the first pixel index past the halo.
func (h Halo) End() int {
	return h.Start + h.Count
}

// Bytes returns the halo's start and count scaled to samples.
func (h Halo) Bytes() (start, count int) {
	return ToBytes(h.Start), ToBytes(h.Count)
}

// Contains reports whether the halo covers the partition.
func (h Halo) Contains(p Partition) bool {
	return h.Start <= p.Offset && h.End() >= p.End()
}

// Exact returns the halo that covers exactly the partition.
func Exact(p Partition) Halo {
	return Halo{Start: p.Offset, Count: p.Count}
}

// HaloFor extends the rows spanned by p by yRadius rows on each side,
// clamped to the image. The x radius does not widen the transfer: whole rows
// are sent and x clipping happens per pixel in the kernel.
func HaloFor(p Partition, dims Dims, xRadius, yRadius int) (Halo, error) {
	if err := dims.Validate(); err != nil {
		return Halo{}, err
	}
	if xRadius < 0 || yRadius < 0 {
		return Halo{}, fmt.Errorf("%w: radii (%d, %d) must be non-negative", ErrInvalidConfiguration, xRadius, yRadius)
	}
	n := dims.Pixels()
	if p.Offset < 0 || p.Count < 0 || p.End() > n {
		return Halo{}, fmt.Errorf("%w: partition [%d, %d) outside [0, %d)", ErrInvalidConfiguration, p.Offset, p.End(), n)
	}
	if p.Count == 0 {
		return Halo{Start: p.Offset}, nil
	}

	// radii beyond the image height reach the same rows
	yRadius = min(yRadius, dims.Height)
	startRow := p.Offset/dims.Width - yRadius
	endRow := (p.End()-1)/dims.Width + yRadius
	startRow = max(startRow, 0)
	endRow = min(endRow, dims.Height-1)

	return Halo{
		Start: startRow * dims.Width,
		Count: (endRow - startRow + 1) * dims.Width,
	}, nil
}
