package partition

import (
	"errors"
	"fmt"
)

// ChannelDepth is the number of interleaved samples per pixel.
const ChannelDepth = 3

// ErrInvalidConfiguration is returned for partition or halo parameters that
// cannot describe a valid split of the pixel index space.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// RunContext identifies the calling rank within a fixed worker group.
type RunContext struct {
	Rank    int
	Workers int
}

// Validate checks that the rank lies inside the group.
func (rc RunContext) Validate() error {
	if rc.Workers <= 0 {
		return fmt.Errorf("%w: worker count %d must be positive", ErrInvalidConfiguration, rc.Workers)
	}
	if rc.Rank < 0 || rc.Rank >= rc.Workers {
		return fmt.Errorf("%w: rank %d outside [0, %d)", ErrInvalidConfiguration, rc.Rank, rc.Workers)
	}
	return nil
}

// IsCoordinator reports whether the rank performs I/O for the group.
func (rc RunContext) IsCoordinator() bool {
	return rc.Rank == Coordinator
}

// Coordinator is the rank that loads and persists the buffer.
const Coordinator = 0

// Dims holds image dimensions in pixels.
type Dims struct {
	Width  int
	Height int
}

// Pixels returns W·H.
func (d Dims) Pixels() int {
	return d.Width * d.Height
}

// Validate rejects empty or negative dimensions.
func (d Dims) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidConfiguration, d.Width, d.Height)
	}
	return nil
}

// Partition is the contiguous range of pixels a rank produces output for.
type Partition struct {
	Offset int
	Count  int
}

// End returns the first pixel index past the partition.
func (p Partition) End() int {
	return p.Offset + p.Count
}

// Bytes returns the partition's offset and count scaled to samples.
func (p Partition) Bytes() (offset, count int) {
	return ToBytes(p.Offset), ToBytes(p.Count)
}

// Compute splits n pixels across rc.Workers ranks. The first n%Workers ranks
// receive one extra pixel.
func Compute(rc RunContext, n int) (Partition, error) {
	if err := rc.Validate(); err != nil {
		return Partition{}, err
	}
	if n < 0 {
		return Partition{}, fmt.Errorf("%w: element count %d is negative", ErrInvalidConfiguration, n)
	}

	q := n / rc.Workers
	r := n % rc.Workers

	p := Partition{
		Offset: rc.Rank*q + min(rc.Rank, r),
		Count:  q,
	}
	if rc.Rank < r {
		p.Count++
	}
	return p, nil
}

// Plan returns the partition of every rank in rank order.
func Plan(workers, n int) ([]Partition, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: worker count %d must be positive", ErrInvalidConfiguration, workers)
	}
	plan := make([]Partition, workers)
	for rank := range plan {
		p, err := Compute(RunContext{Rank: rank, Workers: workers}, n)
		if err != nil {
			return nil, err
		}
		plan[rank] = p
	}
	return plan, nil
}

// ToBytes converts a pixel index or count to a sample index or count.
func ToBytes(pixels int) int {
	return pixels * ChannelDepth
}

// ToPixels converts a sample count to whole pixels. Partial pixels are an
// error because every collective boundary is pixel aligned.
func ToPixels(bytes int) (int, error) {
	if bytes < 0 || bytes%ChannelDepth != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of pixels", ErrInvalidConfiguration, bytes)
	}
	return bytes / ChannelDepth, nil
}
