package partition

import "fmt"

// WorkUnit is what a rank holds after scatter: the received samples, the
// absolute region they cover, and the partition it must produce.
type WorkUnit struct {
	Slice     []byte
	Region    Halo
	Partition Partition
	// Inner is the partition offset relative to the start of Slice, in pixels.
	Inner int
}

// NewWorkUnit checks that slice holds exactly region and that region covers p.
func NewWorkUnit(slice []byte, region Halo, p Partition) (WorkUnit, error) {
	if len(slice) != ToBytes(region.Count) {
		return WorkUnit{}, fmt.Errorf("%w: slice of %d bytes does not match region of %d pixels",
			ErrInvalidConfiguration, len(slice), region.Count)
	}
	if p.Count > 0 && !region.Contains(p) {
		return WorkUnit{}, fmt.Errorf("%w: region [%d, %d) does not contain partition [%d, %d)",
			ErrInvalidConfiguration, region.Start, region.End(), p.Offset, p.End())
	}
	return WorkUnit{
		Slice:     slice,
		Region:    region,
		Partition: p,
		Inner:     p.Offset - region.Start,
	}, nil
}

// Pixel returns the samples of the absolute pixel index abs, which must lie
// inside the region.
func (u WorkUnit) Pixel(abs int) []byte {
	i := ToBytes(abs - u.Region.Start)
	return u.Slice[i : i+ChannelDepth]
}

// Workspace returns the samples of the partition itself.
func (u WorkUnit) Workspace() []byte {
	start := ToBytes(u.Inner)
	return u.Slice[start : start+ToBytes(u.Partition.Count)]
}
