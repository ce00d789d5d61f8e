package filter

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
)

// Threshold turns each pixel white when its intensity, the mean of its
// three samples, is strictly above the image's mean intensity and black
// otherwise.
type Threshold struct{}

// NewThreshold returns a threshold kernel.
func NewThreshold() *Threshold {
	return &Threshold{}
}

func (k *Threshold) Name() string { return "threshold" }

func (k *Threshold) Validate() error { return nil }

func (k *Threshold) Region(p partition.Partition, dims partition.Dims) (partition.Halo, error) {
	if err := dims.Validate(); err != nil {
		return partition.Halo{}, err
	}
	if p.Offset < 0 || p.Count < 0 || p.End() > dims.Pixels() {
		return partition.Halo{}, fmt.Errorf("%w: partition [%d, %d) outside [0, %d)",
			partition.ErrInvalidConfiguration, p.Offset, p.End(), dims.Pixels())
	}
	return partition.Exact(p), nil
}

func (k *Threshold) Apply(ctx context.Context, r Reducer, unit partition.WorkUnit, dims partition.Dims) ([]byte, error) {
	intensity := Intensities(unit.Workspace())
	partial := floats.Sum(intensity) / float64(dims.Pixels())

	mean, err := r.AllReduceSum(ctx, partial)
	if err != nil {
		return nil, fmt.Errorf("reduce mean intensity: %w", err)
	}

	out := make([]byte, partition.ToBytes(unit.Partition.Count))
	for i, v := range intensity {
		if v <= mean {
			continue
		}
		px := out[partition.ToBytes(i):partition.ToBytes(i+1)]
		for c := range px {
			px[c] = 255
		}
	}
	return out, nil
}

// Intensities returns (r+g+b)/3 for every pixel of samples.
func Intensities(samples []byte) []float64 {
	out := make([]float64, len(samples)/partition.ChannelDepth)
	for i := range out {
		px := samples[partition.ToBytes(i):]
		out[i] = (float64(px[0]) + float64(px[1]) + float64(px[2])) / 3.0
	}
	return out
}
