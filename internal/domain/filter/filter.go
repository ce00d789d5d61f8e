package filter

import (
	"context"

	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
)

// Reducer sums a value across every rank of the group.
type Reducer interface {
	AllReduceSum(ctx context.Context, value float64) (float64, error)
}

// Kernel is a transform applied independently by each rank.
type Kernel interface {
	// Name identifies the kernel in logs, metrics and reports.
	Name() string
	// Validate checks the kernel parameters.
	Validate() error
	// Region returns the pixels a rank must receive to produce p.
	Region(p partition.Partition, dims partition.Dims) (partition.Halo, error)
	// Apply returns the output samples for unit.Partition, exactly
	// ToBytes(unit.Partition.Count) long.
	Apply(ctx context.Context, r Reducer, unit partition.WorkUnit, dims partition.Dims) ([]byte, error)
}

// cancelStride is how many pixels a kernel processes between context checks.
const cancelStride = 1 << 14
