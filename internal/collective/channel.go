package collective

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a round in which the ranks disagreed about the
	// operation, its root, or the sizes being moved. It indicates a
	// coordination bug and is not recoverable within a run.
	ErrProtocol = errors.New("collective protocol error")
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("collective channel closed")
)

// Channel is a rank's handle on a synchronous group. Every operation blocks
// until all ranks have entered it, and all ranks must issue operations in
// the same order.
type Channel interface {
	Rank() int
	Size() int

	// Broadcast returns root's value on every rank.
	Broadcast(ctx context.Context, value int64, root int) (int64, error)
	// Gather collects one value per rank at root, in rank order. Other
	// ranks receive nil.
	Gather(ctx context.Context, value int64, root int) ([]int64, error)
	// ScatterV hands each rank counts[rank] bytes of send starting at
	// offsets[rank]. send, counts and offsets are read on root only;
	// recvCount is the size the calling rank expects.
	ScatterV(ctx context.Context, send []byte, counts, offsets []int, recvCount, root int) ([]byte, error)
	// GatherV places each rank's send at offsets[rank] of root's result.
	// counts and offsets are read on root only. Other ranks receive nil.
	GatherV(ctx context.Context, send []byte, counts, offsets []int, root int) ([]byte, error)
	// AllReduceSum returns the sum of every rank's value on every rank.
	AllReduceSum(ctx context.Context, value float64) (float64, error)

	Close() error
}

// Op identifies a collective operation.
type Op uint8

const (
	OpBroadcast Op = iota + 1
	OpGather
	OpScatterV
	OpGatherV
	OpAllReduceSum
)

// String returns the operation name used in logs and metrics.
func (o Op) String() string {
	switch o {
	case OpBroadcast:
		return "broadcast"
	case OpGather:
		return "gather"
	case OpScatterV:
		return "scatterv"
	case OpGatherV:
		return "gatherv"
	case OpAllReduceSum:
		return "allreduce_sum"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Contribution is what one rank brings into a round.
type Contribution struct {
	Op        Op
	Root      int
	Int       int64
	Float     float64
	Payload   []byte
	Counts    []int
	Offsets   []int
	RecvCount int
}

// Result is what one rank takes out of a completed round.
type Result struct {
	Int     int64
	Ints    []int64
	Float   float64
	Payload []byte
}

// Exchanger delivers one rank's contribution to round seq and waits for the
// round to complete.
type Exchanger interface {
	Exchange(ctx context.Context, rank int, seq uint64, c Contribution) (Result, error)
}
