package collective

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Member implements Channel for one rank on top of an Exchanger. It numbers
// the rank's calls so that every rank's n-th call meets in round n.
type Member struct {
	ex     Exchanger
	rank   int
	size   int
	seq    atomic.Uint64
	closed atomic.Bool
	onStop func() error
}

// NewMember binds rank of a size-rank group to ex. onStop, if non-nil, runs
// once on Close.
func NewMember(ex Exchanger, rank, size int, onStop func() error) *Member {
	return &Member{ex: ex, rank: rank, size: size, onStop: onStop}
}

func (m *Member) Rank() int { return m.rank }
func (m *Member) Size() int { return m.size }

func (m *Member) exchange(ctx context.Context, c Contribution) (Result, error) {
	if m.closed.Load() {
		return Result{}, ErrClosed
	}
	seq := m.seq.Add(1)
	res, err := m.ex.Exchange(ctx, m.rank, seq, c)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", c.Op, err)
	}
	return res, nil
}

func (m *Member) Broadcast(ctx context.Context, value int64, root int) (int64, error) {
	res, err := m.exchange(ctx, Contribution{Op: OpBroadcast, Root: root, Int: value})
	return res.Int, err
}

func (m *Member) Gather(ctx context.Context, value int64, root int) ([]int64, error) {
	res, err := m.exchange(ctx, Contribution{Op: OpGather, Root: root, Int: value})
	return res.Ints, err
}

func (m *Member) ScatterV(ctx context.Context, send []byte, counts, offsets []int, recvCount, root int) ([]byte, error) {
	c := Contribution{Op: OpScatterV, Root: root, RecvCount: recvCount}
	if m.rank == root {
		c.Payload, c.Counts, c.Offsets = send, counts, offsets
	}
	res, err := m.exchange(ctx, c)
	return res.Payload, err
}

func (m *Member) GatherV(ctx context.Context, send []byte, counts, offsets []int, root int) ([]byte, error) {
	c := Contribution{Op: OpGatherV, Root: root, Payload: send}
	if m.rank == root {
		c.Counts, c.Offsets = counts, offsets
	}
	res, err := m.exchange(ctx, c)
	return res.Payload, err
}

func (m *Member) AllReduceSum(ctx context.Context, value float64) (float64, error) {
	res, err := m.exchange(ctx, Contribution{Op: OpAllReduceSum, Float: value})
	return res.Float, err
}

// Close stops the member. Further operations fail with ErrClosed.
func (m *Member) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.onStop != nil {
		return m.onStop()
	}
	return nil
}
