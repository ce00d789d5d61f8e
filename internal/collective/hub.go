package collective

import (
	"context"
	"fmt"
	"sync"
)

// Hub is the rendezvous point of a group. Ranks number their collective
// calls; a round completes when every rank has contributed to the same
// sequence number, at which point all results are computed at once.
type Hub struct {
	size int

	mu     sync.Mutex
	rounds map[uint64]*round
}

type round struct {
	op   Op
	root int

	contribs  []*Contribution
	arrived   int
	collected int

	done    chan struct{}
	results []Result
	err     error
}

// NewHub creates a hub for size ranks.
func NewHub(size int) *Hub {
	return &Hub{
		size:   size,
		rounds: make(map[uint64]*round),
	}
}

// Size returns the number of ranks in the group.
func (h *Hub) Size() int {
	return h.size
}

// Exchange enters round seq on behalf of rank.
func (h *Hub) Exchange(ctx context.Context, rank int, seq uint64, c Contribution) (Result, error) {
	if rank < 0 || rank >= h.size {
		return Result{}, fmt.Errorf("%w: rank %d outside group of %d", ErrProtocol, rank, h.size)
	}

	h.mu.Lock()
	r, ok := h.rounds[seq]
	if !ok {
		r = &round{
			op:       c.Op,
			root:     c.Root,
			contribs: make([]*Contribution, h.size),
			done:     make(chan struct{}),
		}
		h.rounds[seq] = r
	}
	switch {
	case r.contribs[rank] != nil:
		h.mu.Unlock()
		return Result{}, fmt.Errorf("%w: rank %d entered round %d twice", ErrProtocol, rank, seq)
	case c.Op != r.op || c.Root != r.root:
		if r.err == nil {
			r.err = fmt.Errorf("%w: round %d: rank %d called %s(root=%d), others %s(root=%d)",
				ErrProtocol, seq, rank, c.Op, c.Root, r.op, r.root)
		}
	}
	r.contribs[rank] = &c
	r.arrived++
	if r.arrived == h.size {
		if r.err == nil {
			r.results, r.err = complete(r.op, r.root, r.contribs)
		}
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		h.leave(seq, r)
		return Result{}, ctx.Err()
	}
	h.leave(seq, r)

	if r.err != nil {
		return Result{}, r.err
	}
	return r.results[rank], nil
}

// leave records that one rank has stopped waiting on r, by result or by
// cancellation. The round is dropped once every rank has left it.
func (h *Hub) leave(seq uint64, r *round) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.collected++
	if r.collected == h.size {
		delete(h.rounds, seq)
	}
}

// Pending returns the number of rounds that have not been fully collected.
// A round some rank never entered stays pending; the group is broken at
// that point and the hub is discarded with it.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rounds)
}

func complete(op Op, root int, contribs []*Contribution) ([]Result, error) {
	size := len(contribs)
	if root < 0 || root >= size {
		return nil, fmt.Errorf("%w: %s root %d outside group of %d", ErrProtocol, op, root, size)
	}
	results := make([]Result, size)

	switch op {
	case OpBroadcast:
		for i := range results {
			results[i].Int = contribs[root].Int
		}

	case OpGather:
		ints := make([]int64, size)
		for i, c := range contribs {
			ints[i] = c.Int
		}
		results[root].Ints = ints

	case OpScatterV:
		src := contribs[root]
		if err := checkLayout(op, src.Counts, src.Offsets, size, len(src.Payload)); err != nil {
			return nil, err
		}
		for i, c := range contribs {
			if c.RecvCount != src.Counts[i] {
				return nil, fmt.Errorf("%w: scatterv: rank %d expects %d bytes, root sends %d",
					ErrProtocol, i, c.RecvCount, src.Counts[i])
			}
			part := make([]byte, src.Counts[i])
			copy(part, src.Payload[src.Offsets[i]:])
			results[i].Payload = part
		}

	case OpGatherV:
		dst := contribs[root]
		if err := checkLayout(op, dst.Counts, dst.Offsets, size, -1); err != nil {
			return nil, err
		}
		total := 0
		for i, c := range contribs {
			if len(c.Payload) != dst.Counts[i] {
				return nil, fmt.Errorf("%w: gatherv: rank %d sent %d bytes, root expects %d",
					ErrProtocol, i, len(c.Payload), dst.Counts[i])
			}
			total = max(total, dst.Offsets[i]+dst.Counts[i])
		}
		out := make([]byte, total)
		for i, c := range contribs {
			copy(out[dst.Offsets[i]:], c.Payload)
		}
		results[root].Payload = out

	case OpAllReduceSum:
		var sum float64
		for _, c := range contribs {
			sum += c.Float
		}
		for i := range results {
			results[i].Float = sum
		}

	default:
		return nil, fmt.Errorf("%w: unknown operation %s", ErrProtocol, op)
	}

	return results, nil
}

// checkLayout validates per-rank counts and offsets. A negative limit skips
// the bounds check against the source buffer.
func checkLayout(op Op, counts, offsets []int, size, limit int) error {
	if len(counts) != size || len(offsets) != size {
		return fmt.Errorf("%w: %s: %d counts and %d offsets for %d ranks",
			ErrProtocol, op, len(counts), len(offsets), size)
	}
	for i := range counts {
		if counts[i] < 0 || offsets[i] < 0 {
			return fmt.Errorf("%w: %s: rank %d has count %d offset %d", ErrProtocol, op, i, counts[i], offsets[i])
		}
		if limit >= 0 && offsets[i]+counts[i] > limit {
			return fmt.Errorf("%w: %s: rank %d range [%d, %d) exceeds %d bytes",
				ErrProtocol, op, i, offsets[i], offsets[i]+counts[i], limit)
		}
	}
	return nil
}
