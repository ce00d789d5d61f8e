package collective

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/monitoring"
)

// runGroup drives every member of a local group with fn and returns each
// rank's error.
func runGroup(t *testing.T, n int, fn func(ctx context.Context, ch Channel) error) []error {
	t.Helper()
	members, err := NewLocalGroup(n)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make([]error, n)
	var wg sync.WaitGroup
	for rank, ch := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[rank] = fn(ctx, ch)
		}()
	}
	wg.Wait()
	return errs
}

func TestBroadcast(t *testing.T) {
	got := make([]int64, 4)
	errs := runGroup(t, 4, func(ctx context.Context, ch Channel) error {
		v, err := ch.Broadcast(ctx, int64(100+ch.Rank()), 2)
		got[ch.Rank()] = v
		return err
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{102, 102, 102, 102}, got)
}

func TestGather(t *testing.T) {
	got := make([][]int64, 3)
	errs := runGroup(t, 3, func(ctx context.Context, ch Channel) error {
		v, err := ch.Gather(ctx, int64(ch.Rank()*ch.Rank()), 0)
		got[ch.Rank()] = v
		return err
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{0, 1, 4}, got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])
}

func TestScatterThenGatherV(t *testing.T) {
	src := []byte("abcdefghijklmnopq")
	counts := []int{6, 3, 0, 8}
	offsets := []int{0, 6, 9, 9}

	var out []byte
	slices := make([][]byte, 4)
	errs := runGroup(t, 4, func(ctx context.Context, ch Channel) error {
		var send []byte
		if ch.Rank() == 0 {
			send = src
		}
		part, err := ch.ScatterV(ctx, send, counts, offsets, counts[ch.Rank()], 0)
		if err != nil {
			return err
		}
		slices[ch.Rank()] = part

		res, err := ch.GatherV(ctx, part, counts, offsets, 0)
		if ch.Rank() == 0 {
			out = res
		}
		return err
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []byte("abcdef"), slices[0])
	assert.Equal(t, []byte("ghi"), slices[1])
	assert.Empty(t, slices[2])
	assert.Equal(t, []byte("jklmnopq"), slices[3])
	assert.Equal(t, src, out)
}

func TestScatterVCopiesPayload(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	errs := runGroup(t, 2, func(ctx context.Context, ch Channel) error {
		part, err := ch.ScatterV(ctx, src, []int{2, 2}, []int{0, 2}, 2, 0)
		if err != nil {
			return err
		}
		part[0] = 99
		return nil
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, src)
}

func TestAllReduceSum(t *testing.T) {
	got := make([]float64, 5)
	errs := runGroup(t, 5, func(ctx context.Context, ch Channel) error {
		v, err := ch.AllReduceSum(ctx, float64(ch.Rank())+0.5)
		got[ch.Rank()] = v
		return err
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, v := range got {
		assert.Equal(t, 12.5, v)
	}
}

func TestProtocolErrorsReachEveryRank(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, ch Channel) error
	}{
		{
			name: "mismatched operation",
			fn: func(ctx context.Context, ch Channel) error {
				if ch.Rank() == 1 {
					_, err := ch.AllReduceSum(ctx, 1)
					return err
				}
				_, err := ch.Broadcast(ctx, 1, 0)
				return err
			},
		},
		{
			name: "mismatched root",
			fn: func(ctx context.Context, ch Channel) error {
				_, err := ch.Broadcast(ctx, 1, ch.Rank()%2)
				return err
			},
		},
		{
			name: "scatter size disagreement",
			fn: func(ctx context.Context, ch Channel) error {
				want := 2
				if ch.Rank() == 2 {
					want = 3
				}
				_, err := ch.ScatterV(ctx, make([]byte, 6), []int{2, 2, 2}, []int{0, 2, 4}, want, 0)
				return err
			},
		},
		{
			name: "scatter beyond source",
			fn: func(ctx context.Context, ch Channel) error {
				_, err := ch.ScatterV(ctx, make([]byte, 4), []int{2, 2, 2}, []int{0, 2, 4}, 2, 0)
				return err
			},
		},
		{
			name: "gather payload disagreement",
			fn: func(ctx context.Context, ch Channel) error {
				_, err := ch.GatherV(ctx, make([]byte, ch.Rank()), []int{1, 1, 1}, []int{0, 1, 2}, 0)
				return err
			},
		},
		{
			name: "root outside group",
			fn: func(ctx context.Context, ch Channel) error {
				_, err := ch.Gather(ctx, 0, 7)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := runGroup(t, 3, tt.fn)
			for rank, err := range errs {
				assert.ErrorIs(t, err, ErrProtocol, "rank %d", rank)
			}
		})
	}
}

func TestSequentialRoundsAreReleased(t *testing.T) {
	members, err := NewLocalGroup(3)
	require.NoError(t, err)
	hub := members[0].(*Member).ex.(*Hub)

	g, ctx := errgroup.WithContext(context.Background())
	for _, ch := range members {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if _, err := ch.AllReduceSum(ctx, 1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, hub.Pending())
}

func TestCancelledContextUnblocksLoneRank(t *testing.T) {
	members, err := NewLocalGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = members[0].Broadcast(ctx, 1, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledRankStillReleasesRound(t *testing.T) {
	members, err := NewLocalGroup(2)
	require.NoError(t, err)
	hub := members[0].(*Member).ex.(*Hub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = members[0].AllReduceSum(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, hub.Pending())

	sum, err := members[1].AllReduceSum(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, sum)
	assert.Zero(t, hub.Pending())
}

func TestClosedMember(t *testing.T) {
	members, err := NewLocalGroup(1)
	require.NoError(t, err)

	require.NoError(t, members[0].Close())
	require.NoError(t, members[0].Close())

	_, err = members[0].Broadcast(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewLocalGroupRejectsEmpty(t *testing.T) {
	_, err := NewLocalGroup(0)
	assert.Error(t, err)
}

func TestInstrumentedRecordsMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	members, err := NewLocalGroup(1)
	require.NoError(t, err)
	ch := Instrument(members[0], metrics, nil)

	ctx := context.Background()
	_, err = ch.ScatterV(ctx, []byte{1, 2, 3}, []int{3}, []int{0}, 3, 0)
	require.NoError(t, err)
	_, err = ch.Broadcast(ctx, 1, 3)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollectiveCalls.WithLabelValues("scatterv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollectiveCalls.WithLabelValues("broadcast", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CollectiveBytes.WithLabelValues("scatterv", "sent")))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "scatterv", OpScatterV.String())
	assert.Equal(t, "op(42)", Op(42).String())
}
