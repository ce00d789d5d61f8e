package collective

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/monitoring"
)

// Instrumented wraps a Channel with metrics and debug logging.
type Instrumented struct {
	Channel
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// Instrument decorates ch. A nil metrics collector disables recording.
func Instrument(ch Channel, metrics *monitoring.Metrics, logger *logging.Logger) *Instrumented {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Instrumented{Channel: ch, metrics: metrics, logger: logger}
}

func (c *Instrumented) record(op Op, start time.Time, sent, received int, err error) {
	d := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		c.logger.Warn("Collective failed", zap.Stringer("op", op), zap.Duration("waited", d), zap.Error(err))
	} else {
		c.logger.Debug("Collective done", zap.Stringer("op", op), zap.Duration("waited", d),
			zap.Int("sent", sent), zap.Int("received", received))
	}
	if c.metrics != nil {
		c.metrics.RecordCollective(op.String(), status, d, sent, received)
	}
}

func (c *Instrumented) Broadcast(ctx context.Context, value int64, root int) (int64, error) {
	start := time.Now()
	v, err := c.Channel.Broadcast(ctx, value, root)
	c.record(OpBroadcast, start, 0, 0, err)
	return v, err
}

func (c *Instrumented) Gather(ctx context.Context, value int64, root int) ([]int64, error) {
	start := time.Now()
	v, err := c.Channel.Gather(ctx, value, root)
	c.record(OpGather, start, 0, 0, err)
	return v, err
}

func (c *Instrumented) ScatterV(ctx context.Context, send []byte, counts, offsets []int, recvCount, root int) ([]byte, error) {
	start := time.Now()
	out, err := c.Channel.ScatterV(ctx, send, counts, offsets, recvCount, root)
	sent := 0
	if c.Rank() == root {
		sent = len(send)
	}
	c.record(OpScatterV, start, sent, len(out), err)
	return out, err
}

func (c *Instrumented) GatherV(ctx context.Context, send []byte, counts, offsets []int, root int) ([]byte, error) {
	start := time.Now()
	out, err := c.Channel.GatherV(ctx, send, counts, offsets, root)
	c.record(OpGatherV, start, len(send), len(out), err)
	return out, err
}

func (c *Instrumented) AllReduceSum(ctx context.Context, value float64) (float64, error) {
	start := time.Now()
	v, err := c.Channel.AllReduceSum(ctx, value)
	c.record(OpAllReduceSum, start, 0, 0, err)
	return v, err
}
