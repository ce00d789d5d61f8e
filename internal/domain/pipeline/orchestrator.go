package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/domain/filter"
	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
	"github.com/GriffinCanCode/pixmesh/internal/imaging"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/pixmesh/internal/shared/id"
)

// ErrAborted is returned on every rank when the coordinator rejected a run
// before any pixel data moved. On the coordinator it wraps the cause.
var ErrAborted = errors.New("run aborted")

// Codec loads and stores whole images. Only the coordinator uses it.
type Codec interface {
	Load(path string) (*imaging.Buffer, error)
	Store(buf *imaging.Buffer, path string) error
}

// Options carries the orchestrator's optional collaborators.
type Options struct {
	Codec    Codec
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
	Logger   *logging.Logger
	Observer Observer
}

// Orchestrator drives one rank through a run. Every rank of the group runs
// its own orchestrator with the same kernel.
type Orchestrator struct {
	ch       collective.Channel
	kernel   filter.Kernel
	codec    Codec
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	logger   *logging.Logger
	observer Observer
	rc       partition.RunContext
}

// Phase is the time one rank spent in one step of a run.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Result describes one finished run on one rank. Input, Output and
// MeanIntensity are only known on the coordinator.
type Result struct {
	RunID         id.RunID
	Kernel        string
	Input         string
	Output        string
	Rank          int
	Workers       int
	Dims          partition.Dims
	State         State
	Phases        []Phase
	Elapsed       time.Duration
	MeanIntensity float64
	Err           error
}

// New creates an orchestrator for the rank behind ch.
func New(ch collective.Channel, kernel filter.Kernel, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		ch:       ch,
		kernel:   kernel,
		codec:    opts.Codec,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   logger.ForRank(ch.Rank(), ch.Size()),
		observer: opts.Observer,
		rc:       partition.RunContext{Rank: ch.Rank(), Workers: ch.Size()},
	}
}

// run holds the per-run state threaded through the steps.
type run struct {
	Result
	ctx    context.Context
	state  State
	logger *logging.Logger

	buf     *imaging.Buffer
	plan    []partition.Partition
	part    partition.Partition
	region  partition.Halo
	unit    partition.WorkUnit
	out     []byte
	layout  layout
	outBuf  *imaging.Buffer
	started time.Time
}

// layout is the coordinator's view of every rank's byte ranges.
type layout struct {
	partOffsets, partCounts     []int
	regionOffsets, regionCounts []int
}

// Run processes input into output. input and output are only read on the
// coordinator. A coordinator-side failure before the metadata broadcast
// aborts every rank with ErrAborted and no further collective is issued.
func (o *Orchestrator) Run(ctx context.Context, input, output string) (Result, error) {
	r := &run{
		Result: Result{
			RunID:   id.NewRunID(),
			Kernel:  o.kernel.Name(),
			Rank:    o.rc.Rank,
			Workers: o.rc.Workers,
		},
		started: time.Now(),
	}
	r.logger = o.logger.WithRun(r.RunID.String())
	if o.rc.IsCoordinator() {
		r.Input, r.Output = input, output
	}
	r.ctx = tracing.WithTraceID(ctx, tracing.TraceID(r.RunID))

	err := o.execute(r)
	r.Elapsed = time.Since(r.started)
	if err != nil {
		r.Err = err
		o.transition(r, Aborted)
		r.logger.Warn("Run aborted",
			zap.String("kernel", r.Kernel),
			zap.Error(err))
	}
	r.State = r.state
	if o.metrics != nil {
		o.metrics.RecordRun(r.Kernel, r.state.String(), err != nil)
	}
	return r.Result, err
}

func (o *Orchestrator) execute(r *run) error {
	var cause error
	if o.rc.IsCoordinator() {
		cause = o.phase(r, "load", func(context.Context) error { return o.prepare(r) })
		o.transition(r, Loaded)
	}

	var dims partition.Dims
	err := o.phase(r, "broadcast", func(ctx context.Context) error {
		flag := int64(0)
		if cause == nil {
			flag = 1
		}
		ok, err := o.ch.Broadcast(ctx, flag, partition.Coordinator)
		if err != nil {
			return err
		}
		// every rank consumes the flag, including on a rejected run
		o.transition(r, MetadataBroadcast)
		if ok == 0 {
			if cause != nil {
				return fmt.Errorf("%w: %w", ErrAborted, cause)
			}
			return fmt.Errorf("%w: coordinator rejected the run", ErrAborted)
		}

		var w, h int64
		if o.rc.IsCoordinator() {
			w, h = int64(r.buf.Width), int64(r.buf.Height)
		}
		if w, err = o.ch.Broadcast(ctx, w, partition.Coordinator); err != nil {
			return err
		}
		if h, err = o.ch.Broadcast(ctx, h, partition.Coordinator); err != nil {
			return err
		}
		dims = partition.Dims{Width: int(w), Height: int(h)}
		return nil
	})
	if err != nil {
		return err
	}
	r.Dims = dims

	if err := o.phase(r, "partition", func(ctx context.Context) error { return o.partition(ctx, r) }); err != nil {
		return err
	}
	o.transition(r, Partitioned)

	if err := o.phase(r, "scatter", func(ctx context.Context) error { return o.scatter(ctx, r) }); err != nil {
		return err
	}
	o.transition(r, Scattered)

	if err := o.phase(r, "compute", func(ctx context.Context) error { return o.compute(ctx, r) }); err != nil {
		return err
	}
	o.transition(r, Computed)

	if err := o.phase(r, "gather", func(ctx context.Context) error { return o.gather(ctx, r) }); err != nil {
		return err
	}
	o.transition(r, Gathered)

	if o.rc.IsCoordinator() {
		if err := o.phase(r, "store", func(context.Context) error { return o.store(r) }); err != nil {
			return err
		}
	}
	o.transition(r, Persisted)
	return nil
}

// prepare loads the image and checks everything the group will rely on, so
// that rejection happens before the success flag is broadcast.
func (o *Orchestrator) prepare(r *run) error {
	if o.codec == nil {
		return fmt.Errorf("%w: no codec configured on the coordinator", partition.ErrInvalidConfiguration)
	}
	if err := o.kernel.Validate(); err != nil {
		return err
	}
	buf, err := o.codec.Load(r.Input)
	if err != nil {
		return err
	}
	if err := buf.Validate(); err != nil {
		return err
	}

	dims := buf.Dims()
	plan, err := partition.Plan(o.rc.Workers, dims.Pixels())
	if err != nil {
		return err
	}
	for rank, p := range plan {
		region, err := o.kernel.Region(p, dims)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		if p.Count > 0 && !region.Contains(p) {
			return fmt.Errorf("%w: rank %d region [%d, %d) misses partition [%d, %d)",
				partition.ErrInvalidConfiguration, rank, region.Start, region.End(), p.Offset, p.End())
		}
	}

	r.buf, r.plan = buf, plan
	return nil
}

func (o *Orchestrator) partition(ctx context.Context, r *run) error {
	p, err := partition.Compute(o.rc, r.Dims.Pixels())
	if err != nil {
		return err
	}
	region, err := o.kernel.Region(p, r.Dims)
	if err != nil {
		return err
	}
	r.part, r.region = p, region

	partOff, partCnt := p.Bytes()
	regOff, regCnt := region.Bytes()
	gathered := make([][]int64, 4)
	for i, v := range []int{partOff, partCnt, regOff, regCnt} {
		if gathered[i], err = o.ch.Gather(ctx, int64(v), partition.Coordinator); err != nil {
			return err
		}
	}

	if o.rc.IsCoordinator() {
		r.layout = layout{
			partOffsets:   toInts(gathered[0]),
			partCounts:    toInts(gathered[1]),
			regionOffsets: toInts(gathered[2]),
			regionCounts:  toInts(gathered[3]),
		}
		for rank, want := range r.plan {
			off, cnt := want.Bytes()
			if r.layout.partOffsets[rank] != off || r.layout.partCounts[rank] != cnt {
				r.logger.Error("Rank reported a partition outside the plan",
					zap.Int("peer", rank),
					zap.Int("offset", r.layout.partOffsets[rank]),
					zap.Int("want_offset", off))
			}
		}
	}
	return nil
}

func (o *Orchestrator) scatter(ctx context.Context, r *run) error {
	var send []byte
	if o.rc.IsCoordinator() {
		send = r.buf.Pix
	}
	_, want := r.region.Bytes()
	slice, err := o.ch.ScatterV(ctx, send, r.layout.regionCounts, r.layout.regionOffsets, want, partition.Coordinator)
	if err != nil {
		return err
	}
	unit, err := partition.NewWorkUnit(slice, r.region, r.part)
	if err != nil {
		return fmt.Errorf("%w: %w", collective.ErrProtocol, err)
	}
	r.unit = unit
	return nil
}

func (o *Orchestrator) compute(ctx context.Context, r *run) error {
	timer := monitoring.NewTimer(o.metrics, o.kernel.Name())
	out, err := o.kernel.Apply(ctx, o.ch, r.unit, r.Dims)
	d := timer.Stop()
	if err != nil {
		return err
	}
	if _, want := r.part.Bytes(); len(out) != want {
		return fmt.Errorf("%w: kernel produced %d bytes for a %d byte partition",
			collective.ErrProtocol, len(out), want)
	}
	r.logger.Debug("Partition computed",
		zap.Int("offset", r.part.Offset),
		zap.Int("count", r.part.Count),
		zap.Duration("took", d))
	r.out = out
	return nil
}

func (o *Orchestrator) gather(ctx context.Context, r *run) error {
	pix, err := o.ch.GatherV(ctx, r.out, r.layout.partCounts, r.layout.partOffsets, partition.Coordinator)
	if err != nil {
		return err
	}
	if !o.rc.IsCoordinator() {
		return nil
	}
	outBuf := r.buf.Header()
	if len(pix) != len(outBuf.Pix) {
		return fmt.Errorf("%w: gathered %d bytes, want %d", collective.ErrProtocol, len(pix), len(outBuf.Pix))
	}
	outBuf.Pix = pix
	r.outBuf = outBuf
	return nil
}

func (o *Orchestrator) store(r *run) error {
	if err := o.codec.Store(r.outBuf, r.Output); err != nil {
		return err
	}
	r.MeanIntensity = stat.Mean(r.outBuf.Intensities(), nil)
	r.logger.Info("Output persisted",
		zap.String("output", r.Output),
		zap.Int("width", r.Dims.Width),
		zap.Int("height", r.Dims.Height))
	return nil
}

// phase runs fn inside a span and records its duration on the result.
func (o *Orchestrator) phase(r *run, name string, fn func(ctx context.Context) error) error {
	ctx := r.ctx
	var span *tracing.Span
	if o.tracer != nil {
		span, ctx = o.tracer.StartSpan(ctx, name)
		span.SetTag("rank", fmt.Sprint(o.rc.Rank))
		span.SetTag("kernel", o.kernel.Name())
	}

	start := time.Now()
	err := fn(ctx)
	r.Phases = append(r.Phases, Phase{Name: name, Duration: time.Since(start)})

	if span != nil {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
		o.tracer.Submit(span)
	}
	return err
}

func (o *Orchestrator) transition(r *run, to State) {
	from := r.state
	if from == to || from.Terminal() {
		return
	}
	r.state = to
	r.logger.Debug("State transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if o.metrics != nil {
		o.metrics.RecordTransition(to.String())
	}
	if o.observer != nil {
		o.observer(Transition{Rank: o.rc.Rank, From: from, To: to})
	}
}

func toInts(vs []int64) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}
