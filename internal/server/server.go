package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/domain/filter"
	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
	"github.com/GriffinCanCode/pixmesh/internal/domain/pipeline"
	transport "github.com/GriffinCanCode/pixmesh/internal/grpc/collective"
	"github.com/GriffinCanCode/pixmesh/internal/imaging/ppm"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/config"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/tracing"
)

const stopGrace = 5 * time.Second

// Options configures a Server. Config and Kernel are required.
type Options struct {
	Config *config.Config
	Kernel filter.Kernel
	Codec  pipeline.Codec
	Logger *logging.Logger

	// Registry receives the metrics; a fresh registry is used when nil.
	Registry *prometheus.Registry
	// ReportPath, when set, receives the coordinator's JSON run report.
	ReportPath string
	// Listener replaces the coordinator's TCP listener.
	Listener net.Listener
	// DialOptions are appended when a worker dials the coordinator.
	DialOptions []grpc.DialOption
}

// Server runs this process's ranks of a filter group and the coordinator's
// metrics endpoint.
type Server struct {
	cfg     *config.Config
	kernel  filter.Kernel
	codec   pipeline.Codec
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	opts    Options

	mu     sync.RWMutex
	status func() pipeline.Status
}

// NewServer validates the configuration and builds the shared
// dependencies.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", config.ErrInvalid)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Kernel == nil {
		return nil, fmt.Errorf("%w: no kernel", partition.ErrInvalidConfiguration)
	}
	if opts.Codec == nil {
		// rasters are bounded by the transport message limit
		opts.Codec = ppm.Codec{MaxPixels: opts.Config.Transport.MaxMessageBytes / partition.ChannelDepth}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	metrics := monitoring.NewMetrics(opts.Registry)
	metrics.SetGroupSize(opts.Config.Cluster.Workers)

	return &Server{
		cfg:     opts.Config,
		kernel:  opts.Kernel,
		codec:   opts.Codec,
		logger:  opts.Logger,
		metrics: metrics,
		tracer:  tracing.New("pixmesh", opts.Logger.Named("trace").Logger),
		opts:    opts,
	}, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Status reports the coordinator session's progress, or nil before it
// starts.
func (s *Server) Status() any {
	s.mu.RLock()
	fn := s.status
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// IsCoordinator reports whether this process hosts rank 0.
func (s *Server) IsCoordinator() bool {
	return s.cfg.Cluster.Transport == config.TransportLocal || s.cfg.Cluster.Rank == partition.Coordinator
}

// Run processes jobs on every rank this process hosts and returns the
// results of its lowest rank. jobs is only read by the coordinator.
func (s *Server) Run(ctx context.Context, jobs []pipeline.Job) ([]pipeline.Result, error) {
	if s.IsCoordinator() && s.cfg.Metrics.Enabled {
		stop := s.startMonitor()
		defer stop()
	}

	var (
		results []pipeline.Result
		err     error
	)
	switch {
	case s.cfg.Cluster.Transport == config.TransportLocal:
		results, err = s.runLocal(ctx, jobs)
	case s.cfg.Cluster.Rank == partition.Coordinator:
		results, err = s.runCoordinator(ctx, jobs)
	default:
		results, err = s.runWorker(ctx)
	}
	if err != nil {
		return results, err
	}

	if s.IsCoordinator() && s.opts.ReportPath != "" {
		report := pipeline.NewReport(s.kernel.Name(), s.cfg.Cluster.Workers, results)
		if err := report.Write(s.opts.ReportPath); err != nil {
			return results, err
		}
		s.logger.Info("Report written", zap.String("path", s.opts.ReportPath), zap.Int("jobs", len(results)))
	}
	return results, nil
}

// Close flushes pending spans.
func (s *Server) Close() error {
	s.tracer.Close()
	return nil
}

func (s *Server) runLocal(ctx context.Context, jobs []pipeline.Job) ([]pipeline.Result, error) {
	members, err := collective.NewLocalGroup(s.cfg.Cluster.Workers)
	if err != nil {
		return nil, err
	}

	var results []pipeline.Result
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range members {
		session := s.session(ch)
		g.Go(func() error {
			defer ch.Close()
			res, err := session.Run(ctx, jobs)
			if ch.Rank() == partition.Coordinator {
				results = res
			}
			return err
		})
	}
	err = g.Wait()
	return results, err
}

func (s *Server) runCoordinator(ctx context.Context, jobs []pipeline.Job) ([]pipeline.Result, error) {
	srv, err := transport.NewServer(s.cfg.Cluster.Workers, s.transportOptions())
	if err != nil {
		return nil, err
	}

	lis := s.opts.Listener
	if lis == nil {
		lis, err = net.Listen("tcp", s.cfg.Cluster.Coordinator)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Cluster.Coordinator, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()
	defer srv.Stop(stopGrace)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-serveErr:
			if err != nil {
				s.logger.Error("Collective server stopped", zap.Error(err))
			}
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := srv.WaitForWorkers(waitCtx); err != nil {
		return nil, err
	}
	ch := srv.Channel()
	defer ch.Close()
	return s.session(ch).Run(waitCtx, jobs)
}

func (s *Server) runWorker(ctx context.Context) ([]pipeline.Result, error) {
	client, err := transport.Dial(ctx, s.cfg.Cluster.Coordinator, s.cfg.Cluster.Rank, s.cfg.Cluster.Workers,
		s.transportOptions(), s.opts.DialOptions...)
	if err != nil {
		return nil, err
	}
	ch := client.Channel()
	defer ch.Close()
	return s.session(ch).Run(ctx, nil)
}

func (s *Server) session(ch collective.Channel) *pipeline.Session {
	instrumented := collective.Instrument(ch, s.metrics, s.logger.ForRank(ch.Rank(), ch.Size()))
	session := pipeline.NewSession(instrumented, s.kernel, pipeline.Options{
		Codec:   s.codec,
		Metrics: s.metrics,
		Tracer:  s.tracer,
		Logger:  s.logger,
	})
	if ch.Rank() == partition.Coordinator {
		s.mu.Lock()
		s.status = session.Status
		s.mu.Unlock()
	}
	return session
}

func (s *Server) transportOptions() transport.Options {
	return transport.Options{
		MaxMessageBytes: s.cfg.Transport.MaxMessageBytes,
		CompressAbove:   s.cfg.Transport.CompressAbove,
		JoinTimeout:     s.cfg.Cluster.JoinTimeout.Duration,
		Metrics:         s.metrics,
		Tracer:          s.tracer,
		Logger:          s.logger.Named("transport"),
	}
}

func (s *Server) startMonitor() func() {
	monitor := monitoring.NewServer(monitoring.ServerConfig{
		Address: s.cfg.Metrics.Address,
		RateLimit: monitoring.RateLimitConfig{
			RequestsPerSecond: s.cfg.Metrics.RequestsPerSecond,
			Burst:             s.cfg.Metrics.Burst,
		},
	}, s.metrics, s.Status, s.logger.Logger)

	go func() {
		if err := monitor.Run(); err != nil {
			s.logger.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if err := monitor.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("Metrics endpoint shutdown", zap.Error(err))
		}
	}
}
