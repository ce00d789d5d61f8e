package collective

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/tracing"
	pb "github.com/GriffinCanCode/pixmesh/proto/collective"
)

// Options configures both ends of the transport.
type Options struct {
	MaxMessageBytes int
	CompressAbove   int
	JoinTimeout     time.Duration
	Metrics         *monitoring.Metrics
	Tracer          *tracing.Tracer
	Logger          *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 256 << 20
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Server hosts the group's Hub on the coordinator. Rank 0 exchanges with
// the hub in process; every other rank joins and exchanges over gRPC.
type Server struct {
	hub     *collective.Hub
	size    int
	session string
	comp    *compressor
	opts    Options
	grpc    *grpc.Server

	mu     sync.Mutex
	joined map[int32]bool
	ready  chan struct{}
}

// NewServer creates the coordinator side of a size-rank group.
func NewServer(size int, opts Options) (*Server, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group needs at least one rank, got %d", size)
	}
	opts = opts.withDefaults()
	comp, err := newCompressor(opts.CompressAbove, opts.MaxMessageBytes)
	if err != nil {
		return nil, err
	}

	s := &Server{
		hub:     collective.NewHub(size),
		size:    size,
		session: uuid.NewString(),
		comp:    comp,
		opts:    opts,
		joined:  make(map[int32]bool),
		ready:   make(chan struct{}),
	}
	if size == 1 {
		close(s.ready)
	}

	interceptors := []grpc.UnaryServerInterceptor{}
	if opts.Tracer != nil {
		interceptors = append(interceptors, tracing.GRPCUnaryInterceptor(opts.Tracer))
	}
	if opts.Metrics != nil {
		interceptors = append(interceptors, serverMetrics(opts.Metrics))
	}
	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(opts.MaxMessageBytes),
		grpc.MaxSendMsgSize(opts.MaxMessageBytes),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	pb.RegisterCollectiveServer(s.grpc, s)
	return s, nil
}

// Session returns the token workers receive from Join.
func (s *Server) Session() string {
	return s.session
}

// Serve accepts worker connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.opts.Logger.Info("Collective server listening",
		zap.String("address", lis.Addr().String()),
		zap.Int("workers", s.size),
		zap.String("session", s.session))
	return s.grpc.Serve(lis)
}

// Stop waits up to grace for in-flight exchanges, then closes every
// connection.
func (s *Server) Stop(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.grpc.Stop()
		<-done
	}
	s.comp.close()
}

// WaitForWorkers blocks until every worker has joined or the join timeout
// passes.
func (s *Server) WaitForWorkers(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.JoinTimeout)
	defer cancel()
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		joined := len(s.joined)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d workers joined: %w", ErrUnavailable, joined, s.size-1, ctx.Err())
	}
}

// Channel returns rank 0's channel onto the hub.
func (s *Server) Channel() collective.Channel {
	return collective.NewMember(s.hub, 0, s.size, nil)
}

func (s *Server) Join(_ context.Context, req *pb.JoinRequest) (*pb.JoinResponse, error) {
	if int(req.Size) != s.size {
		return nil, status.Errorf(codes.InvalidArgument, "worker expects %d ranks, coordinator has %d", req.Size, s.size)
	}
	if req.Rank <= 0 || int(req.Rank) >= s.size {
		return nil, status.Errorf(codes.InvalidArgument, "rank %d outside [1, %d)", req.Rank, s.size)
	}

	s.mu.Lock()
	if !s.joined[req.Rank] {
		s.joined[req.Rank] = true
		s.opts.Logger.Info("Worker joined", zap.Int32("rank", req.Rank), zap.Int("joined", len(s.joined)))
		if len(s.joined) == s.size-1 {
			close(s.ready)
		}
	}
	s.mu.Unlock()

	return &pb.JoinResponse{Session: s.session, Size: int32(s.size)}, nil
}

func (s *Server) Exchange(ctx context.Context, req *pb.ExchangeRequest) (*pb.ExchangeResponse, error) {
	if req.Session != s.session {
		return nil, status.Error(codes.PermissionDenied, "unknown session")
	}
	if req.Rank <= 0 || int(req.Rank) >= s.size {
		return nil, status.Errorf(codes.InvalidArgument, "rank %d may not exchange remotely", req.Rank)
	}
	c, err := s.comp.contribution(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.hub.Exchange(ctx, int(req.Rank), req.Seq, c)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.comp.response(res), nil
}
