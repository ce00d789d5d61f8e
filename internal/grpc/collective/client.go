package collective

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/tracing"
	pb "github.com/GriffinCanCode/pixmesh/proto/collective"
)

// Client is a worker's connection to the coordinator's hub.
type Client struct {
	conn    *grpc.ClientConn
	rpc     pb.CollectiveClient
	comp    *compressor
	breaker *resilience.Breaker
	opts    Options
	rank    int
	size    int
	session string
	once    sync.Once
}

// Dial connects rank of a size-rank group to the coordinator at addr and
// joins the group. The join waits for the connection to become ready, so a
// coordinator that is not listening yet is redialled with backoff until the
// join timeout. Extra dial options are appended to the defaults.
func Dial(ctx context.Context, addr string, rank, size int, opts Options, extra ...grpc.DialOption) (*Client, error) {
	if rank <= 0 || rank >= size {
		return nil, fmt.Errorf("%w: worker rank %d outside [1, %d)", partition.ErrInvalidConfiguration, rank, size)
	}
	opts = opts.withDefaults()

	reconnect := backoff.DefaultConfig
	reconnect.BaseDelay = 50 * time.Millisecond
	reconnect.MaxDelay = 2 * time.Second

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           reconnect,
			MinConnectTimeout: 5 * time.Second,
		}),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMessageBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMessageBytes),
		),
	}
	var interceptors []grpc.UnaryClientInterceptor
	if opts.Tracer != nil {
		interceptors = append(interceptors, tracing.GRPCClientInterceptor(opts.Tracer))
	}
	if opts.Metrics != nil {
		interceptors = append(interceptors, clientMetrics(opts.Metrics))
	}
	dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(interceptors...))
	dialOpts = append(dialOpts, extra...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator: %w", err)
	}
	comp, err := newCompressor(opts.CompressAbove, opts.MaxMessageBytes)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn: conn,
		rpc:  pb.NewCollectiveClient(conn),
		comp: comp,
		breaker: resilience.New("coordinator", resilience.Settings{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     500 * time.Millisecond,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsFailure: func(err error) bool {
				return status.Code(err) == codes.Unavailable || status.Code(err) == codes.DeadlineExceeded
			},
			OnStateChange: func(name string, from, to resilience.State) {
				opts.Logger.Debug("Breaker state changed",
					zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		opts: opts,
		rank: rank,
		size: size,
	}

	if err := c.join(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) join(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	defer cancel()

	req := &pb.JoinRequest{Rank: int32(c.rank), Size: int32(c.size)}
	resp, err := resilience.Call(c.breaker, func() (*pb.JoinResponse, error) {
		return c.rpc.Join(ctx, req, grpc.WaitForReady(true))
	})
	switch {
	case err == nil:
	case status.Code(err) == codes.DeadlineExceeded:
		return fmt.Errorf("join as rank %d: %w: no coordinator at %s within %s",
			c.rank, ErrUnavailable, c.conn.Target(), c.opts.JoinTimeout)
	default:
		return fmt.Errorf("join as rank %d: %w", c.rank, c.callError(err))
	}
	c.session = resp.Session

	c.opts.Logger.Info("Joined group",
		zap.Int("rank", c.rank),
		zap.Int("workers", c.size),
		zap.String("session", c.session))
	return nil
}

// Exchange sends rank's contribution to round seq and waits for the result.
func (c *Client) Exchange(ctx context.Context, rank int, seq uint64, con collective.Contribution) (collective.Result, error) {
	req := c.comp.request(c.session, rank, seq, con)
	resp, err := resilience.Call(c.breaker, func() (*pb.ExchangeResponse, error) {
		return c.rpc.Exchange(ctx, req)
	})
	if err != nil {
		return collective.Result{}, c.callError(err)
	}
	return c.comp.result(resp)
}

// callError maps an RPC or breaker error onto the collective errors.
func (c *Client) callError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fromStatus(err)
}

// Channel returns this worker's Channel. Closing it closes the client.
func (c *Client) Channel() collective.Channel {
	return collective.NewMember(c, c.rank, c.size, c.Close)
}

// Session returns the token received from the coordinator.
func (c *Client) Session() string {
	return c.session
}

// Close releases the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.comp.close()
		err = c.conn.Close()
	})
	return err
}
