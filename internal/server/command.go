package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pixmesh/internal/domain/filter"
	"github.com/GriffinCanCode/pixmesh/internal/domain/pipeline"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/config"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
)

// Flags are the options shared by every filter command. Flags left unset
// keep the value from the configuration.
type Flags struct {
	Workers     int
	Transport   string
	Rank        int
	Coordinator string
	Report      string
	Metrics     string
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.IntVar(&f.Workers, "workers", 0, "number of ranks in the group")
	fs.StringVar(&f.Transport, "transport", "", "rank transport: local or grpc")
	fs.IntVar(&f.Rank, "rank", 0, "this process's rank (grpc transport)")
	fs.StringVar(&f.Coordinator, "coordinator", "", "coordinator address (grpc transport)")
	fs.StringVar(&f.Report, "report", "", "write a JSON run report to this path")
	fs.StringVar(&f.Metrics, "metrics", "", "serve metrics on this address")
	return f
}

// Apply copies the flags that were set on fs into cfg.
func (f *Flags) Apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "workers":
			cfg.Cluster.Workers = f.Workers
		case "transport":
			cfg.Cluster.Transport = f.Transport
		case "rank":
			cfg.Cluster.Rank = f.Rank
		case "coordinator":
			cfg.Cluster.Coordinator = f.Coordinator
		case "metrics":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Address = f.Metrics
		}
	})
}

// ParseRadius parses a radius argument. Only plain decimal digits are
// accepted.
func ParseRadius(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty radius")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("radius %q is not a non-negative integer", s)
		}
	}
	return strconv.Atoi(s)
}

// Command describes one filter executable.
type Command struct {
	// Name is the executable name used in messages.
	Name string
	// Usage lists the positional arguments.
	Usage string
	// Label prefixes the printed runtime.
	Label string
	// Params is the number of positional arguments after input and output.
	Params int
	// Kernel builds the kernel from those extra arguments.
	Kernel func(params []string) (filter.Kernel, error)
}

// Main runs the command with args (excluding the program name) and returns
// the process exit code.
func (c Command) Main(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "\nUsage: %s [flags] %s\n", c.Name, c.Usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 2+c.Params {
		return c.fail(fs, stderr, fmt.Errorf("expected %d arguments, got %d", 2+c.Params, fs.NArg()))
	}
	input, output := fs.Arg(0), fs.Arg(1)
	kernel, err := c.Kernel(fs.Args()[2:])
	if err != nil {
		return c.fail(fs, stderr, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return c.fail(fs, stderr, err)
	}
	flags.Apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return c.fail(fs, stderr, err)
	}

	logger, err := logging.New(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development))
	if err != nil {
		return c.fail(fs, stderr, err)
	}
	defer logger.Sync()

	srv, err := NewServer(Options{
		Config:     cfg,
		Kernel:     kernel,
		Logger:     logger.Named(c.Name),
		ReportPath: flags.Report,
	})
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return 1
	}
	defer srv.Close()

	var jobs []pipeline.Job
	if srv.IsCoordinator() {
		if jobs, err = ExpandJobs(input, output); err != nil {
			logger.Error("Failed to expand inputs", zap.String("input", input), zap.Error(err))
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results, err := srv.Run(ctx, jobs)
	runtime := time.Since(start)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return 1
	}
	if failed := pipeline.Failed(results); failed > 0 {
		logger.Warn("Some jobs failed", zap.Int("failed", failed), zap.Int("jobs", len(results)))
		return 1
	}
	if srv.IsCoordinator() {
		fmt.Fprintf(stdout, "\n%s runtime: %10.10f \n", c.Label, runtime.Seconds())
	}
	return 0
}

func (c Command) fail(fs *flag.FlagSet, stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "**Error: %v\n", err)
	fs.Usage()
	return 1
}

// Averaging is the box-average command.
var Averaging = Command{
	Name:   "afilter",
	Usage:  "<input> <output> <x radius> <y radius>",
	Label:  "averaging filter",
	Params: 2,
	Kernel: func(params []string) (filter.Kernel, error) {
		xr, err := ParseRadius(params[0])
		if err != nil {
			return nil, fmt.Errorf("x radius: %w", err)
		}
		yr, err := ParseRadius(params[1])
		if err != nil {
			return nil, fmt.Errorf("y radius: %w", err)
		}
		return filter.NewAveraging(xr, yr)
	},
}

// Threshold is the mean-threshold command.
var Threshold = Command{
	Name:   "threshold",
	Usage:  "<input> <output>",
	Label:  "thresholding",
	Kernel: func([]string) (filter.Kernel, error) { return filter.NewThreshold(), nil },
}
