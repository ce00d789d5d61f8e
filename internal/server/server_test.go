package server

import (
	"bytes"
	"context"
	"flag"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GriffinCanCode/pixmesh/internal/domain/filter"
	"github.com/GriffinCanCode/pixmesh/internal/domain/pipeline"
	"github.com/GriffinCanCode/pixmesh/internal/imaging"
	"github.com/GriffinCanCode/pixmesh/internal/imaging/ppm"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/config"
	"github.com/GriffinCanCode/pixmesh/internal/testutil"
)

func writeImage(t *testing.T, path string, buf *imaging.Buffer) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, ppm.Codec{}.Store(buf, path))
}

func readImage(t *testing.T, path string) *imaging.Buffer {
	t.Helper()
	buf, err := ppm.Codec{}.Load(path)
	require.NoError(t, err)
	return buf
}

func localConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Cluster.Workers = workers
	return cfg
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(Options{Kernel: filter.NewThreshold()})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = NewServer(Options{Config: localConfig(0), Kernel: filter.NewThreshold()})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = NewServer(Options{Config: localConfig(2)})
	assert.Error(t, err)
}

func TestLocalRunMatchesSingleWorker(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ppm")
	writeImage(t, in, testutil.RandomBuffer(23, 17, 3))

	run := func(workers int, out string) *imaging.Buffer {
		srv, err := NewServer(Options{Config: localConfig(workers), Kernel: &filter.Averaging{XRadius: 3, YRadius: 2}})
		require.NoError(t, err)
		defer srv.Close()

		results, err := srv.Run(context.Background(), []pipeline.Job{pipeline.NewJob(in, out)})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, pipeline.Persisted, results[0].State)
		return readImage(t, out)
	}

	one := run(1, filepath.Join(dir, "one.ppm"))
	five := run(5, filepath.Join(dir, "five.ppm"))
	assert.Equal(t, one.Pix, five.Pix)
}

func TestLocalRunContinuesPastMissingInput(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ppm")
	writeImage(t, good, testutil.UniformBuffer(4, 4, 10, 20, 30))
	report := filepath.Join(dir, "report.json")

	srv, err := NewServer(Options{Config: localConfig(3), Kernel: filter.NewThreshold(), ReportPath: report})
	require.NoError(t, err)
	defer srv.Close()
	assert.Nil(t, srv.Status())

	results, err := srv.Run(context.Background(), []pipeline.Job{
		pipeline.NewJob(filepath.Join(dir, "missing.ppm"), filepath.Join(dir, "never.ppm")),
		pipeline.NewJob(good, filepath.Join(dir, "out.ppm")),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, pipeline.Aborted, results[0].State)
	assert.Equal(t, pipeline.Persisted, results[1].State)
	assert.NoFileExists(t, filepath.Join(dir, "never.ppm"))

	status, ok := srv.Status().(pipeline.Status)
	require.True(t, ok)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 1, status.Failed)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var got pipeline.Report
	require.NoError(t, sonic.Unmarshal(data, &got))
	assert.Equal(t, "threshold", got.Kernel)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
}

func TestGRPCRunMatchesLocal(t *testing.T) {
	const workers = 3
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ppm")
	src := testutil.RandomBuffer(31, 9, 5)
	writeImage(t, in, src)
	kernel := &filter.Averaging{XRadius: 2, YRadius: 2}

	local, err := NewServer(Options{Config: localConfig(workers), Kernel: kernel})
	require.NoError(t, err)
	defer local.Close()
	_, err = local.Run(context.Background(), []pipeline.Job{pipeline.NewJob(in, filepath.Join(dir, "local.ppm"))})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for rank := range workers {
		cfg := localConfig(workers)
		cfg.Cluster.Transport = config.TransportGRPC
		cfg.Cluster.Rank = rank
		cfg.Cluster.Coordinator = "passthrough:///bufnet"
		cfg.Cluster.JoinTimeout = config.Duration{Duration: 5 * time.Second}

		srv, err := NewServer(Options{Config: cfg, Kernel: kernel, Listener: lis, DialOptions: []grpc.DialOption{dialer}})
		require.NoError(t, err)
		defer srv.Close()

		var jobs []pipeline.Job
		if srv.IsCoordinator() {
			jobs = []pipeline.Job{pipeline.NewJob(in, filepath.Join(dir, "grpc.ppm"))}
		}
		g.Go(func() error {
			results, err := srv.Run(ctx, jobs)
			if err == nil {
				assert.Equal(t, 0, pipeline.Failed(results))
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, readImage(t, filepath.Join(dir, "local.ppm")).Pix, readImage(t, filepath.Join(dir, "grpc.ppm")).Pix)
}

func TestExpandJobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.ppm", "sub/b.ppm", "sub/deeper/c.ppm", "skip.txt"} {
		path := filepath.Join(dir, "in", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	out := filepath.Join(dir, "out")

	jobs, err := ExpandJobs(filepath.Join(dir, "in", "**", "*.ppm"), out)
	require.NoError(t, err)

	var outputs []string
	for _, job := range jobs {
		rel, err := filepath.Rel(out, job.Output)
		require.NoError(t, err)
		outputs = append(outputs, filepath.ToSlash(rel))
		assert.NotEmpty(t, job.ID.String())
	}
	assert.ElementsMatch(t, []string{"a.ppm", "sub/b.ppm", "sub/deeper/c.ppm"}, outputs)
	assert.DirExists(t, filepath.Join(out, "sub", "deeper"))
}

func TestExpandJobsSingleFile(t *testing.T) {
	jobs, err := ExpandJobs("in.ppm", "out.ppm")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "in.ppm", jobs[0].Input)
	assert.Equal(t, "out.ppm", jobs[0].Output)
}

func TestExpandJobsNoMatch(t *testing.T) {
	_, err := ExpandJobs(filepath.Join(t.TempDir(), "*.ppm"), "out")
	assert.ErrorIs(t, err, imaging.ErrIO)
}

func TestParseRadius(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"12", 12, false},
		{"007", 7, false},
		{"", 0, true},
		{"-1", 0, true},
		{"+3", 0, true},
		{"1.5", 0, true},
		{"two", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRadius(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestCommandRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		args []string
	}{
		{"too few", Averaging, []string{"in.ppm", "out.ppm", "1"}},
		{"negative radius", Averaging, []string{"in.ppm", "out.ppm", "-1", "1"}},
		{"word radius", Averaging, []string{"in.ppm", "out.ppm", "1", "y"}},
		{"extra threshold argument", Threshold, []string{"in.ppm", "out.ppm", "1"}},
		{"bad transport", Threshold, []string{"-transport", "mpi", "in.ppm", "out.ppm"}},
		{"unknown flag", Threshold, []string{"-nope", "in.ppm", "out.ppm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, tt.cmd.Main(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), "Usage: "+tt.cmd.Name)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestCommandRuns(t *testing.T) {
	t.Setenv(config.FileEnv, "")
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ppm")
	out := filepath.Join(dir, "out.ppm")
	writeImage(t, in, testutil.UniformBuffer(6, 5, 40, 50, 60))

	var stdout, stderr bytes.Buffer
	code := Averaging.Main([]string{"-workers", "3", in, out, "1", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "averaging filter runtime:")

	got := readImage(t, out)
	assert.Equal(t, testutil.UniformBuffer(6, 5, 40, 50, 60).Pix, got.Pix)
}

func TestCommandFailsOnMissingInput(t *testing.T) {
	t.Setenv(config.FileEnv, "")
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := Threshold.Main([]string{filepath.Join(dir, "missing.ppm"), filepath.Join(dir, "out.ppm")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, filepath.Join(dir, "out.ppm"))
}

func TestFlagsOverrideConfig(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-workers", "7", "-metrics", ":9999"}))

	cfg := config.Default()
	cfg.Cluster.Rank = 2
	flags.Apply(fs, cfg)
	assert.Equal(t, 7, cfg.Cluster.Workers)
	assert.Equal(t, 2, cfg.Cluster.Rank)
	assert.Equal(t, config.TransportLocal, cfg.Cluster.Transport)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Address)
}
