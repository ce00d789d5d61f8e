// Package testutil provides mocks and fixtures shared by package tests.
package testutil

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/imaging"
)

// MockCodec is a mock implementation of the pipeline's image codec.
type MockCodec struct {
	mock.Mock

	mu     sync.Mutex
	stored map[string]*imaging.Buffer
}

// Load mocks the Load method.
func (m *MockCodec) Load(path string) (*imaging.Buffer, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imaging.Buffer), args.Error(1)
}

// Store mocks the Store method and keeps a copy of every successful store.
func (m *MockCodec) Store(buf *imaging.Buffer, path string) error {
	args := m.Called(buf, path)
	if err := args.Error(0); err != nil {
		return err
	}
	cp := *buf
	cp.Pix = append([]byte(nil), buf.Pix...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*imaging.Buffer)
	}
	m.stored[path] = &cp
	return nil
}

// Stored returns what was stored at path, or nil.
func (m *MockCodec) Stored(path string) *imaging.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[path]
}

// NewMockCodec creates a codec mock whose Store succeeds by default.
func NewMockCodec(t *testing.T) *MockCodec {
	t.Helper()
	m := new(MockCodec)

	m.On("Store", mock.Anything, mock.Anything).
		Return(nil).
		Maybe()

	return m
}

// RandomBuffer returns a buffer of deterministic noise.
func RandomBuffer(width, height int, seed uint64) *imaging.Buffer {
	buf := imaging.NewBuffer(width, height, 255)
	rng := rand.New(rand.NewPCG(seed, ^seed))
	for i := range buf.Pix {
		buf.Pix[i] = byte(rng.IntN(256))
	}
	return buf
}

// UniformBuffer returns a buffer filled with one colour.
func UniformBuffer(width, height int, r, g, b byte) *imaging.Buffer {
	buf := imaging.NewBuffer(width, height, 255)
	buf.Fill(r, g, b)
	return buf
}

// RunGroup builds a local group of n ranks, runs fn on each in its own
// goroutine and returns every rank's error in rank order.
func RunGroup(t *testing.T, n int, fn func(ctx context.Context, ch collective.Channel) error) []error {
	t.Helper()
	members, err := collective.NewLocalGroup(n)
	require.NoError(t, err)
	return RunMembers(t, members, fn)
}

// RunMembers runs fn on each member concurrently with a test deadline.
func RunMembers(t *testing.T, members []collective.Channel, fn func(ctx context.Context, ch collective.Channel) error) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make([]error, len(members))
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
