// Package imaging holds the in-memory RGB buffer shared by the codec and
// the distributed pipeline.
package imaging

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
)

var (
	// ErrIO marks codec open, parse and write failures.
	ErrIO = errors.New("image i/o")
	// ErrInvalidBuffer marks a buffer whose raster disagrees with its header.
	ErrInvalidBuffer = errors.New("invalid buffer")
)

// Buffer is a row-major RGB raster with 8-bit samples.
type Buffer struct {
	Width  int
	Height int
	MaxVal int
	Pix    []byte
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, maxVal int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		MaxVal: maxVal,
		Pix:    make([]byte, partition.ToBytes(width*height)),
	}
}

// Dims returns the buffer dimensions.
func (b *Buffer) Dims() partition.Dims {
	return partition.Dims{Width: b.Width, Height: b.Height}
}

// PixelCount returns W·H.
func (b *Buffer) PixelCount() int {
	return b.Width * b.Height
}

// Validate checks dimensions, sample range and raster length.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if b.MaxVal <= 0 || b.MaxVal > 255 {
		return fmt.Errorf("%w: maxval %d", ErrInvalidBuffer, b.MaxVal)
	}
	if want := partition.ToBytes(b.PixelCount()); len(b.Pix) != want {
		return fmt.Errorf("%w: raster has %d bytes, want %d", ErrInvalidBuffer, len(b.Pix), want)
	}
	return nil
}

// At returns the samples of pixel (x, y).
func (b *Buffer) At(x, y int) (r, g, bl byte) {
	i := partition.ToBytes(y*b.Width + x)
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// Set writes the samples of pixel (x, y).
func (b *Buffer) Set(x, y int, r, g, bl byte) {
	i := partition.ToBytes(y*b.Width + x)
	b.Pix[i], b.Pix[i+1], b.Pix[i+2] = r, g, bl
}

// Fill paints every pixel with one colour.
func (b *Buffer) Fill(r, g, bl byte) {
	for i := 0; i < len(b.Pix); i += partition.ChannelDepth {
		b.Pix[i], b.Pix[i+1], b.Pix[i+2] = r, g, bl
	}
}

// Header returns an empty buffer with the same dimensions and maxval.
func (b *Buffer) Header() *Buffer {
	return NewBuffer(b.Width, b.Height, b.MaxVal)
}

// Intensities returns the per-pixel mean of the three samples.
func (b *Buffer) Intensities() []float64 {
	out := make([]float64, b.PixelCount())
	for i := range out {
		j := partition.ToBytes(i)
		out[i] = (float64(b.Pix[j]) + float64(b.Pix[j+1]) + float64(b.Pix[j+2])) / 3.0
	}
	return out
}
