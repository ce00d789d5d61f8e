package ppm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/GriffinCanCode/pixmesh/internal/imaging"
)

const (
	magic   = "P6"
	mimePPM = "image/x-portable-pixmap"
	mimeGz  = "application/gzip"
	sniffSz = 3072

	// DefaultMaxPixels bounds the raster a header may declare when the
	// codec sets no limit of its own.
	DefaultMaxPixels = 1 << 26
)

var (
	// ErrTruncated is returned when the raster ends before W·H pixels.
	ErrTruncated = errors.New("truncated raster")
	// ErrUnsupported is returned for inputs that are not 8-bit binary PPM.
	ErrUnsupported = errors.New("unsupported format")
)

// Codec reads and writes binary (P6) PPM files. Paths ending in .gz are
// transparently gzip compressed.
type Codec struct {
	// Level is the gzip level for compressed output; zero uses the default.
	Level int
	// MaxPixels rejects headers declaring more than width*height pixels
	// before any raster memory is allocated. Zero uses DefaultMaxPixels.
	MaxPixels int
}

func (c Codec) maxPixels() int {
	if c.MaxPixels > 0 {
		return c.MaxPixels
	}
	return DefaultMaxPixels
}

// Load decodes the file at path.
func (c Codec) Load(path string) (*imaging.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	defer f.Close()

	buf, err := c.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buf, nil
}

// Store encodes buf to path. The file is written to a temporary sibling and
// renamed, so a failed store never leaves a partial image behind.
func (c Codec) Store(buf *imaging.Buffer, path string) (err error) {
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		level := c.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		zw, err = gzip.NewWriterLevel(tmp, level)
		if err != nil {
			return fmt.Errorf("%w: %w", imaging.ErrIO, err)
		}
		w = zw
	}

	if err = Encode(w, buf); err != nil {
		return err
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return fmt.Errorf("%w: %w", imaging.ErrIO, err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	return nil
}

// Decode reads a PPM image, decompressing it first if it is gzipped.
func (c Codec) Decode(r io.Reader) (*imaging.Buffer, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(sniffSz)

	kind := mimetype.Detect(head)
	if kind.Is(mimeGz) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", imaging.ErrIO, err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
		head, _ = br.Peek(sniffSz)
		kind = mimetype.Detect(head)
	}
	if !sniffable(kind) {
		return nil, fmt.Errorf("%w: %w: detected %s", imaging.ErrIO, ErrUnsupported, kind.String())
	}

	return decode(br, c.maxPixels())
}

// sniffable accepts PPM and the generic fallbacks mimetype reports for
// inputs it has no specific signature for.
func sniffable(kind *mimetype.MIME) bool {
	return kind.Is(mimePPM) || kind.Is("application/octet-stream") || kind.Is("text/plain")
}

func decode(br *bufio.Reader, maxPixels int) (*imaging.Buffer, error) {
	tok, err := token(br)
	if err != nil {
		return nil, fmt.Errorf("%w: missing magic number: %w", imaging.ErrIO, err)
	}
	if tok != magic {
		return nil, fmt.Errorf("%w: %w: magic %q", imaging.ErrIO, ErrUnsupported, tok)
	}

	var header [3]int
	for i, name := range []string{"width", "height", "maxval"} {
		tok, err := token(br)
		if err != nil {
			return nil, fmt.Errorf("%w: no %s found in header: %w", imaging.ErrIO, name, err)
		}
		v, err := strconv.Atoi(tok)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: bad %s %q", imaging.ErrIO, name, tok)
		}
		header[i] = v
	}
	// both dimensions are positive here, so the division cannot overflow
	if header[0] > maxPixels/header[1] {
		return nil, fmt.Errorf("%w: %w: %dx%d exceeds %d pixels",
			imaging.ErrIO, ErrUnsupported, header[0], header[1], maxPixels)
	}
	if header[2] > 255 {
		return nil, fmt.Errorf("%w: %w: maxval %d needs 16-bit samples", imaging.ErrIO, ErrUnsupported, header[2])
	}

	// exactly one whitespace byte separates the header from the raster
	if _, err := br.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: %w", imaging.ErrIO, ErrTruncated)
	}

	buf := imaging.NewBuffer(header[0], header[1], header[2])
	if _, err := io.ReadFull(br, buf.Pix); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", imaging.ErrIO, ErrTruncated, err)
	}
	return buf, nil
}

// token returns the next whitespace delimited header token, skipping
// comments that run from '#' to the end of the line.
func token(br *bufio.Reader) (string, error) {
	var sb bytes.Buffer
	for {
		b, err := br.ReadByte()
		if err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String(), nil
			}
			return "", err
		}
		switch {
		case b == '#' && sb.Len() == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", err
			}
		case isSpace(b):
			if sb.Len() > 0 {
				if err := br.UnreadByte(); err != nil {
					return "", err
				}
				return sb.String(), nil
			}
		default:
			sb.WriteByte(b)
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// Encode writes buf as a binary PPM.
func Encode(w io.Writer, buf *imaging.Buffer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n%d\n", magic, buf.Width, buf.Height, buf.MaxVal); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	if _, err := bw.Write(buf.Pix); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	return nil
}
