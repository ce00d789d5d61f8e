package collective

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compressor shrinks large pixel payloads on the wire. EncodeAll and
// DecodeAll are safe for concurrent use.
type compressor struct {
	above int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// newCompressor compresses payloads longer than above bytes and refuses to
// inflate anything beyond limit bytes.
func newCompressor(above, limit int) (*compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit)))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &compressor{above: above, enc: enc, dec: dec}, nil
}

// pack returns the payload to send and whether it is compressed. Payloads
// that do not shrink are sent as is.
func (c *compressor) pack(p []byte) ([]byte, bool) {
	if len(p) == 0 || len(p) <= c.above {
		return p, false
	}
	out := c.enc.EncodeAll(p, make([]byte, 0, len(p)/2))
	if len(out) >= len(p) {
		return p, false
	}
	return out, true
}

func (c *compressor) unpack(p []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return p, nil
	}
	out, err := c.dec.DecodeAll(p, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd payload: %w", err)
	}
	return out, nil
}

func (c *compressor) close() {
	c.enc.Close()
	c.dec.Close()
}
