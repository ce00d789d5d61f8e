package collective

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every type carried over the collective service.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire(b []byte) error
}

// JoinRequest registers a rank with the coordinator.
type JoinRequest struct {
	Rank int32
	Size int32
}

// JoinResponse carries the session every later exchange must quote.
type JoinResponse struct {
	Session string
	Size    int32
}

// ExchangeRequest is one rank's contribution to round Seq.
type ExchangeRequest struct {
	Session    string
	Rank       int32
	Seq        uint64
	Op         uint32
	Root       int32
	Int        int64
	Float      float64
	Payload    []byte
	Counts     []int64
	Offsets    []int64
	RecvCount  int64
	Compressed bool
}

// ExchangeResponse is what the rank takes out of the completed round.
type ExchangeResponse struct {
	Int        int64
	Ints       []int64
	Float      float64
	Payload    []byte
	Compressed bool
}

func (m *JoinRequest) MarshalWire() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(int64(m.Rank)))
	b = appendVarint(b, 2, uint64(int64(m.Size)))
	return b
}

func (m *JoinRequest) UnmarshalWire(b []byte) error {
	*m = JoinRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Rank)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Size)
		}
		return skip(num, typ, b)
	})
}

func (m *JoinResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Session)
	b = appendVarint(b, 2, uint64(int64(m.Size)))
	return b
}

func (m *JoinResponse) UnmarshalWire(b []byte) error {
	*m = JoinResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.Session)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Size)
		}
		return skip(num, typ, b)
	})
}

func (m *ExchangeRequest) MarshalWire() []byte {
	b := make([]byte, 0, len(m.Payload)+64+10*(len(m.Counts)+len(m.Offsets)))
	b = appendString(b, 1, m.Session)
	b = appendVarint(b, 2, uint64(int64(m.Rank)))
	b = appendVarint(b, 3, m.Seq)
	b = appendVarint(b, 4, uint64(m.Op))
	b = appendVarint(b, 5, uint64(int64(m.Root)))
	b = appendVarint(b, 6, uint64(m.Int))
	b = appendDouble(b, 7, m.Float)
	b = appendBytes(b, 8, m.Payload)
	b = appendPacked(b, 9, m.Counts)
	b = appendPacked(b, 10, m.Offsets)
	b = appendVarint(b, 11, uint64(m.RecvCount))
	b = appendBool(b, 12, m.Compressed)
	return b
}

func (m *ExchangeRequest) UnmarshalWire(b []byte) error {
	*m = ExchangeRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.Session)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Rank)
		case num == 3 && typ == protowire.VarintType:
			return consumeUint64(b, &m.Seq)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			n, err := consumeUint64(b, &v)
			m.Op = uint32(v)
			return n, err
		case num == 5 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Root)
		case num == 6 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Int)
		case num == 7 && typ == protowire.Fixed64Type:
			return consumeDouble(b, &m.Float)
		case num == 8 && typ == protowire.BytesType:
			return consumeBytes(b, &m.Payload)
		case num == 9:
			return consumeRepeated(typ, b, &m.Counts)
		case num == 10:
			return consumeRepeated(typ, b, &m.Offsets)
		case num == 11 && typ == protowire.VarintType:
			return consumeInt64(b, &m.RecvCount)
		case num == 12 && typ == protowire.VarintType:
			return consumeBool(b, &m.Compressed)
		}
		return skip(num, typ, b)
	})
}

func (m *ExchangeResponse) MarshalWire() []byte {
	b := make([]byte, 0, len(m.Payload)+32+10*len(m.Ints))
	b = appendVarint(b, 1, uint64(m.Int))
	b = appendPacked(b, 2, m.Ints)
	b = appendDouble(b, 3, m.Float)
	b = appendBytes(b, 4, m.Payload)
	b = appendBool(b, 5, m.Compressed)
	return b
}

func (m *ExchangeResponse) UnmarshalWire(b []byte) error {
	*m = ExchangeResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Int)
		case num == 2:
			return consumeRepeated(typ, b, &m.Ints)
		case num == 3 && typ == protowire.Fixed64Type:
			return consumeDouble(b, &m.Float)
		case num == 4 && typ == protowire.BytesType:
			return consumeBytes(b, &m.Payload)
		case num == 5 && typ == protowire.VarintType:
			return consumeBool(b, &m.Compressed)
		}
		return skip(num, typ, b)
	})
}

// Proto3 semantics: zero scalars and empty fields are omitted.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendPacked(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func consumeFields(b []byte, field fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func consumeUint64(b []byte, dst *uint64) (int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeInt64(b []byte, dst *int64) (int, error) {
	var v uint64
	n, err := consumeUint64(b, &v)
	*dst = int64(v)
	return n, err
}

func consumeInt32(b []byte, dst *int32) (int, error) {
	var v uint64
	n, err := consumeUint64(b, &v)
	*dst = int32(v)
	return n, err
}

func consumeBool(b []byte, dst *bool) (int, error) {
	var v uint64
	n, err := consumeUint64(b, &v)
	*dst = protowire.DecodeBool(v)
	return n, err
}

func consumeDouble(b []byte, dst *float64) (int, error) {
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = math.Float64frombits(v)
	return n, nil
}

func consumeBytes(b []byte, dst *[]byte) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

// consumeRepeated accepts both packed and unpacked encodings.
func consumeRepeated(typ protowire.Type, b []byte, dst *[]int64) (int, error) {
	switch typ {
	case protowire.VarintType:
		var v int64
		n, err := consumeInt64(b, &v)
		*dst = append(*dst, v)
		return n, err
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			*dst = append(*dst, int64(v))
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("unexpected wire type %d for repeated int64", typ)
}
