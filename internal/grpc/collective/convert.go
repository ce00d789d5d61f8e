package collective

import (
	"github.com/GriffinCanCode/pixmesh/internal/collective"
	pb "github.com/GriffinCanCode/pixmesh/proto/collective"
)

func toInt64s(vs []int) []int64 {
	if vs == nil {
		return nil
	}
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

func toInts(vs []int64) []int {
	if vs == nil {
		return nil
	}
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}

func (c *compressor) request(session string, rank int, seq uint64, con collective.Contribution) *pb.ExchangeRequest {
	payload, compressed := c.pack(con.Payload)
	return &pb.ExchangeRequest{
		Session:    session,
		Rank:       int32(rank),
		Seq:        seq,
		Op:         uint32(con.Op),
		Root:       int32(con.Root),
		Int:        con.Int,
		Float:      con.Float,
		Payload:    payload,
		Counts:     toInt64s(con.Counts),
		Offsets:    toInt64s(con.Offsets),
		RecvCount:  int64(con.RecvCount),
		Compressed: compressed,
	}
}

func (c *compressor) contribution(req *pb.ExchangeRequest) (collective.Contribution, error) {
	payload, err := c.unpack(req.Payload, req.Compressed)
	if err != nil {
		return collective.Contribution{}, err
	}
	return collective.Contribution{
		Op:        collective.Op(req.Op),
		Root:      int(req.Root),
		Int:       req.Int,
		Float:     req.Float,
		Payload:   payload,
		Counts:    toInts(req.Counts),
		Offsets:   toInts(req.Offsets),
		RecvCount: int(req.RecvCount),
	}, nil
}

func (c *compressor) response(res collective.Result) *pb.ExchangeResponse {
	payload, compressed := c.pack(res.Payload)
	return &pb.ExchangeResponse{
		Int:        res.Int,
		Ints:       res.Ints,
		Float:      res.Float,
		Payload:    payload,
		Compressed: compressed,
	}
}

func (c *compressor) result(resp *pb.ExchangeResponse) (collective.Result, error) {
	payload, err := c.unpack(resp.Payload, resp.Compressed)
	if err != nil {
		return collective.Result{}, err
	}
	return collective.Result{
		Int:     resp.Int,
		Ints:    resp.Ints,
		Float:   resp.Float,
		Payload: payload,
	}, nil
}
