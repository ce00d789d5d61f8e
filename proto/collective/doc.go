// Package collective provides the wire types and gRPC service plumbing for
// the collective transport.
//
// Schema: proto/collective/collective.proto
//
// This package contains:
//   - JoinRequest/JoinResponse: rank registration with the coordinator
//   - ExchangeRequest/ExchangeResponse: one rank's part of a collective round
//   - CollectiveClient / CollectiveServer with a hand-written ServiceDesc
//   - a gRPC codec ("pixmesh") that encodes the types with protowire
//
// Clients must select the codec with grpc.CallContentSubtype(CodecName);
// NewCollectiveClient does so on every call.
//
// Usage:
//
//	This package is typically wrapped by internal/grpc/collective
//	for higher-level Go interfaces.
package collective
