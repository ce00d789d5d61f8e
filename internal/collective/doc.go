// Package collective provides the synchronous group operations the
// pipeline is built on: broadcast, gather, variable-length scatter and
// gather, and a floating-point all-reduce.
//
// A Hub is the rendezvous engine. Every rank numbers its calls, and the
// n-th call of every rank meets in round n. When the last rank arrives the
// hub checks that all ranks agree on the operation, its root and the sizes
// being moved, then computes every rank's result at once. A disagreement
// fails the round with ErrProtocol on every rank, so the group aborts
// together instead of leaving some ranks waiting.
//
// Transports:
//   - NewLocalGroup: ranks are goroutines sharing one Hub. Used by tests and
//     by the "local" transport.
//   - internal/grpc/collective: the coordinator serves its Hub over gRPC and
//     remote ranks exchange through it.
//
// There are no timeouts. A rank that never arrives blocks the group until
// the caller's context is cancelled.
package collective
