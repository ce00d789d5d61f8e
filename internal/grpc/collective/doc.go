// Package collective carries collective rounds between processes over gRPC.
//
// The coordinator (rank 0) runs a Server that owns the group's Hub and
// exchanges with it in process. Each worker Dials the coordinator, joins
// the group with its rank and receives a session token, then sends one
// Exchange RPC per collective call. An Exchange blocks on the server until
// every rank has contributed to the round.
//
// Features:
//   - Join retried through a circuit breaker with backoff while the
//     coordinator is starting
//   - zstd compression of pixel payloads above a threshold
//   - ErrProtocol carried as codes.FailedPrecondition in both directions
//   - Prometheus call metrics and trace propagation via interceptors
//
// Example Usage:
//
//	srv, err := collective.NewServer(workers, opts)
//	go srv.Serve(lis)
//	ch := srv.Channel() // rank 0
//
//	client, err := collective.Dial(ctx, "head:50061", rank, workers, opts)
//	ch := client.Channel() // rank > 0
package collective
