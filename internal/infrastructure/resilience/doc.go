/*
Package resilience guards calls to a peer that may be slow to come up.

A Breaker stops hammering a peer after repeated failures and lets a few
trial calls through once its timeout passes:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Call runs a typed call through a Breaker. Workers wrap their coordinator
RPCs in one so a coordinator that keeps failing is reported as unavailable
without another round trip; reconnect backoff itself is left to gRPC.

	resp, err := resilience.Call(breaker, func() (*pb.JoinResponse, error) {
		return rpc.Join(ctx, req, grpc.WaitForReady(true))
	})
*/
package resilience
