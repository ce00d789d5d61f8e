// Package server launches the ranks of a filter group in this process and
// drives them through a batch of jobs.
//
// With the local transport every rank runs as a goroutine over an
// in-process hub. With the grpc transport each process hosts one rank:
// rank 0 serves the hub and the metrics endpoint, the others dial it.
//
// Server Lifecycle:
//  1. Load configuration (defaults, PIXMESH_CONFIG file, environment, flags)
//  2. Build the logger, metrics registry and tracer
//  3. Expand the input glob into jobs on the coordinator
//  4. Form the group (local goroutines, or gRPC join)
//  5. Run one pipeline Session per hosted rank
//  6. Write the run report and print the runtime
//
// Example Usage:
//
//	srv, err := server.NewServer(server.Options{Config: cfg, Kernel: kernel})
//	defer srv.Close()
//	results, err := srv.Run(ctx, jobs)
package server
