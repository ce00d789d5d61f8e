/*
Package monitoring provides metrics collection and the coordinator's
metrics endpoint.

# Overview

Metrics are registered on an explicit prometheus.Registry so that every
group member, and every test, owns its collectors.

# Features

- Collective metrics (calls, wait time, payload bytes per direction)
- Kernel compute time
- Run outcomes and state transitions
- gRPC transport calls
- HTTP endpoint metrics and per-IP rate limiting

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	timer := monitoring.NewTimer(metrics, "average")
	// ... run kernel ...
	timer.Stop()

	srv := monitoring.NewServer(monitoring.ServerConfig{Address: ":9090"}, metrics, statusFn, logger)
	go srv.Run()
*/
package monitoring
