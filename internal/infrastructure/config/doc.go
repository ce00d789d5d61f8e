// Package config provides 12-factor configuration for the pixmesh CLIs.
//
// Values are layered: Default(), then the YAML or TOML file named by
// PIXMESH_CONFIG, then environment variables. CLI flags are applied last by
// the commands themselves.
//
// Configuration Sections:
//   - Cluster: worker count, rank, transport and coordinator address
//   - Transport: gRPC message limit and payload compression threshold
//   - Logging: Log level and output format
//   - Metrics: coordinator /metrics endpoint and its per-IP rate limit
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - PIXMESH_WORKERS, PIXMESH_RANK, PIXMESH_TRANSPORT, PIXMESH_COORDINATOR, PIXMESH_JOIN_TIMEOUT
//   - PIXMESH_MAX_MESSAGE_BYTES, PIXMESH_COMPRESS_ABOVE
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED, METRICS_ADDR, METRICS_RPS, METRICS_BURST
package config
